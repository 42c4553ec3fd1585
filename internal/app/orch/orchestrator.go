package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// DefaultScopes are requested for every issued calling token.
var DefaultScopes = []string{"voip"}

const DefaultRoomTTL = 24 * time.Hour

// Orchestrator implements the room session lifecycle on top of the
// Registry. Identity issuance always happens before a room lock is taken.
type Orchestrator struct {
	Registry *app.Registry
	Identity core.IdentityProvider
	Policy   app.AdmissionPolicy
	Now      func() time.Time
	RoomTTL  time.Duration
	Scopes   []string
	// OnRoomEnded runs after a room is gone, outside every lock.
	OnRoomEnded func(domain.RoomID)
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) ttl() time.Duration {
	if o.RoomTTL > 0 {
		return o.RoomTTL
	}
	return DefaultRoomTTL
}

func (o *Orchestrator) policy() app.AdmissionPolicy {
	if o.Policy == nil {
		return app.HostBypassPolicy{}
	}
	return o.Policy
}

func (o *Orchestrator) scopes() []string {
	if len(o.Scopes) == 0 {
		return DefaultScopes
	}
	return o.Scopes
}

// issue asks the identity provider for a fresh handle and token.
func (o *Orchestrator) issue(ctx context.Context) (domain.UserID, core.AccessToken, error) {
	id, err := o.Identity.CreateIdentity(ctx)
	if err != nil {
		return "", core.AccessToken{}, upstream("create identity", err)
	}
	tok, err := o.Identity.IssueToken(ctx, id, o.scopes())
	if err != nil {
		return "", core.AccessToken{}, upstream("issue token", err)
	}
	return id, tok, nil
}

func upstream(op string, err error) error {
	if domain.KindOf(err) == domain.KindUpstream {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrIdentityProvider, err))
}
