package app

import (
	"fmt"

	"github.com/dkeye/Meet/internal/domain"
)

type Admission int

const (
	AdmitWaiting Admission = iota
	AdmitDirect
)

// AdmissionPolicy decides which collection a joining user lands in.
type AdmissionPolicy interface {
	Admit(room *domain.Room, isHost bool) Admission
}

// HostBypassPolicy lets callers claiming host skip the waiting list. The
// claim is not verified against the room's host identity.
type HostBypassPolicy struct{}

func (HostBypassPolicy) Admit(_ *domain.Room, isHost bool) Admission {
	if isHost {
		return AdmitDirect
	}
	return AdmitWaiting
}

// ModeratedPolicy sends every joiner to the waiting list.
type ModeratedPolicy struct{}

func (ModeratedPolicy) Admit(*domain.Room, bool) Admission { return AdmitWaiting }

func PolicyByName(name string) (AdmissionPolicy, error) {
	switch name {
	case "", "host_bypass":
		return HostBypassPolicy{}, nil
	case "moderated":
		return ModeratedPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown admission policy %q", name)
	}
}
