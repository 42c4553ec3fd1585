// Package identity issues calling identities and short-lived access tokens.
// It keeps no room state.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog/log"
)

const (
	HandlePrefix    = "8:meet:"
	DefaultIssuer   = "meet"
	DefaultTokenTTL = time.Hour
	scopeClaim      = "scp"
	keyID           = "meet-hs256"
)

type Options struct {
	Issuer   string
	Secret   []byte
	TokenTTL time.Duration
	Now      func() time.Time
}

// Provider signs HS256 tokens with a shared secret.
type Provider struct {
	issuer string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

var _ core.IdentityProvider = (*Provider)(nil)

func NewProvider(opts Options) (*Provider, error) {
	p := &Provider{
		issuer: opts.Issuer,
		secret: opts.Secret,
		ttl:    opts.TokenTTL,
		now:    opts.Now,
	}
	if p.issuer == "" {
		p.issuer = DefaultIssuer
	}
	if p.ttl <= 0 {
		p.ttl = DefaultTokenTTL
	}
	if p.now == nil {
		p.now = time.Now
	}
	if len(p.secret) == 0 {
		p.secret = make([]byte, 32)
		if _, err := rand.Read(p.secret); err != nil {
			return nil, fmt.Errorf("identity secret: %w", err)
		}
		log.Warn().Str("module", "adapters.identity").Msg("no identity secret configured, using a random one")
	}
	return p, nil
}

func (p *Provider) CreateIdentity(ctx context.Context) (domain.UserID, error) {
	if err := ctx.Err(); err != nil {
		return "", wrap("create identity", err)
	}
	return domain.UserID(HandlePrefix + uuid.NewString()), nil
}

func (p *Provider) IssueToken(ctx context.Context, id domain.UserID, scopes []string) (core.AccessToken, error) {
	if err := ctx.Err(); err != nil {
		return core.AccessToken{}, wrap("issue token", err)
	}
	if !strings.HasPrefix(string(id), HandlePrefix) {
		return core.AccessToken{}, wrap("issue token", fmt.Errorf("unknown identity %q", id))
	}

	now := p.now()
	expiresAt := now.Add(p.ttl)
	tok, err := jwt.NewBuilder().
		Issuer(p.issuer).
		Subject(string(id)).
		Audience(scopes).
		IssuedAt(now).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return core.AccessToken{}, wrap("build token", err)
	}
	if err := tok.Set(scopeClaim, strings.Join(scopes, " ")); err != nil {
		return core.AccessToken{}, wrap("set scopes", err)
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.KeyIDKey, keyID); err != nil {
		return core.AccessToken{}, wrap("set kid", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, p.secret, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return core.AccessToken{}, wrap("sign token", err)
	}
	return core.AccessToken{Token: string(signed), ExpiresOn: expiresAt.Truncate(time.Second)}, nil
}

type Claims struct {
	Subject   domain.UserID
	Issuer    string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verify checks the signature, issuer and expiry of token.
func (p *Provider) Verify(token string) (*Claims, error) {
	return Verify(token, p.secret, p.issuer, p.now)
}

// Verify is usable without a Provider, e.g. from a CLI holding the secret.
func Verify(token string, secret []byte, issuer string, now func() time.Time) (*Claims, error) {
	if now == nil {
		now = time.Now
	}
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(now)),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	tok, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return nil, wrap("verify token", err)
	}

	c := &Claims{
		Subject:   domain.UserID(tok.Subject()),
		Issuer:    tok.Issuer(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}
	if raw, ok := tok.Get(scopeClaim); ok {
		s, ok := raw.(string)
		if !ok {
			return nil, wrap("verify token", errors.New("malformed scope claim"))
		}
		c.Scopes = strings.Fields(s)
	}
	return c, nil
}

func wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrIdentityProvider, err))
}
