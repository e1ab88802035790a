// Package token issues and verifies the two bearer credential kinds:
// short-lived access tokens and longer-lived renewal tokens. Both share
// one payload schema and are signed HS256 with a process secret read
// once at startup. There is no revocation list; logout is advisory.
package token

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/healthguard/surveillance/internal/store/core"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRenewal Kind = "renewal"
)

var (
	ErrSignature = errors.New("token: invalid signature")
	ErrExpired   = errors.New("token: expired")
	ErrMalformed = errors.New("token: malformed")
	ErrWrongKind = errors.New("token: wrong kind")
)

// Payload is the claim set carried by both token kinds.
type Payload struct {
	Subject   string    `json:"sub"`
	UserID    string    `json:"uid"`
	AccountID *string   `json:"account_id,omitempty"`
	Role      core.Role `json:"role"`
	Email     string    `json:"email"`
	Kind      Kind      `json:"kind"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

type claims struct {
	UserID    string    `json:"uid"`
	AccountID *string   `json:"account_id,omitempty"`
	Role      core.Role `json:"role"`
	Email     string    `json:"email"`
	Kind      Kind      `json:"kind"`
	jwtv5.RegisteredClaims
}

// Pair is the result of issuing credentials for a user.
type Pair struct {
	Access    string
	Renewal   string
	ExpiresIn int64 // access token lifetime in seconds
}

// Service signs and verifies tokens with a single process secret.
type Service struct {
	secret     []byte
	accessTTL  time.Duration
	renewalTTL time.Duration
	now        func() time.Time
}

func NewService(secret string, accessTTL, renewalTTL time.Duration) *Service {
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	if renewalTTL <= 0 {
		renewalTTL = 7 * 24 * time.Hour
	}
	return &Service{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		renewalTTL: renewalTTL,
		now:        time.Now,
	}
}

// Issue mints an access/renewal pair for u.
func (s *Service) Issue(u *core.User) (Pair, error) {
	access, err := s.sign(u, KindAccess, s.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	renewal, err := s.sign(u, KindRenewal, s.renewalTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Access:    access,
		Renewal:   renewal,
		ExpiresIn: int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) sign(u *core.User, kind Kind, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	c := claims{
		UserID:    u.ID,
		AccountID: u.AccountID,
		Role:      u.Role,
		Email:     u.Email,
		Kind:      kind,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject:   u.Username,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
		},
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, c)
	signed, err := tk.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify validates the signature and expiry and returns the payload.
// Failures map to exactly one of ErrSignature, ErrExpired, ErrMalformed.
// Clock skew tolerance is zero: tokens are short-lived.
func (s *Service) Verify(raw string) (*Payload, error) {
	var c claims
	tk, err := jwtv5.ParseWithClaims(raw, &c, func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, ErrSignature
		}
		return s.secret, nil
	}, jwtv5.WithTimeFunc(s.now))
	if err != nil {
		switch {
		case errors.Is(err, jwtv5.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwtv5.ErrTokenSignatureInvalid), errors.Is(err, ErrSignature):
			return nil, ErrSignature
		default:
			return nil, ErrMalformed
		}
	}
	if !tk.Valid || c.Kind == "" || c.Subject == "" {
		return nil, ErrMalformed
	}

	p := &Payload{
		Subject:   c.Subject,
		UserID:    c.UserID,
		AccountID: c.AccountID,
		Role:      c.Role,
		Email:     c.Email,
		Kind:      c.Kind,
	}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	return p, nil
}

// Renew exchanges a valid renewal token for a fresh pair minted from the
// claims present in the renewal payload. Access tokens are rejected.
func (s *Service) Renew(raw string) (Pair, *Payload, error) {
	p, err := s.Verify(raw)
	if err != nil {
		return Pair{}, nil, err
	}
	if p.Kind != KindRenewal {
		return Pair{}, nil, ErrWrongKind
	}
	u := &core.User{
		ID:        p.UserID,
		Username:  p.Subject,
		Email:     p.Email,
		Role:      p.Role,
		AccountID: p.AccountID,
	}
	pair, err := s.Issue(u)
	if err != nil {
		return Pair{}, nil, err
	}
	return pair, p, nil
}
