package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// DefaultTTL is the lifetime of issued tokens.
const DefaultTTL = 2 * time.Hour

// Claims carries the principal inside a token. The subject is the user id.
type Claims struct {
	Role     model.Role `json:"role"`
	TenantID *int64     `json:"tenant_id,omitempty"`
	Siret    string     `json:"siret,omitempty"`
	jwtlib.RegisteredClaims
}

// Signer issues and verifies HS256 tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. A zero ttl selects DefaultTTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for p and returns it with its expiry.
func (s *Signer) Issue(p model.Principal) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)

	claims := Claims{
		Role:     p.Role,
		TenantID: p.TenantID,
		Siret:    p.TenantSiret,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(p.UserID, 10),
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(exp),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the signature and validity window of token and returns the
// principal it was issued for.
func (s *Signer) Verify(token string) (model.Principal, error) {
	var claims Claims
	parsed, err := jwtlib.ParseWithClaims(token, &claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwtlib.WithTimeFunc(s.now))
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return model.Principal{}, ErrInvalidToken
	}

	return claims.Principal()
}

// Principal converts the claims into a principal.
func (c Claims) Principal() (model.Principal, error) {
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return model.Principal{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
	}
	return model.Principal{
		UserID:      userID,
		Role:        c.Role,
		TenantID:    c.TenantID,
		TenantSiret: c.Siret,
	}, nil
}

// ParsePrincipal reads the principal from token without checking its
// signature. Clients use it to scope their own view; the server still
// verifies every request.
func ParsePrincipal(token string) (model.Principal, error) {
	var claims Claims
	if _, _, err := jwtlib.NewParser().ParseUnverified(token, &claims); err != nil {
		return model.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims.Principal()
}
