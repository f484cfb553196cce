// Package auth verifies the identity provider's access tokens and mints
// development tokens with the same shape.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// Audience is the audience the identity provider stamps on user tokens.
const Audience = "authenticated"

var (
	ErrMissingToken = fmt.Errorf("%w: missing access token", domain.ErrNotAuthenticated)
	ErrExpiredToken = fmt.Errorf("%w: access token has expired", domain.ErrNotAuthenticated)
	ErrInvalidToken = fmt.Errorf("%w: invalid access token", domain.ErrNotAuthenticated)
)

// Claims are the access token claims. Subject is the owner.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the verified caller.
type Identity struct {
	Owner     string
	Email     string
	ExpiresAt time.Time
}

// Verifier validates HS256 access tokens.
type Verifier struct {
	secret  []byte
	issuer  string
	parser  *jwt.Parser
	lenient *jwt.Parser // signature only, no time-based claims
}

// NewVerifier returns a verifier for tokens signed with secret. An empty
// issuer disables the issuer check.
func NewVerifier(secret []byte, issuer string, leeway time.Duration) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(leeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	lenient := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	return &Verifier{
		secret:  secret,
		issuer:  issuer,
		parser:  jwt.NewParser(opts...),
		lenient: lenient,
	}, nil
}

// Verify parses token and returns the caller. Every failure matches
// domain.ErrNotAuthenticated.
func (v *Verifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	id := Identity{Owner: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Subject returns the owner of a correctly signed token even when it has
// expired. Sign-out uses it to find the session to end; it must not be used
// to authorize anything.
func (v *Verifier) Subject(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", ErrMissingToken
	}

	claims := &Claims{}
	if _, err := v.lenient.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return "", fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Issuer mints access tokens. Used for local development and by shelfctl.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an issuer whose tokens live for ttl.
func NewIssuer(secret []byte, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for owner.
func (i *Issuer) Issue(owner, email string) (string, time.Time, error) {
	if owner == "" {
		return "", time.Time{}, errors.New("owner is required")
	}
	if len(i.secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret is required")
	}

	now := i.now()
	exp := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		Role:  Audience,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   owner,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}
