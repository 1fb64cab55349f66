// Package identity turns bearer tokens issued by the account service into a
// verified domain.Caller.
package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/dukerupert/cakery/internal/domain"
	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var (
	// ErrMissingSecret is returned when no signing secret is configured.
	ErrMissingSecret = errors.New("identity: signing secret is required")

	errInvalidToken = domain.Errorf(domain.EUNAUTHORIZED, "identity.verify", "Invalid or expired token")
)

// Claims is the token payload. userId and role are the account service's
// claim names; sub is accepted when userId is absent.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens and resolves the caller they identify.
type Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewVerifier creates a Verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

// Verify parses and validates raw, returning the caller it identifies.
// Every failure is an EUNAUTHORIZED domain error.
func (v *Verifier) Verify(raw string) (*domain.Caller, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errInvalidToken
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, domain.WrapError(err, domain.EUNAUTHORIZED, "identity.verify", "Invalid or expired token")
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, errInvalidToken
	}

	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	id, err := uuid.Parse(subject)
	if err != nil || id == uuid.Nil {
		return nil, errInvalidToken
	}

	role := domain.Role(claims.Role)
	if !role.Valid() {
		return nil, errInvalidToken
	}

	return &domain.Caller{ID: id, Role: role}, nil
}

// Issue signs a token for caller that expires after ttl. Used by local
// tooling and tests; production tokens come from the account service.
func (v *Verifier) Issue(caller domain.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: caller.ID.String(),
		Role:   string(caller.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
