// Package authn provides the token verification collaborator the Hub
// Façade and HTTP API depend on: cookie-based token extraction, JWT
// verification, and a blacklist lookup hook.
//
// Grounded on cloud/internal/auth/jwt.go's Claims/TokenService shape,
// adapted from Bearer-header extraction to cookie extraction plus a
// token-blacklist check, per this plane's external-collaborator contract.
package authn

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload this plane expects: a user identity plus the
// organization (tenant) the token is scoped to.
type Claims struct {
	UserID         int64  `json:"user_id"`
	Email          string `json:"email"`
	OrganizationID int64  `json:"organization_id"`
	TokenID        string `json:"token_id"`
	jwt.RegisteredClaims
}

// Blacklist reports whether a token_id has been revoked. Backed by
// whatever store the external collaborator uses; specified only at this
// interface per the plane's scope.
type Blacklist interface {
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
}

// AuthFailure covers credential problems: cookie missing, token invalid,
// token blacklisted, missing organization_id. Callers map it to HTTP 401.
type AuthFailure struct {
	Reason string
}

func (e *AuthFailure) Error() string { return "auth failure: " + e.Reason }

func fail(reason string) error { return &AuthFailure{Reason: reason} }

// InternalError covers infrastructure faults encountered while verifying a
// token, not a problem with the credential itself — e.g. the blacklist
// store being unreachable. Callers map it to HTTP 500 and destroy the
// socket rather than reporting it as a 401.
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string { return "internal error: " + e.Reason }

func internalFail(reason string) error { return &InternalError{Reason: reason} }

// TokenService verifies cookie-carried tokens for the hub upgrade path.
type TokenService struct {
	secretKey  []byte
	issuer     string
	cookieName string
	blacklist  Blacklist
}

func NewTokenService(secretKey, issuer, cookieName string, blacklist Blacklist) *TokenService {
	return &TokenService{
		secretKey:  []byte(secretKey),
		issuer:     issuer,
		cookieName: cookieName,
		blacklist:  blacklist,
	}
}

// AuthenticatedUser is what the hub façade attaches to a newly-upgraded
// connection.
type AuthenticatedUser struct {
	UserID         int64
	Email          string
	OrganizationID int64
}

// Authenticate extracts the token from r's cookie, verifies it, and checks
// the blacklist. It is the sole entry point for §4.I upgrade step 1-2.
func (s *TokenService) Authenticate(ctx context.Context, r *http.Request) (*AuthenticatedUser, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, fail("missing session cookie")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, fail("invalid token")
	}
	if claims.OrganizationID == 0 {
		return nil, fail("missing organization_id claim")
	}

	if s.blacklist != nil && claims.TokenID != "" {
		blacklisted, err := s.blacklist.IsBlacklisted(ctx, claims.TokenID)
		if err != nil {
			return nil, internalFail("blacklist lookup failed")
		}
		if blacklisted {
			return nil, fail("token is blacklisted")
		}
	}

	return &AuthenticatedUser{
		UserID:         claims.UserID,
		Email:          claims.Email,
		OrganizationID: claims.OrganizationID,
	}, nil
}

// Issue mints a token; in this tree only tests call it. Not used by the hub
// upgrade path or the HTTP API, which only ever verify.
func (s *TokenService) Issue(userID, orgID int64, email, tokenID string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:         userID,
		Email:          email,
		OrganizationID: orgID,
		TokenID:        tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// LocalPart returns the local-part of an email address, used to derive
// user_name when no display name is otherwise available.
func LocalPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}
