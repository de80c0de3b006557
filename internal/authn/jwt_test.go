package authn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeBlacklist struct {
	blacklisted map[string]bool
}

func (f fakeBlacklist) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	return f.blacklisted[tokenID], nil
}

type brokenBlacklist struct{}

func (brokenBlacklist) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	return false, errors.New("redis unreachable")
}

func requestWithCookie(name, value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if value != "" {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return r
}

func TestAuthenticate_Success(t *testing.T) {
	s := NewTokenService("secret", "hub", "session_token", fakeBlacklist{})
	token, err := s.Issue(1, 2, "alice@example.com", "tok-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	user, err := s.Authenticate(context.Background(), requestWithCookie("session_token", token))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.UserID != 1 || user.OrganizationID != 2 {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestAuthenticate_MissingCookie(t *testing.T) {
	s := NewTokenService("secret", "hub", "session_token", fakeBlacklist{})
	if _, err := s.Authenticate(context.Background(), requestWithCookie("session_token", "")); err == nil {
		t.Fatal("expected failure for missing cookie")
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	s := NewTokenService("secret", "hub", "session_token", fakeBlacklist{})
	if _, err := s.Authenticate(context.Background(), requestWithCookie("session_token", "not-a-jwt")); err == nil {
		t.Fatal("expected failure for invalid token")
	}
}

func TestAuthenticate_MissingOrgID(t *testing.T) {
	s := NewTokenService("secret", "hub", "session_token", fakeBlacklist{})
	token, _ := s.Issue(1, 0, "alice@example.com", "tok-1", time.Hour)
	if _, err := s.Authenticate(context.Background(), requestWithCookie("session_token", token)); err == nil {
		t.Fatal("expected failure for missing organization_id")
	}
}

func TestAuthenticate_BlacklistedToken(t *testing.T) {
	s := NewTokenService("secret", "hub", "session_token", fakeBlacklist{blacklisted: map[string]bool{"tok-1": true}})
	token, _ := s.Issue(1, 2, "alice@example.com", "tok-1", time.Hour)
	if _, err := s.Authenticate(context.Background(), requestWithCookie("session_token", token)); err == nil {
		t.Fatal("expected failure for blacklisted token")
	}
}

func TestAuthenticate_BlacklistLookupFailureIsInternalError(t *testing.T) {
	s := NewTokenService("secret", "hub", "session_token", brokenBlacklist{})
	token, _ := s.Issue(1, 2, "alice@example.com", "tok-1", time.Hour)
	_, err := s.Authenticate(context.Background(), requestWithCookie("session_token", token))
	if err == nil {
		t.Fatal("expected failure when the blacklist store is unreachable")
	}
	var internalErr *InternalError
	if !errors.As(err, &internalErr) {
		t.Fatalf("expected *InternalError, got %T: %v", err, err)
	}
	var authErr *AuthFailure
	if errors.As(err, &authErr) {
		t.Fatal("blacklist lookup failure must not be classified as AuthFailure")
	}
}

func TestLocalPart(t *testing.T) {
	if got := LocalPart("alice@example.com"); got != "alice" {
		t.Fatalf("expected alice, got %q", got)
	}
	if got := LocalPart("no-at-sign"); got != "no-at-sign" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}
