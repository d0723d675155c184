package statetoken

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndValidate_RoundTrip(t *testing.T) {
	t.Parallel()
	iss := New("super-secret", 10*time.Minute)

	state, err := iss.Issue("u1", "strava")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := iss.Validate(state)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "u1" || claims.Provider != "strava" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestValidate_RejectsWrongSecret(t *testing.T) {
	t.Parallel()
	state, err := New("secret-a", 10*time.Minute).Issue("u1", "strava")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := New("secret-b", 10*time.Minute).Validate(state); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidate_RejectsExpired(t *testing.T) {
	t.Parallel()
	iss := New("super-secret", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	state, err := iss.Issue("u1", "strava")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	fresh := New("super-secret", time.Minute)
	if _, err := fresh.Validate(state); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestValidate_RejectsGarbage(t *testing.T) {
	t.Parallel()
	iss := New("super-secret", time.Minute)
	if _, err := iss.Validate("not-a-jwt"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
