package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/service"
	"dukaanpos/backend/internal/store/memory"
)

func newTestAuth(ttl time.Duration) *AuthManager {
	return NewAuthManager("test-secret-key-at-least-32-bytes!!", ttl, memory.NewSeeded())
}

func TestLoginUnknownUser(t *testing.T) {
	auth := newTestAuth(time.Hour)

	_, err := auth.Login(context.Background(), domain.LoginRequest{
		Username: "ghost", Password: "whatever",
	})
	if !errors.Is(err, service.ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}
}

func TestLoginEmptyPassword(t *testing.T) {
	auth := newTestAuth(time.Hour)

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "root"})
	if !errors.Is(err, service.ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	auth := newTestAuth(time.Hour)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{
		Username: "cashier1", Password: "cashier123",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	actor, err := auth.ParseToken(resp.Token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if actor.UserID != "user-cashier" {
		t.Fatalf("userID = %s, want user-cashier", actor.UserID)
	}
	if actor.Username != "cashier1" || actor.Role != domain.RoleCashier {
		t.Fatalf("actor = %+v", actor)
	}
	if actor.StoreID != "store-demo" {
		t.Fatalf("storeID = %s, want store-demo", actor.StoreID)
	}
}

func TestParseTokenRejectsTampered(t *testing.T) {
	auth := newTestAuth(time.Hour)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{
		Username: "cashier1", Password: "cashier123",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	tampered := resp.Token[:len(resp.Token)-2] + "xx"
	if _, err := auth.ParseToken(tampered); err == nil {
		t.Fatal("tampered token accepted")
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	signer := newTestAuth(time.Hour)
	verifier := NewAuthManager("a-completely-different-32-byte-key!", time.Hour, memory.NewSeeded())

	resp, err := signer.Login(context.Background(), domain.LoginRequest{
		Username: "root", Password: "admin123",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.Token); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := newTestAuth(time.Nanosecond)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{
		Username: "root", Password: "admin123",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := auth.ParseToken(resp.Token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestParseTokenRejectsUnsignedAlg(t *testing.T) {
	auth := newTestAuth(time.Hour)

	// Header {"alg":"none","typ":"JWT"} with an arbitrary payload.
	none := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJ1c2VyLXJvb3QiLCJyb2xlIjoiU1VQRVJfQURNSU4ifQ."
	if _, err := auth.ParseToken(none); err == nil {
		t.Fatal("alg=none token accepted")
	}
}
