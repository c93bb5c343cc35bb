package token

import (
	"errors"
	"testing"
	"time"

	"github.com/heartlink/heartlink/internal/domain"
)

func TestMintAndResolve(t *testing.T) {
	iss := New("test-secret", time.Hour)

	cred, err := iss.Mint("acct-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	id, err := iss.Resolve(cred)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "acct-1" {
		t.Errorf("id = %q, want acct-1", id)
	}
}

func TestResolve_Expired(t *testing.T) {
	iss := New("test-secret", -time.Minute)

	cred, err := iss.Mint("acct-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	_, err = iss.Resolve(cred)
	if !errors.Is(err, domain.ErrCredentialExpired) {
		t.Errorf("err = %v, want ErrCredentialExpired", err)
	}
}

func TestResolve_WrongSecret(t *testing.T) {
	cred, err := New("secret-a", time.Hour).Mint("acct-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	_, err = New("secret-b", time.Hour).Resolve(cred)
	if !errors.Is(err, domain.ErrCredentialInvalid) {
		t.Errorf("err = %v, want ErrCredentialInvalid", err)
	}
}

func TestResolve_Garbage(t *testing.T) {
	_, err := New("secret", time.Hour).Resolve("not-a-token")
	if !errors.Is(err, domain.ErrCredentialInvalid) {
		t.Errorf("err = %v, want ErrCredentialInvalid", err)
	}
}
