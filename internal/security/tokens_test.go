package security

import (
	"testing"
	"time"
)

func TestIssueAndValidateAccess(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	token, jti, expiresAt, err := p.IssueAccess("session-1", "user-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" || jti == "" {
		t.Fatal("IssueAccess returned empty token or jti")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("access token should expire in the future")
	}

	sessionID, userID, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if sessionID != "session-1" {
		t.Errorf("sessionID = %q, want %q", sessionID, "session-1")
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want %q", userID, "user-1")
	}
}

func TestIssueAndValidateCredential(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	credential, jti, _, err := p.IssueCredential("session-1", "user-1")
	if err != nil {
		t.Fatalf("IssueCredential: %v", err)
	}

	sessionID, gotJTI, userID, err := p.ValidateCredential(credential)
	if err != nil {
		t.Fatalf("ValidateCredential: %v", err)
	}
	if sessionID != "session-1" || userID != "user-1" {
		t.Errorf("claims = (%q, %q), want (session-1, user-1)", sessionID, userID)
	}
	if gotJTI != jti {
		t.Errorf("jti = %q, want %q", gotJTI, jti)
	}
}

func TestValidate_RejectsGarbage(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	for _, bad := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, _, err := p.ValidateAccess(bad); err == nil {
			t.Errorf("ValidateAccess(%q) should fail", bad)
		}
		if _, _, _, err := p.ValidateCredential(bad); err == nil {
			t.Errorf("ValidateCredential(%q) should fail", bad)
		}
	}
}

func TestValidate_RejectsWrongIssuer(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	issuing := NewTokenProvider(signer, pub, "other-issuer", "test-audience", time.Minute, time.Hour)
	validating := NewTokenProvider(signer, pub, "test-issuer", "test-audience", time.Minute, time.Hour)

	credential, _, _, err := issuing.IssueCredential("s", "u")
	if err != nil {
		t.Fatalf("IssueCredential: %v", err)
	}
	if _, _, _, err := validating.ValidateCredential(credential); err == nil {
		t.Error("ValidateCredential should reject wrong issuer")
	}
}

func TestValidate_RejectsExpired(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	p := NewTokenProvider(signer, pub, "test-issuer", "test-audience", -time.Minute, -time.Minute)

	token, _, _, err := p.IssueAccess("s", "u")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, _, err := p.ValidateAccess(token); err == nil {
		t.Error("ValidateAccess should reject expired token")
	}
}

func TestHashCredential(t *testing.T) {
	h1 := HashCredential("credential-a")
	h2 := HashCredential("credential-a")
	h3 := HashCredential("credential-b")

	if h1 != h2 {
		t.Error("same credential should hash identically")
	}
	if h1 == h3 {
		t.Error("different credentials should hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}

	if !CredentialHashEqual("credential-a", h1) {
		t.Error("CredentialHashEqual should match")
	}
	if CredentialHashEqual("credential-b", h1) {
		t.Error("CredentialHashEqual should not match different credential")
	}
}
