package authjwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey() error = %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return priv, string(pemBytes)
}

func signToken(t *testing.T, priv *rsa.PrivateKey, sub, azp string, expiry time.Duration) string {
	t.Helper()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
		Azp: azp,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	signed, err := tok.SignedString(priv)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	priv, pubPEM := generateTestKeyPair(t)
	v, err := NewClerkVerifier(pubPEM, nil)
	if err != nil {
		t.Fatalf("NewClerkVerifier() error = %v", err)
	}

	tok := signToken(t, priv, "user_42", "", time.Hour)
	sub, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if sub != "user_42" {
		t.Fatalf("sub = %q, want user_42", sub)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	priv, pubPEM := generateTestKeyPair(t)
	v, _ := NewClerkVerifier(pubPEM, nil)

	tok := signToken(t, priv, "user_42", "", -time.Hour)
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerifyWrongKey(t *testing.T) {
	priv, _ := generateTestKeyPair(t)
	_, otherPubPEM := generateTestKeyPair(t)
	v, _ := NewClerkVerifier(otherPubPEM, nil)

	tok := signToken(t, priv, "user_42", "", time.Hour)
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected error for signature from untrusted key")
	}
}

func TestVerifyUnauthorizedParty(t *testing.T) {
	priv, pubPEM := generateTestKeyPair(t)
	v, err := NewClerkVerifier(pubPEM, []string{"https://trusted.example"})
	if err != nil {
		t.Fatalf("NewClerkVerifier() error = %v", err)
	}

	tok := signToken(t, priv, "user_42", "https://evil.example", time.Hour)
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected error for unauthorized azp")
	}
}

func TestVerifyAuthorizedParty(t *testing.T) {
	priv, pubPEM := generateTestKeyPair(t)
	v, err := NewClerkVerifier(pubPEM, []string{"https://trusted.example"})
	if err != nil {
		t.Fatalf("NewClerkVerifier() error = %v", err)
	}

	tok := signToken(t, priv, "user_42", "https://trusted.example", time.Hour)
	sub, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if sub != "user_42" {
		t.Fatalf("sub = %q, want user_42", sub)
	}
}
