package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/hooklab/emitter/signature"
)

func TestSignSHA256(t *testing.T) {
	payload := []byte(`{"type":"access.LOGIN"}`)
	secret := "whsec_test"

	got, err := signature.Sign(payload, secret, signature.AlgHMACSHA256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))

	if got != want {
		t.Fatalf("signature: got %s, want %s", got, want)
	}
	if got != strings.ToLower(got) {
		t.Fatal("signature must be lowercase hex")
	}
}

func TestSignLegacyAlgorithmName(t *testing.T) {
	payload := []byte("payload")

	a, err := signature.Sign(payload, "s", "HmacSHA256")
	if err != nil {
		t.Fatalf("legacy name rejected: %v", err)
	}
	b, err := signature.Sign(payload, "s", signature.AlgHMACSHA256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatal("legacy and canonical algorithm names must produce the same signature")
	}
}

func TestSignSHA1Differs(t *testing.T) {
	payload := []byte("payload")

	a, err := signature.Sign(payload, "s", signature.AlgHMACSHA1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := signature.Sign(payload, "s", signature.AlgHMACSHA256)
	if a == b {
		t.Fatal("SHA1 and SHA256 signatures should differ")
	}
	if len(a) != 40 {
		t.Fatalf("SHA1 hex digest should be 40 chars, got %d", len(a))
	}
}

func TestSignUnknownAlgorithm(t *testing.T) {
	if _, err := signature.Sign([]byte("x"), "s", "HMAC-MD5"); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	sig, err := signature.Sign(payload, "secret", signature.AlgHMACSHA256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := signature.Verify(payload, "secret", signature.AlgHMACSHA256, sig); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := signature.Verify(payload, "wrong", signature.AlgHMACSHA256, sig); err == nil {
		t.Fatal("verify should fail with wrong secret")
	}
	if err := signature.Verify([]byte("tampered"), "secret", signature.AlgHMACSHA256, sig); err == nil {
		t.Fatal("verify should fail with tampered payload")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":            signature.AlgHMACSHA256,
		"HMAC-SHA256": signature.AlgHMACSHA256,
		"hmac_sha1":   signature.AlgHMACSHA1,
		"HmacSHA1":    signature.AlgHMACSHA1,
	}
	for in, want := range cases {
		got, err := signature.Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := signature.Normalize("rot13"); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}

func TestGenerateSecret(t *testing.T) {
	s1 := signature.GenerateSecret()
	s2 := signature.GenerateSecret()

	if !strings.HasPrefix(s1, "whsec_") {
		t.Fatalf("secret should have whsec_ prefix: %s", s1)
	}
	if len(s1) != 70 {
		t.Fatalf("secret should be 70 chars, got %d", len(s1))
	}
	if s1 == s2 {
		t.Fatal("secrets should be unique")
	}
}
