// Package signature provides keyed-hash webhook payload signing and
// verification.
//
// The signature is a lowercase hex-encoded HMAC computed over the exact
// byte sequence placed in the request body. Receivers verify it with the
// webhook's shared secret, so the signer must never re-serialize the
// payload before hashing.
package signature

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // legacy HMAC-SHA1 kept for receiver compatibility
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Supported signing algorithms.
const (
	AlgHMACSHA256 = "HMAC-SHA256"
	AlgHMACSHA1   = "HMAC-SHA1"
)

// Default is the algorithm used when a webhook does not specify one.
const Default = AlgHMACSHA256

// Sign computes the lowercase hex HMAC of payload with the given secret
// and algorithm. Algorithm names are matched loosely ("HMAC-SHA256",
// "HmacSHA256" and "hmac_sha256" are all accepted) so that records
// written by older deployments keep verifying.
func Sign(payload []byte, secret, algorithm string) (string, error) {
	newHash, err := hashFor(algorithm)
	if err != nil {
		return "", err
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature over payload and compares it to sig in
// constant time. Returns an error when the algorithm is unknown or the
// signature does not match.
func Verify(payload []byte, secret, algorithm, sig string) error {
	want, err := Sign(payload, secret, algorithm)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(sig))) {
		return fmt.Errorf("signature: mismatch")
	}
	return nil
}

// Normalize returns the canonical name for a supported algorithm, or an
// error for an unknown one. An empty input normalizes to the default.
func Normalize(algorithm string) (string, error) {
	switch canonical(algorithm) {
	case "", "HMACSHA256":
		return AlgHMACSHA256, nil
	case "HMACSHA1":
		return AlgHMACSHA1, nil
	default:
		return "", fmt.Errorf("signature: unknown algorithm %q", algorithm)
	}
}

func hashFor(algorithm string) (func() hash.Hash, error) {
	norm, err := Normalize(algorithm)
	if err != nil {
		return nil, err
	}
	switch norm {
	case AlgHMACSHA1:
		return sha1.New, nil
	default:
		return sha256.New, nil
	}
}

// canonical strips separators and uppercases, so "HmacSHA256" and
// "HMAC-SHA256" compare equal.
func canonical(algorithm string) string {
	s := strings.ToUpper(algorithm)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}
