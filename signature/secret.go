package signature

import (
	"crypto/rand"
	"encoding/hex"
)

const (
	secretPrefix = "whsec_"
	secretBytes  = 32
)

// GenerateSecret returns a fresh signing secret: the "whsec_" prefix
// followed by 32 random bytes, hex encoded.
func GenerateSecret() string {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand does not fail on supported platforms
		panic("emitter/signature: rand.Read: " + err.Error())
	}
	out := make([]byte, len(secretPrefix)+hex.EncodedLen(secretBytes))
	copy(out, secretPrefix)
	hex.Encode(out[len(secretPrefix):], raw)
	return string(out)
}
