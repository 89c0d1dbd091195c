package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// DeriveSecretboxKey derives a 32-byte secretbox key from the master secret.
// The context string keeps the key independent from the JWT signing seed.
func DeriveSecretboxKey(masterSecret string) *[32]byte {
	sum := sha256.Sum256([]byte("walink-credentials:" + masterSecret))
	var key [32]byte
	copy(key[:], sum[:])
	return &key
}

// SealBox encrypts data with a symmetric secretbox key.
// Format: [nonce (24 bytes)][encrypted data]
// Used for session credentials at rest.
func SealBox(data []byte, key *[32]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := RandBytes(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], data, &nonce, key), nil
}

// OpenBox decrypts data encrypted with SealBox
func OpenBox(encrypted []byte, key *[32]byte) ([]byte, error) {
	if len(encrypted) < 24 {
		return nil, fmt.Errorf("encrypted data too short")
	}

	var nonce [24]byte
	copy(nonce[:], encrypted[:24])

	decrypted, ok := secretbox.Open(nil, encrypted[24:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("decryption failed")
	}
	return decrypted, nil
}
