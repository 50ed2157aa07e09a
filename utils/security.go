// pkuhole/utils/security.go
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	saltLen  = 16
	nonceLen = 24
	keyLen   = 32

	// scrypt cost parameters
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ErrBadSessionKey is returned when a sealed token cannot be opened with the given passphrase.
var ErrBadSessionKey = errors.New("session key does not match sealed token")

// TokenFingerprint returns a short, non-reversible identifier for a session
// token so that it can appear in logs.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:6])
}

func deriveKey(passphrase string, salt []byte) (*[keyLen]byte, error) {
	raw, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("could not derive key: %w", err)
	}
	var key [keyLen]byte
	copy(key[:], raw)
	return &key, nil
}

// SealToken encrypts token with a key derived from passphrase. The result is
// base64 text of salt, nonce and ciphertext, suitable for a TEXT column.
func SealToken(passphrase, token string) (string, error) {
	if passphrase == "" {
		return "", errors.New("empty session passphrase")
	}
	var salt [saltLen]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return "", fmt.Errorf("could not generate salt: %w", err)
	}
	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("could not generate nonce: %w", err)
	}
	key, err := deriveKey(passphrase, salt[:])
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, saltLen+nonceLen+len(token)+secretbox.Overhead)
	out = append(out, salt[:]...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, []byte(token), &nonce, key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// OpenToken reverses SealToken.
func OpenToken(passphrase, sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("sealed token is not valid base64: %w", err)
	}
	if len(raw) < saltLen+nonceLen+secretbox.Overhead {
		return "", errors.New("sealed token is truncated")
	}
	key, err := deriveKey(passphrase, raw[:saltLen])
	if err != nil {
		return "", err
	}
	var nonce [nonceLen]byte
	copy(nonce[:], raw[saltLen:saltLen+nonceLen])

	plain, ok := secretbox.Open(nil, raw[saltLen+nonceLen:], &nonce, key)
	if !ok {
		return "", ErrBadSessionKey
	}
	return string(plain), nil
}
