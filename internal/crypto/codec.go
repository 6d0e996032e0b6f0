// Package crypto provides the at-rest encryption used for OAuth tokens and
// other secrets held by the service.
//
// Secrets are sealed with AES-256-GCM under a single master key. Every call
// to Encrypt draws a fresh 96-bit nonce from crypto/rand, so encrypting the
// same plaintext twice yields different tokens. Tokens are self-describing:
//
//	enc:v1:<base64 nonce>:<base64 ciphertext+tag>
//
// The fixed prefix lets callers tell sealed values from legacy plaintext
// during migration with IsEncoded, and skip re-encrypting values that are
// already sealed.
//
// Example usage:
//
//	key, err := crypto.NewKeySource(crypto.KeyConfig{KeyDir: "./data"}).Key()
//	if err != nil {
//		log.Fatal(err)
//	}
//	codec, err := crypto.NewCodec(key)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	token, _ := codec.Encrypt("refresh-token")
//	plain, err := codec.Decrypt(token)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"esign-sync/internal/common/errors"
)

const (
	// Prefix tags every sealed value with the format version.
	Prefix = "enc:v1:"

	// KeySize is the master key length in bytes (AES-256).
	KeySize = 32

	nonceSize = 12
)

// Codec seals and opens secrets with AES-256-GCM.
//
// Codec is safe for concurrent use by multiple goroutines.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec creates a Codec for the given 32-byte master key.
//
// Parameters:
//   - key: raw key material, exactly KeySize bytes
//
// Returns:
//   - *Codec: a ready codec
//   - error: a config error if the key has the wrong length
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, errors.ConfigError(fmt.Sprintf("master key must be %d bytes, got %d", KeySize, len(key)))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.InternalError("failed to create cipher", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, errors.InternalError("failed to create GCM", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext and returns a versioned token. The empty string is
// a valid plaintext and round-trips.
//
// Callers holding values of unknown provenance should check IsEncoded first;
// Encrypt does not detect already-sealed input.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.InternalError("failed to generate nonce", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	return Prefix +
		base64.StdEncoding.EncodeToString(nonce) + ":" +
		base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt.
//
// A token that is malformed, was produced under another key, or was
// tampered with yields a DecryptError. Callers treat that as "no usable
// secret".
func (c *Codec) Decrypt(token string) (string, error) {
	if !IsEncoded(token) {
		return "", errors.DecryptError("value is not an encoded secret", nil)
	}

	parts := strings.Split(strings.TrimPrefix(token, Prefix), ":")
	if len(parts) != 2 {
		return "", errors.DecryptError("malformed encoded secret", nil)
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", errors.DecryptError("malformed nonce", err)
	}

	sealed, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", errors.DecryptError("malformed ciphertext", err)
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.DecryptError("secret failed authentication", err)
	}

	return string(plaintext), nil
}

// EncryptIfPlain seals value unless it already carries the codec prefix.
func (c *Codec) EncryptIfPlain(value string) (string, error) {
	if IsEncoded(value) {
		return value, nil
	}
	return c.Encrypt(value)
}

// IsEncoded reports whether value carries the sealed-secret prefix.
func IsEncoded(value string) bool {
	return strings.HasPrefix(value, Prefix)
}
