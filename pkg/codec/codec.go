// Package codec is the encryption boundary for sensitive text columns.
//
// Values are sanitized (all markup removed) and sealed with
// XChaCha20-Poly1305 under one process-wide key. The stored form is
// base64(nonce || ciphertext).
package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"html"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/alinorwa/nurse-assistant-management/pkg/errors"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
)

// Sentinel replaces any value that cannot be decrypted.
const Sentinel = "[Encrypted Data - Error]"

const KeySize = chacha20poly1305.KeySize

var (
	ErrInvalidKeySize    = errors.New(errors.KindConfig, "codec: key must be 32 bytes")
	ErrInvalidCiphertext = errors.New(errors.KindData, "codec: invalid ciphertext")
	ErrDecryptionFailed  = errors.New(errors.KindData, "codec: decryption failed")
)

type Codec struct {
	aead   cipher.AEAD
	policy *bluemonday.Policy
}

func New(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindConfig, "codec: init cipher")
	}
	return &Codec{aead: aead, policy: bluemonday.StrictPolicy()}, nil
}

// NewFromBase64 builds a codec from a standard base64 encoded key, the form
// FIELD_ENCRYPTION_KEY is stored in.
func NewFromBase64(encoded string) (*Codec, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindConfig, "codec: decode key")
	}
	return New(key)
}

// GenerateKey returns a fresh random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encode sanitizes and encrypts plaintext. Empty input is returned as is.
func (c *Codec) Encode(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	clean := c.Sanitize(plaintext)

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(clean)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "codec: nonce")
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(clean), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open is the strict inverse of Encode.
func (c *Codec) Open(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// Decode never fails: unreadable values come back as Sentinel.
func (c *Codec) Decode(ciphertext string) string {
	plain, err := c.Open(ciphertext)
	if err != nil {
		logger.Error("decryption failed", zap.Error(err), zap.Int("length", len(ciphertext)))
		return Sentinel
	}
	return plain
}

// Sanitize strips every tag and returns plain text. Entities produced by the
// policy are unescaped again until the value is stable, so "I'm" stays "I'm"
// while "&lt;b&gt;" cannot smuggle a tag through.
func (c *Codec) Sanitize(s string) string {
	for i := 0; i < 4; i++ {
		out := html.UnescapeString(c.policy.Sanitize(s))
		if out == s {
			return out
		}
		s = out
	}
	return s
}
