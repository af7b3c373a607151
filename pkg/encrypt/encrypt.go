// Package encrypt seals small payloads with XChaCha20-Poly1305 so they can
// be stored in a session and trusted when read back.
package encrypt

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// keyPrefix marks an encoded key so config values are self-describing.
const keyPrefix = "base64:"

var (
	// ErrInvalidKey is returned for keys of the wrong size or encoding.
	ErrInvalidKey = errors.New("encrypt: invalid key")

	// ErrInvalidPayload is returned when a token is malformed or fails
	// authentication.
	ErrInvalidPayload = errors.New("encrypt: invalid payload")
)

// Encrypter seals and opens tokens. It is safe for concurrent use.
type Encrypter struct {
	aead cipher.AEAD
}

// New creates an Encrypter from a 32-byte key.
func New(key []byte) (*Encrypter, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Encrypter{aead: aead}, nil
}

// NewFromString creates an Encrypter from an encoded key (see ParseKey).
func NewFromString(s string) (*Encrypter, error) {
	key, err := ParseKey(s)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// GenerateKey returns a fresh random key in its encoded form.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return keyPrefix + base64.StdEncoding.EncodeToString(key), nil
}

// ParseKey decodes a "base64:..." key. The prefix is optional.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), keyPrefix)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	return key, nil
}

// Seal encrypts plaintext and returns a URL-safe token of nonce||ciphertext.
// The additional data is authenticated but not stored; Open must be given
// the same value.
func (e *Encrypter) Seal(plaintext, additional []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, additional)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open authenticates and decrypts a token produced by Seal.
func (e *Encrypter) Open(token string, additional []byte) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	ns := e.aead.NonceSize()
	if len(raw) < ns+e.aead.Overhead() {
		return nil, fmt.Errorf("%w: too short", ErrInvalidPayload)
	}
	plain, err := e.aead.Open(nil, raw[:ns], raw[ns:], additional)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return plain, nil
}

// SealJSON marshals v and seals it.
func (e *Encrypter) SealJSON(v any, additional []byte) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return e.Seal(data, additional)
}

// OpenJSON opens token and unmarshals it into v. Numbers decode as
// json.Number so integer values survive the round trip unchanged.
func (e *Encrypter) OpenJSON(token string, additional []byte, v any) error {
	plain, err := e.Open(token, additional)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(strings.NewReader(string(plain)))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
