package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for passphrase-derived keys.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// keySalt is a fixed application salt for passphrase derivation. The
// derivation must be deterministic so the same passphrase always yields
// the same key across restarts.
const keySalt = "roclink-gateway-credentials-v1"

// ErrNoEncryptionKey is returned when an encrypt/decrypt operation is
// attempted without a configured key.
var ErrNoEncryptionKey = errors.New("no encryption key configured")

// DeriveKey derives a 32-byte AES key from a passphrase using Argon2id.
func DeriveKey(passphrase string) []byte {
	return argon2.IDKey([]byte(passphrase), []byte(keySalt), argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Encryptor encrypts and decrypts short secrets with AES-256-GCM. The
// ciphertext format is base64(nonce) + ":" + base64(ciphertext), with a
// fresh random nonce per encryption.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an Encryptor from a 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt encrypts the plaintext and returns the encoded ciphertext.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := e.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce) + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decodes and decrypts a ciphertext produced by Encrypt.
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	noncePart, cipherPart, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", errors.New("malformed ciphertext: missing nonce separator")
	}
	nonce, err := base64.StdEncoding.DecodeString(noncePart)
	if err != nil {
		return "", fmt.Errorf("decoding nonce: %w", err)
	}
	if len(nonce) != e.aead.NonceSize() {
		return "", fmt.Errorf("nonce must be %d bytes, got %d", e.aead.NonceSize(), len(nonce))
	}
	sealed, err := base64.StdEncoding.DecodeString(cipherPart)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	plain, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plain), nil
}

// IsEncrypted reports whether the value looks like Encrypt output. Used to
// avoid double-encrypting values read back from the config file.
func IsEncrypted(value string) bool {
	noncePart, cipherPart, ok := strings.Cut(value, ":")
	if !ok || noncePart == "" || cipherPart == "" {
		return false
	}
	if _, err := base64.StdEncoding.DecodeString(noncePart); err != nil {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(cipherPart)
	return err == nil
}
