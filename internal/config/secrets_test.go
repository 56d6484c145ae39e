package config

import (
	"bytes"
	"strings"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	plaintext := "gateway-password-123"
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if ciphertext == plaintext {
		t.Error("ciphertext equals plaintext")
	}
	if !strings.Contains(ciphertext, ":") {
		t.Errorf("ciphertext %q missing nonce separator", ciphertext)
	}

	got, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != plaintext {
		t.Errorf("got %q, want %q", got, plaintext)
	}
}

func TestEncryptFreshNoncePerCall(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	if err != nil {
		t.Fatal(err)
	}
	a, err := enc.Encrypt("same secret")
	if err != nil {
		t.Fatal(err)
	}
	b, err := enc.Encrypt("same secret")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical output")
	}
}

func TestNewEncryptorRejectsBadKeyLength(t *testing.T) {
	if _, err := NewEncryptor([]byte("too short")); err == nil {
		t.Error("expected error for short key")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	if err != nil {
		t.Fatal(err)
	}
	ciphertext, err := enc.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}

	other, err := NewEncryptor(bytes.Repeat([]byte{0x7f}, 32))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Decrypt(ciphertext); err == nil {
		t.Error("expected decryption failure with wrong key")
	}
}

func TestDecryptMalformed(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	if err != nil {
		t.Fatal(err)
	}
	for _, input := range []string{"", "no-separator", "!!!:???", "YWJj:YWJj"} {
		if _, err := enc.Decrypt(input); err == nil {
			t.Errorf("Decrypt(%q): expected error", input)
		}
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a := DeriveKey("passphrase")
	b := DeriveKey("passphrase")
	if !bytes.Equal(a, b) {
		t.Error("same passphrase derived different keys")
	}
	if bytes.Equal(a, DeriveKey("other passphrase")) {
		t.Error("different passphrases derived the same key")
	}
	if len(a) != 32 {
		t.Errorf("derived key length = %d, want 32", len(a))
	}
}

func TestIsEncrypted(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	if err != nil {
		t.Fatal(err)
	}
	ciphertext, err := enc.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}

	if !IsEncrypted(ciphertext) {
		t.Errorf("IsEncrypted(%q) = false, want true", ciphertext)
	}
	for _, input := range []string{"", "plain password", "with:colon but not base64!"} {
		if IsEncrypted(input) {
			t.Errorf("IsEncrypted(%q) = true, want false", input)
		}
	}
}
