// Package crypto encrypts provider API keys at rest with AES-256-GCM.
// Ciphertext and nonce are stored as separate hex columns so a credential
// row is unreadable without the service's master key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// KeySize is the required master key length (AES-256).
const KeySize = 32

func validateKey(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("key length must be %d bytes, got %d bytes", KeySize, len(key))
	}
	return nil
}

// Encrypt seals plaintext under key with a random nonce and returns the
// hex-encoded ciphertext and nonce.
func Encrypt(key []byte, plaintext string) (ciphertextHex, nonceHex string, err error) {
	if err := validateKey(key); err != nil {
		return "", "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", "", fmt.Errorf("failed to create GCM cipher: %w", err)
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), hex.EncodeToString(nonce), nil
}

// Decrypt opens a hex-encoded ciphertext/nonce pair produced by Encrypt.
// Tampered or wrong-key ciphertext fails GCM authentication.
func Decrypt(key []byte, ciphertextHex, nonceHex string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode nonce: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM cipher: %w", err)
	}

	if len(nonce) != aesgcm.NonceSize() {
		return "", fmt.Errorf("nonce length must be %d bytes, got %d bytes", aesgcm.NonceSize(), len(nonce))
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
