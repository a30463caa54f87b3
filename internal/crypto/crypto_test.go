package crypto

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, KeySize)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey()

	ciphertext, nonce, err := Encrypt(key, "sk-live-secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if ciphertext == "" || nonce == "" {
		t.Fatal("expected non-empty ciphertext and nonce")
	}

	plaintext, err := Decrypt(key, ciphertext, nonce)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if plaintext != "sk-live-secret" {
		t.Errorf("plaintext = %q", plaintext)
	}
}

func TestEncryptUniqueNonces(t *testing.T) {
	key := testKey()

	c1, n1, err := Encrypt(key, "same input")
	if err != nil {
		t.Fatal(err)
	}
	c2, n2, err := Encrypt(key, "same input")
	if err != nil {
		t.Fatal(err)
	}

	if n1 == n2 {
		t.Error("nonces must be unique per encryption")
	}
	if c1 == c2 {
		t.Error("identical plaintexts must not produce identical ciphertexts")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	ciphertext, nonce, err := Encrypt(testKey(), "secret")
	if err != nil {
		t.Fatal(err)
	}

	wrong := bytes.Repeat([]byte{0x13}, KeySize)
	if _, err := Decrypt(wrong, ciphertext, nonce); err == nil {
		t.Error("decryption with the wrong key must fail")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	key := testKey()
	ciphertext, nonce, err := Encrypt(key, "secret")
	if err != nil {
		t.Fatal(err)
	}

	tampered := []byte(ciphertext)
	if tampered[0] == 'f' {
		tampered[0] = '0'
	} else {
		tampered[0] = 'f'
	}

	if _, err := Decrypt(key, string(tampered), nonce); err == nil {
		t.Error("tampered ciphertext must fail authentication")
	}
}

func TestKeyLengthValidation(t *testing.T) {
	if _, _, err := Encrypt([]byte("short"), "x"); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := Decrypt([]byte("short"), "00", "00"); err == nil {
		t.Error("expected error for short key")
	}
}
