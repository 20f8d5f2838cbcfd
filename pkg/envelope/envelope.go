// Package envelope implements the authenticated-encryption container that
// wraps every workspace snapshot.
//
// Payload layout (all big-endian byte concatenation, no framing):
//
//	MAGIC(8) || SALT(16) || NONCE(12) || CIPHERTEXT+TAG
//
// The key is derived from the user passphrase with PBKDF2-HMAC-SHA256 over
// the embedded random salt. Salt and nonce are not secret; any holder of the
// correct passphrase can decrypt. The GCM tag is the sole integrity and
// authenticity check.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Magic identifies the envelope format and must never change; the desktop
// app has already produced archives carrying it.
var Magic = []byte("GTDENC01")

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32

	// Iterations is the fixed PBKDF2 iteration count. Both encrypt and
	// decrypt assume this value; changing it breaks decryption of every
	// previously written archive.
	Iterations = 600_000

	// headerSize is the minimum length of a valid payload.
	headerSize = 8 + saltSize + nonceSize
)

// ErrInvalidFormat reports a payload that is too short or does not start
// with the expected magic bytes. It is detected before any key derivation.
var ErrInvalidFormat = errors.New("invalid encrypted payload format")

// ErrAuthenticationFailed reports a GCM tag mismatch: wrong passphrase,
// truncation or tampering. No plaintext is ever returned alongside it.
var ErrAuthenticationFailed = errors.New("decryption failed: wrong passphrase or corrupted data")

// ErrEmptyPassphrase rejects empty or whitespace-only passphrases.
var ErrEmptyPassphrase = errors.New("encryption passphrase cannot be empty")

// deriveKey stretches the passphrase into an AES-256 key.
func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, Iterations, keySize, sha256.New)
}

// Encrypt seals plaintext under a passphrase-derived key and returns the
// self-describing payload.
func Encrypt(passphrase string, plaintext []byte) ([]byte, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrEmptyPassphrase
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate random salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate random nonce: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, headerSize+len(plaintext)+gcm.Overhead())
	out = append(out, Magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a payload produced by Encrypt. The format is validated
// before the (expensive) key derivation runs.
func Decrypt(passphrase string, payload []byte) ([]byte, error) {
	if len(payload) < headerSize {
		return nil, fmt.Errorf("%w: payload is %d bytes, need at least %d", ErrInvalidFormat, len(payload), headerSize)
	}
	if !bytes.Equal(payload[:len(Magic)], Magic) {
		return nil, fmt.Errorf("%w: magic header mismatch", ErrInvalidFormat)
	}

	salt := payload[len(Magic) : len(Magic)+saltSize]
	nonce := payload[len(Magic)+saltSize : headerSize]
	ciphertext := payload[headerSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return gcm, nil
}
