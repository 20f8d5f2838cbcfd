package envelope

import (
	"bytes"
	"errors"
	"testing"
)

// Key derivation is deliberately expensive, so the tests share one payload
// instead of re-encrypting per case.
func sealTestPayload(t *testing.T, passphrase string, plaintext []byte) []byte {
	t.Helper()
	payload, err := Encrypt(passphrase, plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	return payload
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("three files, one workspace, many hopes")
	payload := sealTestPayload(t, "correct horse", plaintext)

	if len(payload) < 36 {
		t.Fatalf("payload too short: %d bytes", len(payload))
	}
	if !bytes.Equal(payload[:8], Magic) {
		t.Errorf("payload does not start with magic header")
	}
	if bytes.Contains(payload, plaintext) {
		t.Errorf("payload leaks plaintext")
	}

	got, err := Decrypt("correct horse", payload)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: got %q, want %q", got, plaintext)
	}

	t.Run("TamperedCiphertextFailsAuthentication", func(t *testing.T) {
		tampered := bytes.Clone(payload)
		tampered[len(tampered)-1] ^= 0x01 // Flip one bit in the tag region.
		if _, err := Decrypt("correct horse", tampered); !errors.Is(err, ErrAuthenticationFailed) {
			t.Errorf("expected ErrAuthenticationFailed, got %v", err)
		}
	})

	t.Run("WrongPassphraseFailsAuthentication", func(t *testing.T) {
		if _, err := Decrypt("incorrect horse", payload); !errors.Is(err, ErrAuthenticationFailed) {
			t.Errorf("expected ErrAuthenticationFailed, got %v", err)
		}
	})

	t.Run("TruncatedCiphertextFailsAuthentication", func(t *testing.T) {
		if _, err := Decrypt("correct horse", payload[:len(payload)-4]); !errors.Is(err, ErrAuthenticationFailed) {
			t.Errorf("expected ErrAuthenticationFailed, got %v", err)
		}
	})
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	payload := sealTestPayload(t, "key", nil)
	got, err := Decrypt("key", payload)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty plaintext, got %d bytes", len(got))
	}
}

func TestEncryptRejectsEmptyPassphrase(t *testing.T) {
	for _, passphrase := range []string{"", "   ", "\t\n"} {
		if _, err := Encrypt(passphrase, []byte("data")); !errors.Is(err, ErrEmptyPassphrase) {
			t.Errorf("Encrypt(%q) error = %v, want ErrEmptyPassphrase", passphrase, err)
		}
	}
}

// Format rejection must happen before key derivation (these cases return in
// microseconds, not the ~quarter second a PBKDF2 run takes).
func TestDecryptRejectsMalformedPayloads(t *testing.T) {
	testCases := []struct {
		name    string
		payload []byte
	}{
		{"Empty", nil},
		{"TooShort", []byte("GTDENC01 too short")},
		{"ExactlyOneByteShort", make([]byte, 35)},
		{"BadMagic", append([]byte("NOTMAGIC"), make([]byte, 40)...)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decrypt("any", tc.payload); !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("expected ErrInvalidFormat, got %v", err)
			}
		})
	}
}
