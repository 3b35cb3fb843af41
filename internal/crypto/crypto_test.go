package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

// testMasterKey returns a valid base64-encoded 32-byte key for tests.
func testMasterKey() string {
	return base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testMasterKey())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return e
}

func TestNewRejectsBadMasterKeys(t *testing.T) {
	cases := []string{
		"",
		"not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte("short")),
		base64.StdEncoding.EncodeToString(make([]byte, 31)),
		base64.StdEncoding.EncodeToString(make([]byte, 33)),
	}
	for _, c := range cases {
		if _, err := New(c); !errors.Is(err, ErrMasterKey) {
			t.Errorf("expected ErrMasterKey for %q, got %v", c, err)
		}
	}
	if _, err := New(base64.StdEncoding.EncodeToString(make([]byte, 32))); err != nil {
		t.Fatalf("32-byte key rejected: %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	plaintexts := []string{
		"mysecretkey123",
		"sk-" + strings.Repeat("a", 48),
		"key with spaces and ünïcode ✓",
		strings.Repeat("x", 4096),
	}
	for _, pt := range plaintexts {
		ct, nonce, err := e.Encrypt(pt)
		if err != nil {
			t.Fatalf("Encrypt error: %v", err)
		}
		got, err := e.Decrypt(ct, nonce)
		if err != nil {
			t.Fatalf("Decrypt error: %v", err)
		}
		if got != pt {
			t.Fatalf("round trip mismatch: got %q want %q", got, pt)
		}
	}
}

func TestNonceUniqueness(t *testing.T) {
	e := newTestEngine(t)
	const plaintext = "same-plaintext-every-time"
	seenNonce := make(map[string]struct{})
	seenCT := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		ct, nonce, err := e.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt error: %v", err)
		}
		if _, dup := seenNonce[nonce]; dup {
			t.Fatalf("nonce reused: %s", nonce)
		}
		if _, dup := seenCT[ct]; dup {
			t.Fatalf("ciphertext repeated for identical plaintext")
		}
		seenNonce[nonce] = struct{}{}
		seenCT[ct] = struct{}{}
		raw, err := base64.StdEncoding.DecodeString(nonce)
		if err != nil || len(raw) != NonceSize {
			t.Fatalf("nonce not %d raw bytes: %q", NonceSize, nonce)
		}
	}
}

// TestTamperDetection flips every bit of the ciphertext and nonce in turn
// and requires decryption to fail rather than return wrong plaintext.
func TestTamperDetection(t *testing.T) {
	e := newTestEngine(t)
	ct64, nonce64, err := e.Encrypt("tamper-evident-secret")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	ct, _ := base64.StdEncoding.DecodeString(ct64)
	nonce, _ := base64.StdEncoding.DecodeString(nonce64)

	for i := 0; i < len(ct)*8; i++ {
		mutated := make([]byte, len(ct))
		copy(mutated, ct)
		mutated[i/8] ^= 1 << (i % 8)
		if _, err := e.Decrypt(base64.StdEncoding.EncodeToString(mutated), nonce64); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("bit flip %d in ciphertext not detected: %v", i, err)
		}
	}
	for i := 0; i < len(nonce)*8; i++ {
		mutated := make([]byte, len(nonce))
		copy(mutated, nonce)
		mutated[i/8] ^= 1 << (i % 8)
		if _, err := e.Decrypt(ct64, base64.StdEncoding.EncodeToString(mutated)); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("bit flip %d in nonce not detected: %v", i, err)
		}
	}
}

func TestDecryptMalformedInputs(t *testing.T) {
	e := newTestEngine(t)
	ct, nonce, err := e.Encrypt("well-formed-secret")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	cases := []struct{ name, ct, nonce string }{
		{"bad ciphertext encoding", "%%%not-base64%%%", nonce},
		{"bad nonce encoding", ct, "%%%not-base64%%%"},
		{"short nonce", ct, base64.StdEncoding.EncodeToString(make([]byte, 8))},
		{"long nonce", ct, base64.StdEncoding.EncodeToString(make([]byte, 16))},
		{"truncated ciphertext", base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), nonce},
		{"empty ciphertext", "", nonce},
	}
	for _, tc := range cases {
		if _, err := e.Decrypt(tc.ct, tc.nonce); !errors.Is(err, ErrInvalidCiphertext) {
			t.Errorf("%s: expected ErrInvalidCiphertext, got %v", tc.name, err)
		}
	}
}

// TestWrongKey verifies data sealed under one master key cannot be opened
// under another.
func TestWrongKey(t *testing.T) {
	a := newTestEngine(t)
	b, err := New(base64.StdEncoding.EncodeToString([]byte("fedcba9876543210fedcba9876543210")))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ct, nonce, err := a.Encrypt("cross-key-secret")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	if _, err := b.Decrypt(ct, nonce); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed under wrong key, got %v", err)
	}
}
