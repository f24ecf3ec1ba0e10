package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := New(testSecret)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestCodec_SealOpen(t *testing.T) {
	c := newTestCodec(t)
	id := uuid.New()
	in := Payload{Message: "on est d'accord", DateTime: "2024-05-01T20:00:00Z", Emoji: "🤝", Type: "dinner"}

	sealed, err := c.Seal(id, in)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed[0] != Version {
		t.Fatalf("expected version byte %d, got %d", Version, sealed[0])
	}
	if bytes.Contains(sealed, []byte(in.Message)) {
		t.Fatalf("sealed payload leaks plaintext")
	}

	out, err := c.Open(id, sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestCodec_NonceIsRandom(t *testing.T) {
	c := newTestCodec(t)
	id := uuid.New()
	p := Payload{Message: "same"}

	a, _ := c.Seal(id, p)
	b, _ := c.Seal(id, p)
	if bytes.Equal(a, b) {
		t.Fatalf("expected distinct ciphertexts for identical payloads")
	}
}

func TestCodec_BoundToConsentID(t *testing.T) {
	c := newTestCodec(t)
	sealed, _ := c.Seal(uuid.New(), Payload{Message: "hi"})

	if _, err := c.Open(uuid.New(), sealed); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected authentication error for swapped consent, got %v", err)
	}
}

func TestCodec_RejectsTampering(t *testing.T) {
	c := newTestCodec(t)
	id := uuid.New()
	sealed, _ := c.Seal(id, Payload{Message: "hi"})

	flipped := append([]byte(nil), sealed...)
	flipped[len(flipped)-1] ^= 0xff
	if _, err := c.Open(id, flipped); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}

	badVersion := append([]byte(nil), sealed...)
	badVersion[0] = 0x02
	if _, err := c.Open(id, badVersion); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}

	if _, err := c.Open(id, sealed[:Overhead-1]); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed error for short input, got %v", err)
	}
}

func TestCodec_WrongKey(t *testing.T) {
	id := uuid.New()
	sealed, _ := newTestCodec(t).Seal(id, Payload{Message: "hi"})

	other, err := New("another-secret-of-enough-length")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := other.Open(id, sealed); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestNew_RejectsShortSecret(t *testing.T) {
	if _, err := New("short"); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected weak secret error, got %v", err)
	}
}
