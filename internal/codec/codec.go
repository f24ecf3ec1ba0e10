package codec

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Version is the format byte prepended to every sealed payload. It is also
// part of the additional authenticated data.
const Version byte = 0x01

// Overhead is the number of bytes a sealed payload adds to its plaintext:
// version, nonce and Poly1305 tag.
const Overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// MinSecretLen is the shortest accepted PAYLOAD_SECRET_KEY.
const MinSecretLen = 16

var hkdfInfoPayload = []byte("consent.payload.v1")

var (
	// ErrWeakSecret is returned when the configured secret is too short.
	ErrWeakSecret = errors.New("codec: payload secret too short")

	// ErrMalformed is returned when a sealed payload is truncated or carries
	// an unknown version byte.
	ErrMalformed = errors.New("codec: malformed sealed payload")

	// ErrAuthentication is returned when AEAD verification fails: wrong key,
	// tampered bytes or a payload sealed for another consent.
	ErrAuthentication = errors.New("codec: payload authentication failed")
)

// Payload is the opaque content bundle two parties agree on.
type Payload struct {
	Message  string `cbor:"1,keyasint" json:"message"`
	DateTime string `cbor:"2,keyasint,omitempty" json:"dateTime,omitempty"`
	Emoji    string `cbor:"3,keyasint,omitempty" json:"emoji,omitempty"`
	Type     string `cbor:"4,keyasint,omitempty" json:"type,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Codec seals consent payloads with XChaCha20-Poly1305 under a key derived
// from the service secret. It is safe for concurrent use.
type Codec struct {
	key []byte
}

// New derives the sealing key from secret with HKDF-SHA256.
func New(secret string) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, MinSecretLen, len(secret))
	}
	reader := hkdf.New(sha256.New, []byte(secret), nil, hkdfInfoPayload)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive payload key: %w", err)
	}
	return &Codec{key: key}, nil
}

// Seal encodes p and encrypts it for the consent identified by consentID:
//
//	[version: 1 byte] [nonce: 24 bytes] [ciphertext+tag]
func (c *Codec) Seal(consentID uuid.UUID, p Payload) ([]byte, error) {
	plaintext, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 1+len(nonce), Overhead+len(plaintext))
	out[0] = Version
	copy(out[1:], nonce[:])
	return aead.Seal(out, nonce[:], plaintext, buildAAD(Version, consentID)), nil
}

// Open authenticates and decodes a payload produced by Seal for the same
// consent id.
func (c *Codec) Open(consentID uuid.UUID, sealed []byte) (Payload, error) {
	if len(sealed) < Overhead {
		return Payload{}, fmt.Errorf("%w: %d bytes", ErrMalformed, len(sealed))
	}
	if sealed[0] != Version {
		return Payload{}, fmt.Errorf("%w: version %d", ErrMalformed, sealed[0])
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return Payload{}, fmt.Errorf("create cipher: %w", err)
	}

	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, sealed[1+chacha20poly1305.NonceSizeX:], buildAAD(sealed[0], consentID))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	var p Payload
	if err := decMode.Unmarshal(plaintext, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return p, nil
}

func buildAAD(version byte, consentID uuid.UUID) []byte {
	aad := make([]byte, 1+len(consentID))
	aad[0] = version
	copy(aad[1:], consentID[:])
	return aad
}
