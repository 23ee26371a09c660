package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidPayload covers tampered, truncated or foreign payloads.
var ErrInvalidPayload = errors.New("invalid QR payload")

// Payload is what a scanner decodes from a guest's QR code.
type Payload struct {
	EventID  string `json:"eventId"`
	TicketID string `json:"ticketId"`
}

type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("QR secret is empty")
	}
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes

	block, err := aes.NewCipher(hashed[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts and authenticates p into a URL-safe string.
func (s *Sealer) Seal(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := s.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Any tampering yields ErrInvalidPayload.
func (s *Sealer) Open(encoded string) (Payload, error) {
	var p Payload

	raw, err := base64.RawURLEncoding.Strict().DecodeString(encoded)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize {
		return p, fmt.Errorf("%w: too short", ErrInvalidPayload)
	}

	data, err := s.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.EventID == "" || p.TicketID == "" {
		return p, fmt.Errorf("%w: missing ids", ErrInvalidPayload)
	}
	return p, nil
}
