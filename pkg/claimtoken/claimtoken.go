package claimtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sortify-api/internal/models"
)

var (
	// ErrMalformed covers encoding, signature and discriminator failures.
	ErrMalformed = errors.New("claim token malformed")
	// ErrExpired is returned once a token is older than the signer's max age.
	ErrExpired = errors.New("claim token expired")
)

// Signer mints and validates smart-bin claim tokens of the form
// base64url(json payload) "." hex(hmac-sha256(payload)).
type Signer struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// Option customises a Signer.
type Option func(*Signer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSigner constructs a signer; maxAge defaults to 24h.
func NewSigner(secret string, maxAge time.Duration, opts ...Option) *Signer {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	s := &Signer{secret: []byte(secret), maxAge: maxAge, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxAge exposes the staleness window.
func (s *Signer) MaxAge() time.Duration {
	return s.maxAge
}

// Issue stamps a fresh transaction id and timestamp and signs the payload.
func (s *Signer) Issue(binID, wasteType string, estimatedWeight float64) (string, models.ClaimTokenPayload, error) {
	if binID == "" {
		return "", models.ClaimTokenPayload{}, fmt.Errorf("binID required")
	}
	payload := models.ClaimTokenPayload{
		Type:            models.ClaimTokenType,
		BinID:           binID,
		WasteType:       wasteType,
		EstimatedWeight: estimatedWeight,
		TransactionID:   uuid.NewString(),
		Timestamp:       s.now().UnixMilli(),
	}
	token, err := s.Sign(payload)
	if err != nil {
		return "", models.ClaimTokenPayload{}, err
	}
	return token, payload, nil
}

// Sign encodes an arbitrary payload.
func (s *Signer) Sign(payload models.ClaimTokenPayload) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("signing secret missing")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode claim payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return encoded + "." + s.mac(encoded), nil
}

// Parse validates signature, discriminator and age, returning the embedded payload.
// A token exactly maxAge old is still accepted.
func (s *Signer) Parse(token string) (models.ClaimTokenPayload, error) {
	var payload models.ClaimTokenPayload
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 2 {
		return payload, fmt.Errorf("%w: invalid token format", ErrMalformed)
	}
	if !hmac.Equal([]byte(s.mac(parts[0])), []byte(parts[1])) {
		return payload, fmt.Errorf("%w: invalid token signature", ErrMalformed)
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return payload, fmt.Errorf("%w: decode payload: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("%w: decode payload: %v", ErrMalformed, err)
	}
	if payload.Type != models.ClaimTokenType {
		return payload, fmt.Errorf("%w: unexpected token type %q", ErrMalformed, payload.Type)
	}
	if payload.BinID == "" || payload.TransactionID == "" || payload.Timestamp <= 0 {
		return payload, fmt.Errorf("%w: missing required fields", ErrMalformed)
	}
	if s.now().Sub(payload.IssuedAt()) > s.maxAge {
		return payload, ErrExpired
	}
	return payload, nil
}

func (s *Signer) mac(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(encoded))
	return hex.EncodeToString(mac.Sum(nil))
}
