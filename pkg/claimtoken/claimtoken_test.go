package claimtoken

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sortify-api/internal/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSignerIssueAndParse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := NewSigner("secret", 24*time.Hour, WithClock(fixedClock(now)))

	token, issued, err := signer.Issue("bin-7", "plastic", 1.25)
	require.NoError(t, err)
	require.NotEmpty(t, issued.TransactionID)
	require.Equal(t, models.ClaimTokenType, issued.Type)

	payload, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, issued, payload)
}

func TestSignerRejectsStaleTokens(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := NewSigner("secret", 0).Sign(models.ClaimTokenPayload{
		Type:          models.ClaimTokenType,
		BinID:         "bin-1",
		WasteType:     "paper",
		TransactionID: "tx-1",
		Timestamp:     issuedAt.UnixMilli(),
	})
	require.NoError(t, err)

	justInside := NewSigner("secret", 24*time.Hour, WithClock(fixedClock(issuedAt.Add(24*time.Hour-time.Second))))
	_, err = justInside.Parse(token)
	require.NoError(t, err)

	atCutoff := NewSigner("secret", 24*time.Hour, WithClock(fixedClock(issuedAt.Add(24*time.Hour))))
	_, err = atCutoff.Parse(token)
	require.NoError(t, err)

	past := NewSigner("secret", 24*time.Hour, WithClock(fixedClock(issuedAt.Add(24*time.Hour+time.Second))))
	_, err = past.Parse(token)
	require.ErrorIs(t, err, ErrExpired)
}

func TestSignerRejectsWrongDiscriminator(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, err := signer.Sign(models.ClaimTokenPayload{
		Type:          "other-app",
		BinID:         "bin-1",
		TransactionID: "tx-1",
		Timestamp:     time.Now().UnixMilli(),
	})
	require.NoError(t, err)

	_, err = signer.Parse(token)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestSignerRejectsTamperedSignature(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, _, err := signer.Issue("bin-1", "glass", 2)
	require.NoError(t, err)

	other := NewSigner("another-secret", time.Hour)
	_, err = other.Parse(token)
	require.ErrorIs(t, err, ErrMalformed)

	_, err = signer.Parse(strings.Replace(token, ".", "", 1))
	require.ErrorIs(t, err, ErrMalformed)
}
