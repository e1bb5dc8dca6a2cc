package service

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sortify-api/internal/dto"
	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

type memSessionStore struct {
	mu      sync.Mutex
	nonces  map[string]string
	revoked map[string]time.Duration
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{nonces: map[string]string{}, revoked: map[string]time.Duration{}}
}

func (m *memSessionStore) SaveNonce(_ context.Context, account, nonce string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonces[account] = nonce
	return nil
}

func (m *memSessionStore) ConsumeNonce(_ context.Context, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nonce, ok := m.nonces[account]
	if !ok {
		return "", appErrors.ErrCacheMiss
	}
	delete(m.nonces, account)
	return nonce, nil
}

func (m *memSessionStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenID] = ttl
	return nil
}

func (m *memSessionStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[tokenID]
	return ok, nil
}

func signChallenge(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func newIdentityFixture(t *testing.T, admins ...string) (*IdentityService, *memSessionStore) {
	t.Helper()
	sessions := newMemSessionStore()
	svc := NewIdentityService(sessions, nil, &auditStub{}, nil, IdentityConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "sortify-test",
		AdminAccounts:     admins,
	})
	return svc, sessions
}

func TestConnectWithSignedChallenge(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	account := crypto.PubkeyToAddress(key.PublicKey).Hex()
	svc, _ := newIdentityFixture(t)
	ctx := context.Background()

	challenge, err := svc.Nonce(ctx, dto.NonceRequest{Account: account})
	require.NoError(t, err)
	assert.Contains(t, challenge.Message, challenge.Nonce)

	session, err := svc.Connect(ctx, dto.ConnectRequest{Account: account, Signature: signChallenge(t, key, challenge.Message)})
	require.NoError(t, err)
	assert.Equal(t, account, session.Account)
	assert.Equal(t, models.RoleMember, session.Role)

	claims, err := svc.ValidateToken(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account, claims.Account)
	assert.NotEmpty(t, claims.ID)
}

func TestConnectRejectsWrongSignerAndReplay(t *testing.T) {
	key, _ := crypto.GenerateKey()
	intruder, _ := crypto.GenerateKey()
	account := crypto.PubkeyToAddress(key.PublicKey).Hex()
	svc, _ := newIdentityFixture(t)
	ctx := context.Background()

	challenge, err := svc.Nonce(ctx, dto.NonceRequest{Account: account})
	require.NoError(t, err)
	_, err = svc.Connect(ctx, dto.ConnectRequest{Account: account, Signature: signChallenge(t, intruder, challenge.Message)})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidSignature))

	// the failed attempt consumed the nonce
	_, err = svc.Connect(ctx, dto.ConnectRequest{Account: account, Signature: signChallenge(t, key, challenge.Message)})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	_, err = svc.Connect(ctx, dto.ConnectRequest{Account: account, Signature: "0x1234"})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestConnectGrantsAdminRole(t *testing.T) {
	key, _ := crypto.GenerateKey()
	account := crypto.PubkeyToAddress(key.PublicKey).Hex()
	svc, _ := newIdentityFixture(t, account)
	ctx := context.Background()

	challenge, err := svc.Nonce(ctx, dto.NonceRequest{Account: account})
	require.NoError(t, err)
	session, err := svc.Connect(ctx, dto.ConnectRequest{Account: account, Signature: signChallenge(t, key, challenge.Message)})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, session.Role)
}

func TestDisconnectRevokesToken(t *testing.T) {
	key, _ := crypto.GenerateKey()
	account := crypto.PubkeyToAddress(key.PublicKey).Hex()
	svc, sessions := newIdentityFixture(t)
	ctx := context.Background()

	challenge, _ := svc.Nonce(ctx, dto.NonceRequest{Account: account})
	session, err := svc.Connect(ctx, dto.ConnectRequest{Account: account, Signature: signChallenge(t, key, challenge.Message)})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(ctx, session.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Disconnect(ctx, claims))
	assert.Contains(t, sessions.revoked, claims.ID)
	_, err = svc.ValidateToken(ctx, session.AccessToken)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestNonceRejectsInvalidAccount(t *testing.T) {
	svc, _ := newIdentityFixture(t)
	_, err := svc.Nonce(context.Background(), dto.NonceRequest{Account: "not-an-address"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newIdentityFixture(t)
	_, err := svc.ValidateToken(context.Background(), "abc.def.ghi")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
