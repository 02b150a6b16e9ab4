package exchange

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvalis/riskbot/internal/crypto"
	"github.com/corvalis/riskbot/internal/domain"
)

type memKeyStore struct {
	byKey map[string]domain.ExchangeCredentials
}

func (s *memKeyStore) Upsert(_ context.Context, creds domain.ExchangeCredentials) error {
	if s.byKey == nil {
		s.byKey = map[string]domain.ExchangeCredentials{}
	}
	s.byKey[creds.UserID+"|"+creds.Venue] = creds
	return nil
}

func (s *memKeyStore) Get(_ context.Context, userID, venue string) (domain.ExchangeCredentials, error) {
	creds, ok := s.byKey[userID+"|"+venue]
	if !ok {
		return domain.ExchangeCredentials{}, domain.ErrNotFound
	}
	return creds, nil
}

func newVault(t *testing.T, password string, store *memKeyStore) *CredentialVault {
	t.Helper()
	km, err := crypto.NewKeyManager(password)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCredentialVault(store, km, logger)
}

func TestCredentialVault_StoreThenSignerRoundTrip(t *testing.T) {
	store := &memKeyStore{}
	v := newVault(t, "master", store)

	require.NoError(t, v.Store(context.Background(), "u-1", "binance", "api-key-1", "api-secret-1"))

	// Ciphertext at rest, not plaintext.
	creds, err := store.Get(context.Background(), "u-1", "binance")
	require.NoError(t, err)
	assert.NotContains(t, string(creds.APIKeyEnc), "api-key-1")
	assert.NotContains(t, string(creds.APISecretEnc), "api-secret-1")

	signer, err := v.SignerFor(context.Background(), "u-1", "binance")
	require.NoError(t, err)
	assert.Equal(t, "api-key-1", signer.Key)
	assert.Equal(t, "api-secret-1", signer.Secret)
}

func TestCredentialVault_WrongPasswordFailsDecryption(t *testing.T) {
	store := &memKeyStore{}
	writer := newVault(t, "right-password", store)
	require.NoError(t, writer.Store(context.Background(), "u-1", "binance", "k", "s"))

	reader := newVault(t, "wrong-password", store)
	_, err := reader.SignerFor(context.Background(), "u-1", "binance")
	assert.Error(t, err)
}

func TestCredentialVault_MissingCredentials(t *testing.T) {
	v := newVault(t, "master", &memKeyStore{})

	_, err := v.SignerFor(context.Background(), "u-1", "binance")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCredentialVault_RejectsEmptyInput(t *testing.T) {
	v := newVault(t, "master", &memKeyStore{})

	err := v.Store(context.Background(), "u-1", "binance", "", "secret")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPaperGateway_SignsRequestsWithAttachedSigner(t *testing.T) {
	g := newGateway(0)
	g.UseSigner(&crypto.RequestSigner{Key: "api-key-1", Secret: "api-secret-1"})

	headers := g.sign(context.Background(), "POST", "/api/v1/orders", "c-1")
	require.NotNil(t, headers)
	assert.Equal(t, "api-key-1", headers["X-RB-API-KEY"])
	assert.NotEmpty(t, headers["X-RB-TIMESTAMP"])
	assert.Len(t, headers["X-RB-SIGNATURE"], 64)

	_, err := g.SubmitOrder(context.Background(), marketBuy("c-1", 1))
	require.NoError(t, err)
}

func TestPaperGateway_NoSignerMeansNoHeaders(t *testing.T) {
	g := newGateway(0)
	assert.Nil(t, g.sign(context.Background(), "POST", "/api/v1/orders", ""))
}
