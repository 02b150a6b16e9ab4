package exchange

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corvalis/riskbot/internal/crypto"
	"github.com/corvalis/riskbot/internal/domain"
)

// CredentialVault stores venue API credentials encrypted at rest and hands
// out request signers built from them. Plaintext only exists in memory on
// the way in (import) and on the way out (signer construction); the key
// store never sees it.
type CredentialVault struct {
	keys   domain.KeyStore
	km     *crypto.KeyManager
	logger *slog.Logger
}

// NewCredentialVault creates a vault over the given key store and manager.
func NewCredentialVault(keys domain.KeyStore, km *crypto.KeyManager, logger *slog.Logger) *CredentialVault {
	return &CredentialVault{
		keys:   keys,
		km:     km,
		logger: logger.With(slog.String("component", "credential_vault")),
	}
}

// Store encrypts an API key pair and upserts it for (userID, venue).
func (v *CredentialVault) Store(ctx context.Context, userID, venue, apiKey, apiSecret string) error {
	if userID == "" || venue == "" || apiKey == "" || apiSecret == "" {
		return fmt.Errorf("exchange: store credentials: %w", domain.ErrInvalidInput)
	}

	keyEnc, err := v.km.EncryptSecret(apiKey)
	if err != nil {
		return fmt.Errorf("exchange: encrypt api key: %w", err)
	}
	secretEnc, err := v.km.EncryptSecret(apiSecret)
	if err != nil {
		return fmt.Errorf("exchange: encrypt api secret: %w", err)
	}

	if err := v.keys.Upsert(ctx, domain.ExchangeCredentials{
		UserID:       userID,
		Venue:        venue,
		APIKeyEnc:    keyEnc,
		APISecretEnc: secretEnc,
	}); err != nil {
		return fmt.Errorf("exchange: persist credentials: %w", err)
	}

	v.logger.InfoContext(ctx, "credentials stored",
		slog.String("user_id", userID),
		slog.String("venue", venue))
	return nil
}

// SignerFor decrypts the stored credentials for (userID, venue) and returns
// a signer for authenticated venue requests. Callers get domain.ErrNotFound
// when no credentials were imported.
func (v *CredentialVault) SignerFor(ctx context.Context, userID, venue string) (*crypto.RequestSigner, error) {
	creds, err := v.keys.Get(ctx, userID, venue)
	if err != nil {
		return nil, fmt.Errorf("exchange: load credentials %s@%s: %w", userID, venue, err)
	}

	apiKey, err := v.km.DecryptSecret(creds.APIKeyEnc)
	if err != nil {
		return nil, fmt.Errorf("exchange: decrypt api key: %w", err)
	}
	apiSecret, err := v.km.DecryptSecret(creds.APISecretEnc)
	if err != nil {
		return nil, fmt.Errorf("exchange: decrypt api secret: %w", err)
	}

	return &crypto.RequestSigner{Key: apiKey, Secret: apiSecret}, nil
}
