package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvalis/riskbot/internal/domain"
)

// KeyStore implements domain.KeyStore using PostgreSQL. Credential
// ciphertexts are stored as-is; encryption and decryption belong to the key
// manager.
type KeyStore struct {
	pool *pgxpool.Pool
}

// NewKeyStore creates a KeyStore backed by the given pool.
func NewKeyStore(pool *pgxpool.Pool) *KeyStore {
	return &KeyStore{pool: pool}
}

// Upsert inserts or replaces the encrypted credentials for a (user, venue).
func (s *KeyStore) Upsert(ctx context.Context, creds domain.ExchangeCredentials) error {
	const query = `
		INSERT INTO exchange_keys (user_id, venue, api_key_enc, api_secret_enc, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, venue) DO UPDATE SET
			api_key_enc = EXCLUDED.api_key_enc,
			api_secret_enc = EXCLUDED.api_secret_enc,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		creds.UserID, creds.Venue, creds.APIKeyEnc, creds.APISecretEnc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: upsert exchange keys %s/%s: %w", creds.UserID, creds.Venue, err)
	}
	return nil
}

// Get returns the encrypted credentials for a (user, venue). It returns
// domain.ErrNotFound when none are stored.
func (s *KeyStore) Get(ctx context.Context, userID, venue string) (domain.ExchangeCredentials, error) {
	const query = `
		SELECT user_id, venue, api_key_enc, api_secret_enc, updated_at
		FROM exchange_keys
		WHERE user_id = $1 AND venue = $2`

	var creds domain.ExchangeCredentials
	err := s.pool.QueryRow(ctx, query, userID, venue).Scan(
		&creds.UserID, &creds.Venue, &creds.APIKeyEnc, &creds.APISecretEnc, &creds.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExchangeCredentials{}, domain.ErrNotFound
		}
		return domain.ExchangeCredentials{}, fmt.Errorf("postgres: get exchange keys %s/%s: %w", userID, venue, err)
	}
	return creds, nil
}

// Compile-time interface check.
var _ domain.KeyStore = (*KeyStore)(nil)
