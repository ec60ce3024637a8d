// Package accounts persists the single configured exchange account and
// handles at-rest encryption of its API credentials.
package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/asanchez/btcfolio/internal/domain"
)

// ErrNotFound is returned when no account row exists yet.
var ErrNotFound = errors.New("account not found")

// Repository handles account persistence. The sync orchestrator mutates
// status and last-sync; the settings endpoint mutates name and keys.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new account repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

// Get returns the account. There is exactly one; callers use Bootstrap
// at startup to guarantee it exists.
func (r *Repository) Get() (*domain.Account, error) {
	row := r.db.QueryRow(`
		SELECT id, name, api_key_encrypted, api_secret_encrypted,
		       last_sync_at, sync_status, created_at
		FROM accounts LIMIT 1`)

	var (
		acc        domain.Account
		id         string
		lastSync   sql.NullInt64
		createdAt  int64
		syncStatus string
	)
	err := row.Scan(&id, &acc.Name, &acc.APIKeyEncrypted, &acc.APISecretEncrypted,
		&lastSync, &syncStatus, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	acc.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt account id: %w", err)
	}
	acc.SyncStatus = domain.SyncStatus(syncStatus)
	acc.CreatedAt = time.UnixMilli(createdAt).UTC()
	if lastSync.Valid {
		t := time.UnixMilli(lastSync.Int64).UTC()
		acc.LastSyncAt = &t
	}
	return &acc, nil
}

// Bootstrap creates the account row if none exists and returns it.
func (r *Repository) Bootstrap(name string) (*domain.Account, error) {
	acc, err := r.Get()
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	id := uuid.New()
	now := time.Now().UTC()
	_, err = r.db.Exec(`
		INSERT INTO accounts (id, name, sync_status, created_at)
		VALUES (?, ?, ?, ?)`,
		id.String(), name, string(domain.SyncIdle), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	r.log.Info().Str("account_id", id.String()).Msg("Account created")
	return &domain.Account{
		ID:         id,
		Name:       name,
		SyncStatus: domain.SyncIdle,
		CreatedAt:  now,
	}, nil
}

// SetSyncStatus transitions the sync state machine and stamps
// last_sync_at. Committed immediately so the HTTP layer observes it.
func (r *Repository) SetSyncStatus(accountID uuid.UUID, status domain.SyncStatus) error {
	_, err := r.db.Exec(`
		UPDATE accounts SET sync_status = ?, last_sync_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().UnixMilli(), accountID.String())
	if err != nil {
		return fmt.Errorf("failed to set sync status: %w", err)
	}
	return nil
}

// UpdateSettings stores the display name and the already-encrypted API
// credentials. Empty credential strings leave the stored values untouched.
func (r *Repository) UpdateSettings(accountID uuid.UUID, name, encKey, encSecret string) error {
	_, err := r.db.Exec(`
		UPDATE accounts SET
			name = ?,
			api_key_encrypted    = CASE WHEN ? != '' THEN ? ELSE api_key_encrypted END,
			api_secret_encrypted = CASE WHEN ? != '' THEN ? ELSE api_secret_encrypted END
		WHERE id = ?`,
		name, encKey, encKey, encSecret, encSecret, accountID.String())
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}
