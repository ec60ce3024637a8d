package balances

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asanchez/btcfolio/internal/database"
	"github.com/asanchez/btcfolio/internal/domain"
)

func testRepo(t *testing.T) (*Repository, uuid.UUID) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(database.Config{
		Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		Name: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	accountID := uuid.New()
	_, err = db.Conn().Exec(`INSERT INTO accounts (id, name, sync_status, created_at) VALUES (?, 'test', 'idle', 0)`,
		accountID.String())
	require.NoError(t, err)

	return NewRepository(db.Conn(), zerolog.Nop()), accountID
}

func snap(accountID uuid.UUID, asset, free string, at time.Time) domain.BalanceSnapshot {
	return domain.BalanceSnapshot{
		AccountID:  accountID,
		Asset:      asset,
		Free:       decimal.RequireFromString(free),
		Locked:     decimal.Zero,
		SnapshotAt: at,
	}
}

func TestLatest_PicksNewestPerAsset(t *testing.T) {
	repo, accountID := testRepo(t)
	earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	require.NoError(t, repo.Append([]domain.BalanceSnapshot{
		snap(accountID, "BTC", "1.0", earlier),
		snap(accountID, "USDT", "500", earlier),
	}))
	require.NoError(t, repo.Append([]domain.BalanceSnapshot{
		snap(accountID, "BTC", "0.8", later),
	}))

	latest, err := repo.Latest(accountID)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	byAsset := map[string]domain.BalanceSnapshot{}
	for _, s := range latest {
		byAsset[s.Asset] = s
	}
	assert.True(t, byAsset["BTC"].Free.Equal(decimal.RequireFromString("0.8")))
	assert.Equal(t, later, byAsset["BTC"].SnapshotAt)
	// USDT was not observed again; its older snapshot still counts.
	assert.True(t, byAsset["USDT"].Free.Equal(decimal.RequireFromString("500")))
}

func TestAppend_DuplicateObservationIsIgnored(t *testing.T) {
	repo, accountID := testRepo(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append([]domain.BalanceSnapshot{snap(accountID, "BTC", "1.0", at)}))
	require.NoError(t, repo.Append([]domain.BalanceSnapshot{snap(accountID, "BTC", "1.0", at)}))

	latest, err := repo.Latest(accountID)
	require.NoError(t, err)
	assert.Len(t, latest, 1)
}

func TestLatestQuantities_SumsFreeAndLocked(t *testing.T) {
	repo, accountID := testRepo(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s := snap(accountID, "BTC", "1.0", at)
	s.Locked = decimal.RequireFromString("0.25")
	require.NoError(t, repo.Append([]domain.BalanceSnapshot{s}))

	quantities, err := repo.LatestQuantities(accountID)
	require.NoError(t, err)
	assert.True(t, quantities["BTC"].Equal(decimal.RequireFromString("1.25")))
}
