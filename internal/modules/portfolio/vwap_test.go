package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/asanchez/btcfolio/internal/domain"
)

func TestComputeVWAP_SingleBuyReturnsItsPrice(t *testing.T) {
	buys := []domain.Transaction{buyTx("2023-01-01", "0.5", "42000")}
	assert.True(t, ComputeVWAP(buys).Equal(dec("42000")))
}

func TestComputeVWAP_WeightsByQuantity(t *testing.T) {
	buys := []domain.Transaction{
		buyTx("2023-01-01", "1.0", "30000"),
		buyTx("2023-02-01", "3.0", "50000"),
	}
	// (30000 + 150000) / 4 = 45000
	assert.True(t, ComputeVWAP(buys).Equal(dec("45000")))
}

func TestComputeVWAP_SkipsZeroCostTransactions(t *testing.T) {
	free := buyTx("2023-01-01", "1.0", "0")
	free.Price = domain.Transaction{}.Price // no price information
	buys := []domain.Transaction{
		free,
		buyTx("2023-02-01", "1.0", "40000"),
	}
	assert.True(t, ComputeVWAP(buys).Equal(dec("40000")))
}

func TestComputeVWAP_EmptyReturnsZero(t *testing.T) {
	assert.True(t, ComputeVWAP(nil).IsZero())
}
