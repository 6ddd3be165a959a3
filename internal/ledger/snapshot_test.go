package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vbroker/internal/model"
)

func TestSnapshotRoundTrip(t *testing.T) {
	l := newTestLedger("100000")
	l.Track("o1")
	l.Track("o2")
	l.ApplyBatch([]model.OrderEvent{
		fillEvent("o1", "MSFT", model.SideBuy, model.OrderStatusFilled, "300", "10", "0"),
		fillEvent("o2", "AAPL", model.SideBuy, model.OrderStatusFilled, "100", "5", "0"),
	})

	path := filepath.Join(t.TempDir(), "ledger.json")
	snap := l.Snapshot()
	require.NoError(t, WriteSnapshot(path, snap))

	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "test-1", loaded.InstanceID)
	assert.Equal(t, "USD", loaded.Currency)
	assert.True(t, loaded.Cash.Equal(l.Cash()))

	// Entries sorted by symbol.
	require.Len(t, loaded.Positions, 2)
	assert.Equal(t, "AAPL", loaded.Positions[0].Symbol)
	assert.Equal(t, "MSFT", loaded.Positions[1].Symbol)

	restored := New(Config{
		AllocatedCapital: loaded.Allocated,
		Cash:             loaded.Cash,
		InstanceID:       loaded.InstanceID,
		Currency:         loaded.Currency,
		Positions:        loaded.SeedPositions(),
	})
	want, got := l.Holdings(), restored.Holdings()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Symbol, got[i].Symbol)
		assert.True(t, got[i].Quantity.Equal(want[i].Quantity))
		assert.True(t, got[i].AveragePrice.Equal(want[i].AveragePrice))
		assert.True(t, got[i].MarketPrice.Equal(want[i].MarketPrice))
	}
	assert.True(t, restored.Equity().Equal(l.Equity()))
}

func TestPositionsFromJSONMalformed(t *testing.T) {
	assert.Nil(t, PositionsFromJSON([]byte("{not json")))
	assert.Nil(t, PositionsFromJSON(nil))
}

func TestPositionsFromJSON(t *testing.T) {
	payload := []byte(`{"cash":"1","positions":[{"symbol":"AAPL","qty":"10","avgPrice":"100","marketPrice":"110"}]}`)
	positions := PositionsFromJSON(payload)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.True(t, positions[0].Quantity.Equal(dec("10")))
	assert.True(t, positions[0].MarketValue.Equal(dec("1100")))
}

func TestReadSnapshotMissingFile(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
