package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"vbroker/internal/model"
)

// Snapshot captures the ledger state at a point in time. It is what the
// owning process persists before teardown; the ledger itself never writes.
type Snapshot struct {
	Timestamp  int64           `json:"timestamp"`
	InstanceID string          `json:"instanceId"`
	Currency   string          `json:"currency"`
	Cash       decimal.Decimal `json:"cash"`
	Allocated  decimal.Decimal `json:"allocated"`
	Positions  []PositionEntry `json:"positions"`
}

// PositionEntry is a single symbol entry in a snapshot.
type PositionEntry struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"qty"`
	AveragePrice decimal.Decimal `json:"avgPrice"`
	MarketPrice  decimal.Decimal `json:"marketPrice"`
}

// Snapshot builds a snapshot from the current state, positions sorted by
// symbol.
func (l *Ledger) Snapshot() Snapshot {
	holdings := l.Holdings()
	entries := make([]PositionEntry, 0, len(holdings))
	for _, p := range holdings {
		entries = append(entries, PositionEntry{
			Symbol:       p.Symbol,
			Quantity:     p.Quantity,
			AveragePrice: p.AveragePrice,
			MarketPrice:  p.MarketPrice,
		})
	}
	return Snapshot{
		Timestamp:  time.Now().UTC().UnixNano(),
		InstanceID: l.InstanceID(),
		Currency:   l.Currency(),
		Cash:       l.Cash(),
		Allocated:  l.Allocated(),
		Positions:  entries,
	}
}

// SeedPositions converts snapshot entries into ledger seed positions.
func (s Snapshot) SeedPositions() []model.Position {
	out := make([]model.Position, 0, len(s.Positions))
	for _, e := range s.Positions {
		out = append(out, model.Position{
			Symbol:       e.Symbol,
			Quantity:     e.Quantity,
			AveragePrice: e.AveragePrice,
			MarketPrice:  e.MarketPrice,
			MarketValue:  e.Quantity.Abs().Mul(e.MarketPrice),
		})
	}
	return out
}

// PositionsFromJSON decodes a prior positions snapshot. A malformed payload
// is recovered locally: the error is logged and the ledger starts with an
// empty position set.
func PositionsFromJSON(data []byte) []model.Position {
	if len(data) == 0 {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logs.Warnf("ledger: discard malformed positions snapshot, err: %+v", err)
		return nil
	}
	return snap.SeedPositions()
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
