// Package ledger maintains the isolated cash/position record of one
// strategy instance. The ledger is updated exclusively from fill events for
// orders it tracks, and is the authority for admission checks and for the
// virtual balance/holdings queries.
package ledger

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"vbroker/internal/model"
)

// Config seeds a new ledger. Cash may differ from AllocatedCapital when
// restoring a prior session. Positions with zero quantity are dropped.
type Config struct {
	AllocatedCapital decimal.Decimal
	Cash             decimal.Decimal
	InstanceID       string
	Currency         string
	Positions        []model.Position
}

// Ledger holds the virtual cash/position state. All fields are guarded by
// one exclusive lock; the lock is never held across a call into the
// wrapped brokerage or into observers.
type Ledger struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]*model.Position
	tracked   map[string]struct{}

	allocated  decimal.Decimal
	instanceID string
	currency   string
}

// New creates a ledger from the given seed.
func New(cfg Config) *Ledger {
	l := &Ledger{
		cash:       cfg.Cash,
		positions:  make(map[string]*model.Position, len(cfg.Positions)),
		tracked:    make(map[string]struct{}),
		allocated:  cfg.AllocatedCapital,
		instanceID: cfg.InstanceID,
		currency:   cfg.Currency,
	}
	for _, p := range cfg.Positions {
		if p.Quantity.IsZero() {
			continue
		}
		cp := p
		l.positions[p.Symbol] = &cp
	}
	return l
}

// Cash returns the current virtual cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Allocated returns the initial capital grant. Reporting only.
func (l *Ledger) Allocated() decimal.Decimal {
	return l.allocated
}

// InstanceID returns the strategy instance identifier.
func (l *Ledger) InstanceID() string {
	return l.instanceID
}

// Currency returns the ledger currency code.
func (l *Ledger) Currency() string {
	return l.currency
}

// Holdings returns a copy of all open positions. Symbols with zero
// quantity never appear.
func (l *Ledger) Holdings() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Equity returns cash plus the signed mark value of all open positions.
func (l *Ledger) Equity() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	equity := l.cash
	for _, p := range l.positions {
		equity = equity.Add(p.Quantity.Mul(p.MarketPrice))
	}
	return equity
}

// MarkPrice returns the last known mark for a symbol with an open position.
func (l *Ledger) MarkPrice(symbol string) (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[symbol]
	if !ok {
		return decimal.Zero, false
	}
	return p.MarketPrice, true
}

// Track records an order id this ledger is responsible for.
func (l *Ledger) Track(orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracked[orderID] = struct{}{}
}

// Untrack drops an order id.
func (l *Ledger) Untrack(orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tracked, orderID)
}

// IsTracked reports whether the order id belongs to this ledger.
func (l *Ledger) IsTracked(orderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tracked[orderID]
	return ok
}

// TrackedIDs returns all currently tracked order ids.
func (l *Ledger) TrackedIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.tracked))
	for id := range l.tracked {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ApplyBatch applies one delivered batch of order-status events in delivery
// order, holding the lock for the whole batch so admission checks never
// observe a partially applied fill. Events for untracked ids mutate
// nothing. A terminal status removes the id from the tracked set after any
// final fill has been applied. The returned slice holds the events that
// mutated cash or positions.
func (l *Ledger) ApplyBatch(batch []model.OrderEvent) []model.OrderEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	var applied []model.OrderEvent
	for _, e := range batch {
		if _, ok := l.tracked[e.OrderID]; !ok {
			continue
		}
		if e.Status.IsFill() {
			l.applyFill(e)
			applied = append(applied, e)
		}
		if e.Status.IsTerminal() {
			delete(l.tracked, e.OrderID)
		}
	}
	return applied
}

// applyFill mutates cash and the position for one fill. Caller holds the lock.
func (l *Ledger) applyFill(e model.OrderEvent) {
	fillQty := e.FillQuantity.Abs()
	fillValue := e.FillPrice.Mul(fillQty)

	// Fees always reduce cash regardless of direction.
	if e.Side == model.SideBuy {
		l.cash = l.cash.Sub(fillValue).Sub(e.Fee)
	} else {
		l.cash = l.cash.Add(fillValue).Sub(e.Fee)
	}

	signedQty := fillQty
	if e.Side == model.SideSell {
		signedQty = signedQty.Neg()
	}

	existing := decimal.Zero
	pos, ok := l.positions[e.Symbol]
	if ok {
		existing = pos.Quantity
	}

	newQty := existing.Add(signedQty)
	if newQty.IsZero() {
		delete(l.positions, e.Symbol)
		return
	}

	if !ok {
		pos = &model.Position{Symbol: e.Symbol}
		l.positions[e.Symbol] = pos
	}

	// A fill extends the position when it grows a long or grows a short.
	// Only extending fills recompute the volume-weighted cost basis; a
	// reducing or flipping fill leaves the average untouched.
	extends := (e.Side == model.SideBuy && existing.Sign() >= 0) ||
		(e.Side == model.SideSell && existing.Sign() <= 0)
	if extends {
		pos.AveragePrice = pos.AveragePrice.Mul(existing.Abs()).
			Add(fillValue).
			Div(newQty.Abs())
	}

	pos.Quantity = newQty
	pos.MarketPrice = e.FillPrice
	pos.MarketValue = newQty.Abs().Mul(e.FillPrice)
}
