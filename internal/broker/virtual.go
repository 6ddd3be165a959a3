package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"vbroker/internal/events"
	"vbroker/internal/ledger"
	"vbroker/internal/model"
	"vbroker/internal/obs"
	"vbroker/internal/sink"
	"vbroker/pkg/exception"
)

// Compile-time interface check.
var _ Brokerage = (*Virtual)(nil)

// VirtualConfig seeds a virtual brokerage.
type VirtualConfig struct {
	AllocatedCapital decimal.Decimal
	Cash             decimal.Decimal
	InstanceID       string
	Currency         string

	// Positions optionally seeds the ledger from a prior snapshot.
	Positions []model.Position

	// Sink receives observability notices. Defaults to sink.Nop.
	Sink sink.Sink

	// Metrics is optional; nil disables collection.
	Metrics *obs.Metrics
}

// Virtual wraps a Brokerage with a derived cash/position ledger. Orders
// pass an admission gate before reaching the wrapped connection; fills
// reported by the wrapped connection are the only thing that moves the
// ledger. Balance, holdings and open-order queries answer from virtual
// state; everything else is forwarded verbatim.
type Virtual struct {
	inner   Brokerage
	ledger  *ledger.Ledger
	events  *events.Registry
	sink    sink.Sink
	metrics *obs.Metrics
	detach  func()
}

// NewVirtual creates the decorator and subscribes to the wrapped
// brokerage's event stream. A nil inner brokerage is fatal.
func NewVirtual(inner Brokerage, cfg VirtualConfig) (*Virtual, error) {
	if inner == nil {
		return nil, exception.ErrBrokerNilInner
	}
	if cfg.InstanceID == "" {
		return nil, exception.ErrLedgerEmptyInstanceID
	}
	if cfg.Currency == "" {
		return nil, exception.ErrLedgerEmptyCurrency
	}
	if cfg.AllocatedCapital.IsNegative() {
		return nil, exception.ErrLedgerNegativeCapital
	}
	if cfg.Sink == nil {
		cfg.Sink = sink.Nop{}
	}

	v := &Virtual{
		inner: inner,
		ledger: ledger.New(ledger.Config{
			AllocatedCapital: cfg.AllocatedCapital,
			Cash:             cfg.Cash,
			InstanceID:       cfg.InstanceID,
			Currency:         cfg.Currency,
			Positions:        cfg.Positions,
		}),
		events:  events.NewRegistry(),
		sink:    cfg.Sink,
		metrics: cfg.Metrics,
	}
	v.detach = inner.Attach(v.onEvent)
	return v, nil
}

// Close detaches from the wrapped event stream. The wrapped brokerage and
// any final state snapshot remain the caller's responsibility.
func (v *Virtual) Close() error {
	if v.detach != nil {
		v.detach()
		v.detach = nil
	}
	return nil
}

// Snapshot exports the current ledger state for the caller to persist.
func (v *Virtual) Snapshot() ledger.Snapshot {
	return v.ledger.Snapshot()
}

// PlaceOrder runs the admission gate and, when the order is admitted,
// forwards it to the wrapped brokerage. Rejection is a normal negative
// result: false, no error, a warning-level message to observers, and no
// forwarding.
func (v *Virtual) PlaceOrder(ctx context.Context, order *model.Order) (bool, error) {
	start := time.Now()
	notional := v.estimatedNotional(order)

	if order.Side == model.SideBuy {
		cash := v.ledger.Cash()
		if notional.GreaterThan(cash) {
			v.metrics.ObserveAdmission(time.Since(start))
			v.metrics.IncRejected()

			msg := fmt.Sprintf("insufficient virtual cash: order %s %s %s notional %s exceeds cash %s",
				order.Symbol, order.Side, order.Quantity, notional, cash)
			logs.Warnf("broker[%s]: %s", v.ledger.InstanceID(), msg)
			v.sink.Emit(sink.EventOrderRejected, orderNotice(order, notional))
			v.events.Publish(events.Event{
				Type: events.TypeMessage,
				At:   time.Now().UTC(),
				Payload: model.BrokerMessage{
					Level:   model.MessageLevelWarning,
					Code:    "InsufficientVirtualCash",
					Message: msg,
				},
			})
			return false, nil
		}
	}
	v.metrics.ObserveAdmission(time.Since(start))

	// The id must exist before tracking; a venue-assigned id would arrive
	// too late for events delivered during the PlaceOrder call itself.
	if order.ID == "" {
		order.ID = uuid.NewString()
	}

	// Track before forwarding: a fast rejection event must find the id
	// tracked, so untracking happens only via terminal status events.
	v.ledger.Track(order.ID)
	v.metrics.IncAdmitted()
	v.sink.Emit(sink.EventOrderSubmitted, orderNotice(order, notional))

	return v.inner.PlaceOrder(ctx, order)
}

// UpdateOrder is a pure pass-through; ledger state only moves on fills.
func (v *Virtual) UpdateOrder(ctx context.Context, order *model.Order) (bool, error) {
	return v.inner.UpdateOrder(ctx, order)
}

// CancelOrder is a pure pass-through.
func (v *Virtual) CancelOrder(ctx context.Context, order *model.Order) (bool, error) {
	return v.inner.CancelOrder(ctx, order)
}

// OpenOrders returns the wrapped brokerage's open orders restricted to the
// ids this instance placed. Orders belonging to other strategies sharing
// the real account never leak through.
func (v *Virtual) OpenOrders(ctx context.Context) ([]*model.Order, error) {
	all, err := v.inner.OpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	mine := make([]*model.Order, 0, len(all))
	for _, o := range all {
		if v.ledger.IsTracked(o.ID) {
			mine = append(mine, o)
		}
	}
	return mine, nil
}

// CashBalance answers from the virtual ledger, never the real account.
func (v *Virtual) CashBalance(context.Context) ([]model.CashAmount, error) {
	return []model.CashAmount{{
		Amount:   v.ledger.Cash(),
		Currency: v.ledger.Currency(),
	}}, nil
}

// AccountHoldings answers from the virtual ledger.
func (v *Virtual) AccountHoldings(context.Context) ([]model.Position, error) {
	return v.ledger.Holdings(), nil
}

// Equity returns virtual cash plus the mark value of all open positions.
func (v *Virtual) Equity() decimal.Decimal {
	return v.ledger.Equity()
}

// TrackedOrderIDs returns the order ids this instance is responsible for.
func (v *Virtual) TrackedOrderIDs() []string {
	return v.ledger.TrackedIDs()
}

// Connect forwards to the wrapped brokerage.
func (v *Virtual) Connect(ctx context.Context) error { return v.inner.Connect(ctx) }

// Disconnect forwards to the wrapped brokerage.
func (v *Virtual) Disconnect() error { return v.inner.Disconnect() }

// IsConnected mirrors the wrapped brokerage's state.
func (v *Virtual) IsConnected() bool { return v.inner.IsConnected() }

// History forwards to the wrapped brokerage.
func (v *Virtual) History(ctx context.Context, req model.HistoryRequest) ([]model.Bar, error) {
	return v.inner.History(ctx, req)
}

// ShouldPerformCashSync always reports no sync needed: the virtual ledger
// is authoritative and must never be overwritten by a real-account
// reconciliation pass.
func (v *Virtual) ShouldPerformCashSync(time.Time) bool { return false }

// PerformCashSync reports success without doing anything.
func (v *Virtual) PerformCashSync(context.Context) bool { return true }

// Attach registers an observer for the decorator's event stream.
func (v *Virtual) Attach(h events.Handler) (detach func()) {
	return v.events.Attach(h)
}

// estimatedNotional computes |quantity| * price, preferring the order's
// intrinsic price, then the last known mark of an existing position in the
// symbol, else zero.
func (v *Virtual) estimatedNotional(order *model.Order) decimal.Decimal {
	price := order.PriceHint()
	if !price.IsPositive() {
		price, _ = v.ledger.MarkPrice(order.Symbol)
	}
	return order.Quantity.Abs().Mul(price)
}

// onEvent receives the wrapped brokerage's event stream. Order-status
// batches are applied to the ledger first; every event is then forwarded
// unchanged, after the ledger lock has been released.
func (v *Virtual) onEvent(e events.Event) {
	switch e.Type {
	case events.TypeOrderStatus:
		if batch, ok := e.Payload.([]model.OrderEvent); ok {
			v.applyBatch(batch)
		}
	case events.TypeOrderIDChanged:
		if change, ok := e.Payload.(model.OrderIDChange); ok {
			if v.ledger.IsTracked(change.OldID) {
				v.ledger.Untrack(change.OldID)
				v.ledger.Track(change.NewID)
			}
		}
	}
	v.events.Publish(e)
	v.metrics.IncForwarded()
}

func (v *Virtual) applyBatch(batch []model.OrderEvent) {
	start := time.Now()
	applied := v.ledger.ApplyBatch(batch)
	v.metrics.ObserveBatch(time.Since(start))
	if len(applied) == 0 {
		return
	}
	v.metrics.AddFills(len(applied))

	for _, e := range applied {
		v.sink.Emit(sink.EventOrderFill, fillNotice(e))
	}
	v.sink.Emit(sink.EventCash, model.CashAmount{
		Amount:   v.ledger.Cash(),
		Currency: v.ledger.Currency(),
	})
	v.sink.Emit(sink.EventHoldings, v.ledger.Holdings())
	v.sink.Emit(sink.EventEquity, model.CashAmount{
		Amount:   v.ledger.Equity(),
		Currency: v.ledger.Currency(),
	})
}

type orderNoticePayload struct {
	OrderID  string `json:"orderId"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Quantity string `json:"qty"`
	Notional string `json:"notional"`
}

func orderNotice(o *model.Order, notional decimal.Decimal) orderNoticePayload {
	return orderNoticePayload{
		OrderID:  o.ID,
		Symbol:   o.Symbol,
		Side:     o.Side.String(),
		Type:     o.Type.String(),
		Quantity: o.Quantity.String(),
		Notional: notional.String(),
	}
}

type fillNoticePayload struct {
	OrderID  string `json:"orderId"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Status   string `json:"status"`
	Price    string `json:"price"`
	Quantity string `json:"qty"`
	Fee      string `json:"fee"`
}

func fillNotice(e model.OrderEvent) fillNoticePayload {
	return fillNoticePayload{
		OrderID:  e.OrderID,
		Symbol:   e.Symbol,
		Side:     e.Side.String(),
		Status:   e.Status.String(),
		Price:    e.FillPrice.String(),
		Quantity: e.FillQuantity.String(),
		Fee:      e.Fee.String(),
	}
}
