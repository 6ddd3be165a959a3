package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vbroker/internal/events"
	"vbroker/internal/model"
	"vbroker/internal/sink"
	"vbroker/pkg/exception"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// stubBrokerage records calls and lets tests drive the event stream.
type stubBrokerage struct {
	registry *events.Registry

	placed   []*model.Order
	updated  []*model.Order
	canceled []*model.Order

	placeOK  bool
	placeErr error

	open      []*model.Order
	cash      []model.CashAmount
	holdings  []model.Position
	bars      []model.Bar
	connected bool
	syncDue   bool
}

func newStub() *stubBrokerage {
	return &stubBrokerage{
		registry: events.NewRegistry(),
		placeOK:  true,
		cash:     []model.CashAmount{{Amount: dec("999999"), Currency: "EUR"}},
		holdings: []model.Position{{Symbol: "REAL", Quantity: dec("42")}},
		syncDue:  true,
	}
}

func (s *stubBrokerage) Connect(context.Context) error { s.connected = true; return nil }
func (s *stubBrokerage) Disconnect() error             { s.connected = false; return nil }
func (s *stubBrokerage) IsConnected() bool             { return s.connected }

func (s *stubBrokerage) PlaceOrder(_ context.Context, order *model.Order) (bool, error) {
	s.placed = append(s.placed, order)
	return s.placeOK, s.placeErr
}

func (s *stubBrokerage) UpdateOrder(_ context.Context, order *model.Order) (bool, error) {
	s.updated = append(s.updated, order)
	return true, nil
}

func (s *stubBrokerage) CancelOrder(_ context.Context, order *model.Order) (bool, error) {
	s.canceled = append(s.canceled, order)
	return true, nil
}

func (s *stubBrokerage) OpenOrders(context.Context) ([]*model.Order, error) {
	return s.open, nil
}

func (s *stubBrokerage) CashBalance(context.Context) ([]model.CashAmount, error) {
	return s.cash, nil
}

func (s *stubBrokerage) AccountHoldings(context.Context) ([]model.Position, error) {
	return s.holdings, nil
}

func (s *stubBrokerage) History(context.Context, model.HistoryRequest) ([]model.Bar, error) {
	return s.bars, nil
}

func (s *stubBrokerage) ShouldPerformCashSync(time.Time) bool { return s.syncDue }
func (s *stubBrokerage) PerformCashSync(context.Context) bool { return false }

func (s *stubBrokerage) Attach(h events.Handler) func() { return s.registry.Attach(h) }

// deliverStatus pushes a status batch the way a venue's I/O thread would.
func (s *stubBrokerage) deliverStatus(batch ...model.OrderEvent) {
	s.registry.Publish(events.Event{
		Type:    events.TypeOrderStatus,
		At:      time.Now().UTC(),
		Payload: batch,
	})
}

// recordingSink captures emitted notices.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Emit(event string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestVirtual(t *testing.T, inner Brokerage, cash string) *Virtual {
	t.Helper()
	v, err := NewVirtual(inner, VirtualConfig{
		AllocatedCapital: dec(cash),
		Cash:             dec(cash),
		InstanceID:       "test-1",
		Currency:         "USD",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func buyOrder(id, symbol, price, qty string) *model.Order {
	return &model.Order{
		ID:       id,
		Symbol:   symbol,
		Side:     model.SideBuy,
		Type:     model.OrderTypeLimit,
		Quantity: dec(qty),
		Price:    dec(price),
	}
}

func TestNewVirtualNilInner(t *testing.T) {
	_, err := NewVirtual(nil, VirtualConfig{InstanceID: "x", Currency: "USD"})
	assert.ErrorIs(t, err, exception.ErrBrokerNilInner)
}

func TestNewVirtualValidation(t *testing.T) {
	stub := newStub()

	_, err := NewVirtual(stub, VirtualConfig{Currency: "USD"})
	assert.ErrorIs(t, err, exception.ErrLedgerEmptyInstanceID)

	_, err = NewVirtual(stub, VirtualConfig{InstanceID: "x"})
	assert.ErrorIs(t, err, exception.ErrLedgerEmptyCurrency)

	_, err = NewVirtual(stub, VirtualConfig{
		InstanceID: "x", Currency: "USD", AllocatedCapital: dec("-1"),
	})
	assert.ErrorIs(t, err, exception.ErrLedgerNegativeCapital)
}

func TestAdmissionScenario(t *testing.T) {
	stub := newStub()
	v := newTestVirtual(t, stub, "100000")
	ctx := context.Background()

	// Notional 50000 <= 100000: admitted and forwarded exactly once.
	ok, err := v.PlaceOrder(ctx, buyOrder("o1", "AAPL", "500", "100"))
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, stub.placed, 1)

	stub.deliverStatus(model.OrderEvent{
		OrderID: "o1", Symbol: "AAPL", Side: model.SideBuy,
		Status:    model.OrderStatusFilled,
		FillPrice: dec("500"), FillQuantity: dec("100"), Fee: dec("1"),
	})

	cash, err := v.CashBalance(ctx)
	require.NoError(t, err)
	require.Len(t, cash, 1)
	assert.True(t, cash[0].Amount.Equal(dec("49999")), "cash = %s", cash[0].Amount)

	holdings, err := v.AccountHoldings(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].Quantity.Equal(dec("100")))
	assert.True(t, holdings[0].AveragePrice.Equal(dec("500")))

	// Notional 50000 > 49999: rejected, inner never sees it.
	ok, err = v.PlaceOrder(ctx, buyOrder("o2", "AAPL", "500", "100"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, stub.placed, 1)
}

func TestRejectionEmitsWarning(t *testing.T) {
	stub := newStub()
	notices := &recordingSink{}
	v, err := NewVirtual(stub, VirtualConfig{
		AllocatedCapital: dec("100"),
		Cash:             dec("100"),
		InstanceID:       "test-1",
		Currency:         "USD",
		Sink:             notices,
	})
	require.NoError(t, err)
	defer v.Close()

	var messages []model.BrokerMessage
	v.Attach(func(e events.Event) {
		if m, ok := e.Payload.(model.BrokerMessage); ok {
			messages = append(messages, m)
		}
	})

	ok, err := v.PlaceOrder(context.Background(), buyOrder("o1", "AAPL", "500", "100"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.Len(t, messages, 1)
	assert.Equal(t, model.MessageLevelWarning, messages[0].Level)
	assert.Contains(t, notices.names(), sink.EventOrderRejected)
}

func TestSellNeverCapped(t *testing.T) {
	stub := newStub()
	v := newTestVirtual(t, stub, "10")

	order := &model.Order{
		ID: "o1", Symbol: "AAPL", Side: model.SideSell,
		Type: model.OrderTypeLimit, Quantity: dec("1000"), Price: dec("500"),
	}
	ok, err := v.PlaceOrder(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, stub.placed, 1)
}

func TestMarketOrderUsesMarkPrice(t *testing.T) {
	stub := newStub()
	v := newTestVirtual(t, stub, "100000")
	ctx := context.Background()

	// No position, no intrinsic price: estimate is zero, always admitted.
	market := &model.Order{
		ID: "o1", Symbol: "AAPL", Side: model.SideBuy,
		Type: model.OrderTypeMarket, Quantity: dec("1000000"),
	}
	ok, err := v.PlaceOrder(ctx, market)
	require.NoError(t, err)
	assert.True(t, ok)

	stub.deliverStatus(model.OrderEvent{
		OrderID: "o1", Symbol: "AAPL", Side: model.SideBuy,
		Status:    model.OrderStatusFilled,
		FillPrice: dec("500"), FillQuantity: dec("100"),
	})

	// Mark is now 500: a market buy of 1000 estimates 500000 > cash.
	market2 := &model.Order{
		ID: "o2", Symbol: "AAPL", Side: model.SideBuy,
		Type: model.OrderTypeMarket, Quantity: dec("1000"),
	}
	ok, err = v.PlaceOrder(ctx, market2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, stub.placed, 1)
}

func TestInnerRejectionKeepsTracked(t *testing.T) {
	stub := newStub()
	stub.placeOK = false
	v := newTestVirtual(t, stub, "100000")

	ok, err := v.PlaceOrder(context.Background(), buyOrder("o1", "AAPL", "500", "100"))
	require.NoError(t, err)
	assert.False(t, ok)

	// The id stays tracked until a terminal status event arrives: a fast
	// venue may deliver the rejection event before the call returns.
	assert.Equal(t, []string{"o1"}, v.TrackedOrderIDs())

	stub.deliverStatus(model.OrderEvent{
		OrderID: "o1", Status: model.OrderStatusInvalid, Side: model.SideBuy, Symbol: "AAPL",
	})
	assert.Empty(t, v.TrackedOrderIDs())
}

func TestPlaceOrderAssignsMissingID(t *testing.T) {
	stub := newStub()
	v := newTestVirtual(t, stub, "100000")

	order := buyOrder("", "AAPL", "10", "1")
	ok, err := v.PlaceOrder(context.Background(), order)
	require.NoError(t, err)
	require.True(t, ok)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, []string{order.ID}, v.TrackedOrderIDs())
}

func TestOrderIDChangeRetracks(t *testing.T) {
	stub := newStub()
	v := newTestVirtual(t, stub, "100000")
	ctx := context.Background()

	_, err := v.PlaceOrder(ctx, buyOrder("old", "AAPL", "10", "1"))
	require.NoError(t, err)

	stub.registry.Publish(events.Event{
		Type:    events.TypeOrderIDChanged,
		Payload: model.OrderIDChange{OldID: "old", NewID: "new"},
	})
	assert.Equal(t, []string{"new"}, v.TrackedOrderIDs())

	// An id change for an order this instance never placed is ignored.
	stub.registry.Publish(events.Event{
		Type:    events.TypeOrderIDChanged,
		Payload: model.OrderIDChange{OldID: "foreign", NewID: "other"},
	})
	assert.Equal(t, []string{"new"}, v.TrackedOrderIDs())

	// Fills arriving under the new id move the ledger.
	stub.deliverStatus(model.OrderEvent{
		OrderID: "new", Symbol: "AAPL", Side: model.SideBuy,
		Status:    model.OrderStatusFilled,
		FillPrice: dec("10"), FillQuantity: dec("1"),
	})
	cash, _ := v.CashBalance(ctx)
	assert.True(t, cash[0].Amount.Equal(dec("99990")))
}

func TestOpenOrdersFiltersForeign(t *testing.T) {
	stub := newStub()
	v := newTestVirtual(t, stub, "100000")
	ctx := context.Background()

	ok, err := v.PlaceOrder(ctx, buyOrder("mine", "AAPL", "10", "1"))
	require.NoError(t, err)
	require.True(t, ok)

	stub.open = []*model.Order{
		buyOrder("mine", "AAPL", "10", "1"),
		buyOrder("other-strategy", "AAPL", "10", "1"),
	}

	open, err := v.OpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "mine", open[0].ID)
}

func TestVirtualQueriesNeverAnswerFromRealAccount(t *testing.T) {
	stub := newStub()
	v := newTestVirtual(t, stub, "100000")
	ctx := context.Background()

	cash, err := v.CashBalance(ctx)
	require.NoError(t, err)
	require.Len(t, cash, 1)
	assert.Equal(t, "USD", cash[0].Currency)
	assert.True(t, cash[0].Amount.Equal(dec("100000")))

	holdings, err := v.AccountHoldings(ctx)
	require.NoError(t, err)
	assert.Empty(t, holdings, "real account holdings must not leak")
}

func TestCashSyncIsNeutered(t *testing.T) {
	stub := newStub()
	v := newTestVirtual(t, stub, "100000")

	assert.False(t, v.ShouldPerformCashSync(time.Now()), "inner reports due, decorator says no")
	assert.True(t, v.PerformCashSync(context.Background()), "inner would fail, decorator reports success")
}

func TestEventsForwardedUnchanged(t *testing.T) {
	stub := newStub()
	v := newTestVirtual(t, stub, "100000")

	var got []events.Event
	v.Attach(func(e events.Event) { got = append(got, e) })

	change := model.OrderIDChange{OldID: "a", NewID: "b"}
	stub.registry.Publish(events.Event{Type: events.TypeOrderIDChanged, Payload: change})

	// Untracked status batches are forwarded even though nothing mutates.
	foreign := model.OrderEvent{OrderID: "foreign", Status: model.OrderStatusFilled,
		Side: model.SideBuy, Symbol: "X", FillPrice: dec("1"), FillQuantity: dec("1")}
	stub.deliverStatus(foreign)

	require.Len(t, got, 2)
	assert.Equal(t, events.TypeOrderIDChanged, got[0].Type)
	assert.Equal(t, change, got[0].Payload)
	assert.Equal(t, events.TypeOrderStatus, got[1].Type)
	assert.Equal(t, []model.OrderEvent{foreign}, got[1].Payload)

	cash, _ := v.CashBalance(context.Background())
	assert.True(t, cash[0].Amount.Equal(dec("100000")), "foreign fill must not move cash")
}

func TestUpdateAndCancelPassThrough(t *testing.T) {
	stub := newStub()
	v := newTestVirtual(t, stub, "100000")
	ctx := context.Background()

	order := buyOrder("o1", "AAPL", "500", "1000")

	ok, err := v.UpdateOrder(ctx, order)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.CancelOrder(ctx, order)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, stub.updated, 1)
	assert.Len(t, stub.canceled, 1)

	cash, _ := v.CashBalance(ctx)
	assert.True(t, cash[0].Amount.Equal(dec("100000")), "update/cancel never touch the ledger")
}

func TestConnectivityMirrorsInner(t *testing.T) {
	stub := newStub()
	v := newTestVirtual(t, stub, "100000")
	ctx := context.Background()

	assert.False(t, v.IsConnected())
	require.NoError(t, v.Connect(ctx))
	assert.True(t, v.IsConnected())
	require.NoError(t, v.Disconnect())
	assert.False(t, v.IsConnected())
}

func TestCloseDetaches(t *testing.T) {
	stub := newStub()
	v := newTestVirtual(t, stub, "100000")

	forwarded := 0
	v.Attach(func(events.Event) { forwarded++ })

	stub.registry.Publish(events.Event{Type: events.TypeMessage})
	require.NoError(t, v.Close())
	stub.registry.Publish(events.Event{Type: events.TypeMessage})

	assert.Equal(t, 1, forwarded)
}

func TestFillNoticesEmitted(t *testing.T) {
	stub := newStub()
	notices := &recordingSink{}
	v, err := NewVirtual(stub, VirtualConfig{
		AllocatedCapital: dec("100000"),
		Cash:             dec("100000"),
		InstanceID:       "test-1",
		Currency:         "USD",
		Sink:             notices,
	})
	require.NoError(t, err)
	defer v.Close()

	_, err = v.PlaceOrder(context.Background(), buyOrder("o1", "AAPL", "500", "100"))
	require.NoError(t, err)

	stub.deliverStatus(model.OrderEvent{
		OrderID: "o1", Symbol: "AAPL", Side: model.SideBuy,
		Status:    model.OrderStatusFilled,
		FillPrice: dec("500"), FillQuantity: dec("100"), Fee: dec("1"),
	})

	names := notices.names()
	assert.Contains(t, names, sink.EventOrderSubmitted)
	assert.Contains(t, names, sink.EventOrderFill)
	assert.Contains(t, names, sink.EventCash)
	assert.Contains(t, names, sink.EventHoldings)
	assert.Contains(t, names, sink.EventEquity)
}
