package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vbroker/internal/events"
	"vbroker/internal/model"
	"vbroker/pkg/exception"
)

// Compile-time interface check.
var _ Brokerage = (*Sim)(nil)

// SimConfig seeds the simulated venue.
type SimConfig struct {
	AccountCash decimal.Decimal
	Currency    string

	// Fee is a flat fee charged on every fill.
	Fee decimal.Decimal

	// CashSyncInterval drives ShouldPerformCashSync. Zero disables it.
	CashSyncInterval time.Duration
}

// Sim is an in-memory venue for the paper-trading demo and for tests. An
// order with a known price fills immediately and the Submitted + Filled
// events are delivered as one batch; orders without a price rest until
// Fill is called.
type Sim struct {
	mu        sync.Mutex
	cfg       SimConfig
	connected bool
	cash      decimal.Decimal
	lastSync  time.Time

	open      map[string]*model.Order
	remaining map[string]decimal.Decimal
	prices    map[string]decimal.Decimal
	holdings  map[string]*model.Position
	history   map[string][]model.Bar

	events *events.Registry
}

// NewSim creates a disconnected simulated venue.
func NewSim(cfg SimConfig) *Sim {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Sim{
		cfg:       cfg,
		cash:      cfg.AccountCash,
		open:      make(map[string]*model.Order),
		remaining: make(map[string]decimal.Decimal),
		prices:    make(map[string]decimal.Decimal),
		holdings:  make(map[string]*model.Position),
		history:   make(map[string][]model.Bar),
		events:    events.NewRegistry(),
	}
}

// SetPrice seeds the mark price used to fill market orders.
func (s *Sim) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// SeedHistory stores bars returned by History.
func (s *Sim) SeedHistory(symbol string, bars []model.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[symbol] = bars
}

func (s *Sim) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *Sim) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Sim) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Sim) PlaceOrder(_ context.Context, order *model.Order) (bool, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return false, exception.ErrBrokerNotConnected
	}
	if !order.Quantity.IsPositive() {
		s.mu.Unlock()
		return false, exception.ErrBrokerInvalidOrder
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, ok := s.open[order.ID]; ok {
		s.mu.Unlock()
		return false, exception.ErrBrokerDuplicateOrder
	}

	order.Status = model.OrderStatusSubmitted
	order.SubmittedAt = time.Now().UTC()
	stored := *order
	s.open[order.ID] = &stored
	s.remaining[order.ID] = order.Quantity

	fillPrice := order.PriceHint()
	if !fillPrice.IsPositive() {
		fillPrice = s.prices[order.Symbol]
	}

	batch := []model.OrderEvent{statusEvent(order, model.OrderStatusSubmitted)}
	if fillPrice.IsPositive() {
		batch = append(batch, s.fillLocked(order.ID, fillPrice, order.Quantity))
	}
	s.mu.Unlock()

	s.publishStatus(batch)
	return true, nil
}

func (s *Sim) UpdateOrder(_ context.Context, order *model.Order) (bool, error) {
	s.mu.Lock()
	stored, ok := s.open[order.ID]
	if !ok {
		s.mu.Unlock()
		return false, exception.ErrBrokerUnknownOrder
	}
	stored.Price = order.Price
	stored.StopPrice = order.StopPrice
	stored.Quantity = order.Quantity
	s.remaining[order.ID] = order.Quantity
	updated := *stored
	s.mu.Unlock()

	s.events.Publish(events.Event{
		Type:    events.TypeOrderUpdated,
		At:      time.Now().UTC(),
		Payload: updated,
	})
	return true, nil
}

func (s *Sim) CancelOrder(_ context.Context, order *model.Order) (bool, error) {
	s.mu.Lock()
	stored, ok := s.open[order.ID]
	if !ok {
		s.mu.Unlock()
		return false, exception.ErrBrokerUnknownOrder
	}
	delete(s.open, order.ID)
	delete(s.remaining, order.ID)
	e := statusEvent(stored, model.OrderStatusCanceled)
	s.mu.Unlock()

	s.publishStatus([]model.OrderEvent{e})
	return true, nil
}

// Fill executes part of a resting order, delivering the status event the
// way a live venue would.
func (s *Sim) Fill(orderID string, price, quantity decimal.Decimal) error {
	s.mu.Lock()
	if _, ok := s.open[orderID]; !ok {
		s.mu.Unlock()
		return exception.ErrBrokerUnknownOrder
	}
	e := s.fillLocked(orderID, price, quantity)
	s.mu.Unlock()

	s.publishStatus([]model.OrderEvent{e})
	return nil
}

func (s *Sim) OpenOrders(context.Context) ([]*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Order, 0, len(s.open))
	for _, o := range s.open {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Sim) CashBalance(context.Context) ([]model.CashAmount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []model.CashAmount{{Amount: s.cash, Currency: s.cfg.Currency}}, nil
}

func (s *Sim) AccountHoldings(context.Context) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Position, 0, len(s.holdings))
	for _, p := range s.holdings {
		out = append(out, *p)
	}
	return out, nil
}

func (s *Sim) History(_ context.Context, req model.HistoryRequest) ([]model.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[req.Symbol], nil
}

func (s *Sim) ShouldPerformCashSync(now time.Time) bool {
	if s.cfg.CashSyncInterval <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSync) >= s.cfg.CashSyncInterval
}

func (s *Sim) PerformCashSync(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = time.Now().UTC()
	return true
}

func (s *Sim) Attach(h events.Handler) (detach func()) {
	return s.events.Attach(h)
}

// fillLocked applies one fill to the venue's own books and returns the
// status event to deliver. Caller holds the lock.
func (s *Sim) fillLocked(orderID string, price, quantity decimal.Decimal) model.OrderEvent {
	o := s.open[orderID]
	left := s.remaining[orderID].Sub(quantity)

	status := model.OrderStatusPartiallyFilled
	if !left.IsPositive() {
		status = model.OrderStatusFilled
		delete(s.open, orderID)
		delete(s.remaining, orderID)
	} else {
		s.remaining[orderID] = left
		o.Status = model.OrderStatusPartiallyFilled
	}

	value := price.Mul(quantity)
	if o.Side == model.SideBuy {
		s.cash = s.cash.Sub(value)
	} else {
		s.cash = s.cash.Add(value)
	}
	s.cash = s.cash.Sub(s.cfg.Fee)
	s.applyHoldingLocked(o.Symbol, o.Side, price, quantity)
	s.prices[o.Symbol] = price

	e := statusEvent(o, status)
	e.FillPrice = price
	e.FillQuantity = quantity
	e.Fee = s.cfg.Fee
	return e
}

func (s *Sim) applyHoldingLocked(symbol string, side model.Side, price, quantity decimal.Decimal) {
	signed := quantity
	if side == model.SideSell {
		signed = signed.Neg()
	}
	p, ok := s.holdings[symbol]
	if !ok {
		p = &model.Position{Symbol: symbol}
		s.holdings[symbol] = p
	}
	next := p.Quantity.Add(signed)
	if next.IsZero() {
		delete(s.holdings, symbol)
		return
	}
	if p.Quantity.Sign() >= 0 && side == model.SideBuy ||
		p.Quantity.Sign() <= 0 && side == model.SideSell {
		p.AveragePrice = p.AveragePrice.Mul(p.Quantity.Abs()).
			Add(price.Mul(quantity)).
			Div(next.Abs())
	}
	p.Quantity = next
	p.MarketPrice = price
	p.MarketValue = next.Abs().Mul(price)
}

func (s *Sim) publishStatus(batch []model.OrderEvent) {
	s.events.Publish(events.Event{
		Type:    events.TypeOrderStatus,
		At:      time.Now().UTC(),
		Payload: batch,
	})
}

func statusEvent(o *model.Order, status model.OrderStatus) model.OrderEvent {
	return model.OrderEvent{
		OrderID: o.ID,
		Symbol:  o.Symbol,
		Side:    o.Side,
		Status:  status,
		At:      time.Now().UTC(),
	}
}
