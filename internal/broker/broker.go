// Package broker defines the brokerage capability contract and provides the
// virtual decorator that isolates one strategy's capital inside a shared
// real account.
package broker

import (
	"context"
	"time"

	"vbroker/internal/events"
	"vbroker/internal/model"
)

// Brokerage is the order-execution capability. The virtual decorator both
// consumes it (the wrapped connection) and implements it (the surface the
// strategy sees).
type Brokerage interface {
	// Connect establishes the venue connection.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down.
	Disconnect() error

	// IsConnected reports the current connectivity state.
	IsConnected() bool

	// PlaceOrder submits an order. The bool is the venue's accept/reject
	// answer; the error reports transport failures.
	PlaceOrder(ctx context.Context, order *model.Order) (bool, error)

	// UpdateOrder amends an open order.
	UpdateOrder(ctx context.Context, order *model.Order) (bool, error)

	// CancelOrder requests cancellation of an open order.
	CancelOrder(ctx context.Context, order *model.Order) (bool, error)

	// OpenOrders returns all orders the venue still considers open.
	OpenOrders(ctx context.Context) ([]*model.Order, error)

	// CashBalance returns the account cash, one entry per currency.
	CashBalance(ctx context.Context) ([]model.CashAmount, error)

	// AccountHoldings returns the current account positions.
	AccountHoldings(ctx context.Context) ([]model.Position, error)

	// History fetches bars for a symbol.
	History(ctx context.Context, req model.HistoryRequest) ([]model.Bar, error)

	// ShouldPerformCashSync reports whether a periodic account cash
	// reconciliation is due.
	ShouldPerformCashSync(now time.Time) bool

	// PerformCashSync runs the reconciliation, reporting success.
	PerformCashSync(ctx context.Context) bool

	// Attach registers an observer for the brokerage event stream and
	// returns its detach function.
	Attach(h events.Handler) (detach func())
}
