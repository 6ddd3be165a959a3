package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side buy, sell
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderType market, limit, stop market, stop limit
type OrderType uint8

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStopMarket
	OrderTypeStopLimit
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "market"
	case OrderTypeLimit:
		return "limit"
	case OrderTypeStopMarket:
		return "stopMarket"
	case OrderTypeStopLimit:
		return "stopLimit"
	default:
		return "unknown"
	}
}

// OrderStatus tracks the venue lifecycle of an order.
type OrderStatus uint8

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusNew
	OrderStatusSubmitted
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusInvalid
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNew:
		return "new"
	case OrderStatusSubmitted:
		return "submitted"
	case OrderStatusPartiallyFilled:
		return "partiallyFilled"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCanceled:
		return "canceled"
	case OrderStatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further events are expected for the order.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusInvalid:
		return true
	default:
		return false
	}
}

// IsFill reports whether the status carries an execution.
func (s OrderStatus) IsFill() bool {
	return s == OrderStatusFilled || s == OrderStatusPartiallyFilled
}

// Order is a single order request as seen by a brokerage.
// Quantity is an unsigned magnitude; Side carries the direction.
type Order struct {
	ID          string
	Symbol      string
	Side        Side
	Type        OrderType
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	StopPrice   decimal.Decimal
	Status      OrderStatus
	Tag         string
	SubmittedAt time.Time
}

// PriceHint returns the order's own intrinsic price: the limit price if
// positive, else the stop price if positive, else zero. Market orders have
// no intrinsic price.
func (o *Order) PriceHint() decimal.Decimal {
	if o.Price.IsPositive() {
		return o.Price
	}
	if o.StopPrice.IsPositive() {
		return o.StopPrice
	}
	return decimal.Zero
}

// OrderEvent is one entry of a batched order-status notification.
// FillPrice/FillQuantity/Fee are meaningful only when Status.IsFill().
// FillQuantity is an unsigned magnitude; Side gives the fill direction.
type OrderEvent struct {
	OrderID      string
	Symbol       string
	Side         Side
	Status       OrderStatus
	FillPrice    decimal.Decimal
	FillQuantity decimal.Decimal
	Fee          decimal.Decimal
	Message      string
	At           time.Time
}
