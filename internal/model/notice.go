package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MessageLevel classifies a BrokerMessage.
type MessageLevel uint8

const (
	MessageLevelInfo MessageLevel = iota
	MessageLevelWarning
	MessageLevelError
)

func (l MessageLevel) String() string {
	switch l {
	case MessageLevelWarning:
		return "warning"
	case MessageLevelError:
		return "error"
	default:
		return "info"
	}
}

// BrokerMessage is a generic notification from a brokerage.
type BrokerMessage struct {
	Level   MessageLevel
	Code    string
	Message string
}

// OrderIDChange announces that a venue re-assigned an order identifier.
type OrderIDChange struct {
	OldID string
	NewID string
}

// OptionAssignment notifies that a short option position was assigned.
type OptionAssignment struct {
	Symbol   string
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// OptionNotice is a venue notification about an option position.
type OptionNotice struct {
	Symbol  string
	Message string
}

// BrokerOrderNotice announces an order that appeared on the real account
// without being placed through this process.
type BrokerOrderNotice struct {
	Order Order
}

// DelistingNotice announces an upcoming symbol delisting.
type DelistingNotice struct {
	Symbol string
	Date   time.Time
}

// AccountChange carries a real-account balance update.
type AccountChange struct {
	Currency string
	Cash     decimal.Decimal
}
