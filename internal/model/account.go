package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the holding in one symbol. Quantity is signed: positive for
// long, negative for short. AveragePrice is the per-unit cost basis of the
// open quantity and is sign-agnostic. MarketPrice/MarketValue are the last
// known mark, kept for reporting only.
type Position struct {
	Symbol       string
	Quantity     decimal.Decimal
	AveragePrice decimal.Decimal
	MarketPrice  decimal.Decimal
	MarketValue  decimal.Decimal
}

// CashAmount is a cash balance in one currency.
type CashAmount struct {
	Amount   decimal.Decimal
	Currency string
}

// Bar is one history candle returned by a brokerage.
type Bar struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// HistoryRequest selects the bars to fetch.
type HistoryRequest struct {
	Symbol     string
	Start      time.Time
	End        time.Time
	Resolution time.Duration
}
