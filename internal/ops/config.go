// Package ops loads the JSON runtime configuration for the paper-trading
// binary.
package ops

import (
	"encoding/json"
	"os"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"vbroker/internal/model"
	"vbroker/pkg/exception"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	InstanceID       string            `json:"instanceId"`
	Currency         string            `json:"currency"`
	AllocatedCapital decimal.Decimal   `json:"allocatedCapital"`
	Cash             *decimal.Decimal  `json:"cash"`
	AccountCash      *decimal.Decimal  `json:"accountCash"`
	Fee              decimal.Decimal   `json:"fee"`
	Prices           map[string]string `json:"prices"`
	Orders           []OrderConfig     `json:"orders"`
	SnapshotPath     string            `json:"snapshotPath"`
}

// OrderConfig describes one scripted order.
type OrderConfig struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Type     string          `json:"type"`
	Quantity decimal.Decimal `json:"qty"`
	Price    decimal.Decimal `json:"price"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	InstanceID       string
	Currency         string
	AllocatedCapital decimal.Decimal
	Cash             decimal.Decimal
	AccountCash      decimal.Decimal
	Fee              decimal.Decimal
	Prices           map[string]decimal.Decimal
	Orders           []*model.Order
	SnapshotPath     string
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "unmarshal config")
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if cfg.InstanceID == "" {
		return Loaded{}, exception.ErrLedgerEmptyInstanceID
	}
	if cfg.Currency == "" {
		return Loaded{}, exception.ErrLedgerEmptyCurrency
	}
	if cfg.AllocatedCapital.IsNegative() {
		return Loaded{}, exception.ErrLedgerNegativeCapital
	}

	loaded := Loaded{
		InstanceID:       cfg.InstanceID,
		Currency:         cfg.Currency,
		AllocatedCapital: cfg.AllocatedCapital,
		Cash:             cfg.AllocatedCapital,
		AccountCash:      cfg.AllocatedCapital,
		Fee:              cfg.Fee,
		Prices:           make(map[string]decimal.Decimal, len(cfg.Prices)),
		SnapshotPath:     cfg.SnapshotPath,
	}
	if cfg.Cash != nil {
		loaded.Cash = *cfg.Cash
	}
	if cfg.AccountCash != nil {
		loaded.AccountCash = *cfg.AccountCash
	}

	for symbol, raw := range cfg.Prices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return Loaded{}, errors.Wrap(err, "parse price for "+symbol)
		}
		loaded.Prices[symbol] = price
	}

	for _, oc := range cfg.Orders {
		order, err := resolveOrder(oc)
		if err != nil {
			return Loaded{}, err
		}
		loaded.Orders = append(loaded.Orders, order)
	}
	return loaded, nil
}

func resolveOrder(cfg OrderConfig) (*model.Order, error) {
	if cfg.Symbol == "" {
		return nil, errors.New("order symbol is empty")
	}
	if !cfg.Quantity.IsPositive() {
		return nil, errors.New("order qty must be > 0 for " + cfg.Symbol)
	}

	order := &model.Order{
		Symbol:   cfg.Symbol,
		Quantity: cfg.Quantity,
		Price:    cfg.Price,
	}

	switch cfg.Side {
	case "buy":
		order.Side = model.SideBuy
	case "sell":
		order.Side = model.SideSell
	default:
		return nil, errors.New("unknown order side: " + cfg.Side)
	}

	switch cfg.Type {
	case "market":
		order.Type = model.OrderTypeMarket
	case "limit", "":
		order.Type = model.OrderTypeLimit
		if !cfg.Price.IsPositive() {
			return nil, errors.New("limit order price must be > 0 for " + cfg.Symbol)
		}
	default:
		return nil, errors.New("unknown order type: " + cfg.Type)
	}

	return order, nil
}
