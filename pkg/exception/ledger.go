package exception

import "errors"

var (
	ErrLedgerEmptyInstanceID = errors.New("ledger: empty instance id")
	ErrLedgerEmptyCurrency   = errors.New("ledger: empty currency")
	ErrLedgerNegativeCapital = errors.New("ledger: negative allocated capital")
)
