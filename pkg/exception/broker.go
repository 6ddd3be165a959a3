package exception

import "errors"

var (
	ErrBrokerNilInner       = errors.New("broker: nil wrapped brokerage")
	ErrBrokerNotConnected   = errors.New("broker: not connected")
	ErrBrokerUnknownOrder   = errors.New("broker: order not found")
	ErrBrokerDuplicateOrder = errors.New("broker: order already exists")
	ErrBrokerInvalidOrder   = errors.New("broker: invalid order")
)
