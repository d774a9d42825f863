package common

import "errors"

var (
	// ErrUnsupportedChain is returned when a chain id has no registered adapter factory.
	ErrUnsupportedChain = errors.New("unsupported chain")

	// ErrUnsupportedChainPair is returned by order creation when either leg of the
	// swap has no registered, connected adapter.
	ErrUnsupportedChainPair = errors.New("unsupported chain pair")

	// ErrInvalidOrder is returned when order parameters fail validation before any
	// network call is attempted.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrNotConnected is returned by adapter operations invoked before Connect.
	ErrNotConnected = errors.New("adapter not connected")

	// ErrOrderNotFound is returned for operations against an unknown order id.
	ErrOrderNotFound = errors.New("order not found")
)
