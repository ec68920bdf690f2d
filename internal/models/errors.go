package models

import "errors"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStaleQuote        = errors.New("stale or missing quote")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrOracleMalformed   = errors.New("oracle malformed response")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrPositionChanged   = errors.New("position changed")
	ErrBotDisabled       = errors.New("bot disabled")
)
