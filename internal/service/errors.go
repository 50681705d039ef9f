package service

import "errors"

// Business errors are expected, typed outcomes returned to the caller.
// Handlers map them to stable machine-readable kinds; none of them is a
// system fault.
var (
	ErrInvalidSymbol        = errors.New("invalid symbol")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrInsufficientFunds    = errors.New("insufficient balance")
	ErrInsufficientPosition = errors.New("insufficient position")
)
