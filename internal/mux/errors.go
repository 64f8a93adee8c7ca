package mux

import "errors"

// Card set configuration errors
var (
	ErrInvalidCard   = errors.New("invalid card configuration")
	ErrDuplicateSlot = errors.New("duplicate slot in card set")
)

// Selector validation errors
var (
	ErrUnknownCard    = errors.New("no such card")
	ErrInvalidChannel = errors.New("invalid channel selector")
)
