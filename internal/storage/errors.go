package storage

import (
	"errors"

	"solana-trade-inspector/internal/predicate"
)

// Storage errors.
var (
	// ErrDuplicateKey is returned when attempting to insert a record
	// with a row id that already exists. Stores are append-only.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownColumn is returned when a filter or aggregate references a
	// column absent from the dataset.
	ErrUnknownColumn = predicate.ErrUnknownColumn

	// ErrNonNumericColumn is returned when a numeric filter or aggregate
	// targets a string column.
	ErrNonNumericColumn = predicate.ErrNonNumericColumn

	// ErrNonStringColumn is returned when a value listing targets a numeric column.
	ErrNonStringColumn = errors.New("non-string column")
)
