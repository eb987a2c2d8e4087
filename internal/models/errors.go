package models

import "github.com/pkg/errors"

var (
	// ErrValidation is returned before any store call when input is rejected.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means the ledger row or session vanished between reads.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the row changed under us; refresh and retry.
	ErrConflict = errors.New("conflict, ledger changed")
	// ErrAlreadyTerminal is returned when paid/gift/waste/cancel rows are targeted again.
	ErrAlreadyTerminal = errors.New("row already settled")
)

func Validation(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

func IsValidation(err error) bool { return errors.Cause(err) == ErrValidation }

func IsConflict(err error) bool {
	c := errors.Cause(err)
	return c == ErrConflict || c == ErrAlreadyTerminal
}

func IsNotFound(err error) bool { return errors.Cause(err) == ErrNotFound }
