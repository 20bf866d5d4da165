package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a unique key.
	ErrConflict = errors.New("already exists")

	// ErrOutOfStock is returned when a conditional stock decrement finds
	// no unit left.
	ErrOutOfStock = errors.New("out of stock")
)

const uniqueViolation = pq.ErrorCode("23505")

// mapWriteError converts driver errors into store sentinels.
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}
