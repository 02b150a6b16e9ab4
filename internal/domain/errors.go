package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrStalePrice             = errors.New("stale or missing price data")
	ErrInsufficientCapital    = errors.New("insufficient capital")
	ErrInsufficientQuantity   = errors.New("insufficient quantity")
	ErrExecutionFailed        = errors.New("execution failed after retries")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrLockHeld               = errors.New("lock already held")
)
