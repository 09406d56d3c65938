package queue

import "errors"

// Sentinel errors reported by the queue.
var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)
