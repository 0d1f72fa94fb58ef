package scheduler

import "errors"

var (
	// ErrMismatch means a reply arrived but never matched the expected pattern.
	ErrMismatch = errors.New("scheduler: response did not match")
	// ErrReadTimeout means nothing was received within the read timeout.
	ErrReadTimeout = errors.New("scheduler: no response within read timeout")
	// ErrExhausted means every attempt failed.
	ErrExhausted = errors.New("scheduler: attempts exhausted")
	// ErrInvalidRequest is returned synchronously by Submit for malformed requests.
	ErrInvalidRequest = errors.New("scheduler: invalid request")
	// ErrAwaitTimeout means the caller stopped waiting before the request finished.
	ErrAwaitTimeout = errors.New("scheduler: await timeout")
	// ErrSchedulerClosed is returned for requests submitted to, or pending in, a closed scheduler.
	ErrSchedulerClosed = errors.New("scheduler: closed")
	// ErrUnknownRequest is returned when awaiting a result that was already consumed or evicted.
	ErrUnknownRequest = errors.New("scheduler: unknown request id")
	// ErrAlreadyStarted is returned by Start when the worker is already running.
	ErrAlreadyStarted = errors.New("scheduler: already started")
)
