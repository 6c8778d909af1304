package coordinator

import "errors"

// Errors returned by pool operations. Call sites wrap them with context; test
// with errors.Is.
var (
	// ErrCapacityExceeded means the pool for the user's tier is at its ceiling.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrSessionNotFound means the user has no session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrHostNotReady means the hosting unit exists but cannot send yet.
	ErrHostNotReady = errors.New("host not ready")
	// ErrSendTimeout means a dispatch did not complete within the send timeout.
	ErrSendTimeout = errors.New("send timeout")
	// ErrSpawnFailure means a dedicated worker could not be started or never attached.
	ErrSpawnFailure = errors.New("worker spawn failure")
	// ErrAuthFailure means the chat network rejected the session's credentials.
	ErrAuthFailure = errors.New("authentication failure")
	// ErrWorkerExited means the worker process ended while a request was in flight.
	ErrWorkerExited = errors.New("worker exited")
)
