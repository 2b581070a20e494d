package domain

import "errors"

var (
	// ErrNotFound is returned for unknown entities and for sessions the
	// caller does not own.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionBusy is returned when another turn holds the session lease.
	ErrSessionBusy = errors.New("session busy")
)
