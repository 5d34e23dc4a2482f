package repository

import "errors"

var (
	// ErrNotFound is returned when no lobby is stored under the id
	ErrNotFound = errors.New("lobby not found")

	// ErrContention is returned when a compare-and-swap update keeps losing to concurrent writers
	ErrContention = errors.New("lobby update contention")
)
