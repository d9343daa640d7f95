package core

import (
	"errors"
	"fmt"
)

var (
	ErrRoomFull         = errors.New("room full")
	ErrRoomNotFound     = errors.New("room not found")
	ErrNoSuchDevice     = errors.New("no such device")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNothingRequested = errors.New("neither audio nor video requested")
)

// MediaAccessError is returned when local capture cannot start.
type MediaAccessError struct {
	Kind string
	Err  error
}

func (e *MediaAccessError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("media access: %v", e.Err)
	}
	return fmt.Sprintf("media access (%s): %v", e.Kind, e.Err)
}

func (e *MediaAccessError) Unwrap() error { return e.Err }

// ConnectionError is returned when the signaling channel cannot be opened.
type ConnectionError struct {
	URL    string
	Status int
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("signaling connect %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("signaling connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
