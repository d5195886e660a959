package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned when a record id does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrCityNotFound is returned when the forecast feed has no such location.
	ErrCityNotFound = errors.New("city not found")

	// ErrTickInProgress is returned when a caller gave up waiting for a
	// running tick of the same feed.
	ErrTickInProgress = errors.New("feed tick already in progress")
)

// FetchErrorKind classifies transport failures against an upstream feed.
type FetchErrorKind string

const (
	FetchNetwork    FetchErrorKind = "network"
	FetchHTTPStatus FetchErrorKind = "http_status"
	FetchTimeout    FetchErrorKind = "timeout"
)

// FetchError aborts the current tick only; the next tick retries.
type FetchError struct {
	Feed   Feed
	Kind   FetchErrorKind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPStatus {
		return fmt.Sprintf("fetch %s: upstream status %d", e.Feed, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Feed, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ShapeError means the payload's top-level structure is unrecognisable.
type ShapeError struct {
	Feed   Feed
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("unrecognised %s payload: %s", e.Feed, e.Reason)
}

// ConfigMissingError means a credential or backend is not configured.
type ConfigMissingError struct {
	Setting string
}

func (e *ConfigMissingError) Error() string {
	return e.Setting + " is not configured"
}

// GenerationError wraps a failed text-generation call.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// DispatchError wraps a failed speech dispatch. It is logged, never returned
// to pipeline callers.
type DispatchError struct {
	Status int
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("speech dispatch: %v", e.Err)
	}
	return fmt.Sprintf("speech dispatch: status %d", e.Status)
}

func (e *DispatchError) Unwrap() error { return e.Err }
