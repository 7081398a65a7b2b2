package service

import (
	"errors"
	"fmt"
)

// ErrTranscriptionInFlight means a background transcription is already
// pending or running for the video.
var ErrTranscriptionInFlight = errors.New("transcription already in progress")

// ErrConcurrentUpdate means the record kept changing underneath an update.
var ErrConcurrentUpdate = errors.New("video changed during update")

// ValidationError represents caller input that cannot be processed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError represents a missing video record.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("video %d not found", e.ID)
}

// UpstreamKind classifies a metadata provider failure.
type UpstreamKind int

const (
	// UpstreamUnavailable is a transport or remote API failure.
	UpstreamUnavailable UpstreamKind = iota
	// UpstreamUnresolvable means the provider does not know the identifier.
	UpstreamUnresolvable
	// UpstreamMisconfigured means the provider credential is missing.
	UpstreamMisconfigured
)

// UpstreamError represents a metadata provider failure during a synchronous call.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type UpstreamError struct {
	Kind    UpstreamKind
	VideoID string
	Cause   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("metadata lookup for %s: %v", e.VideoID, e.Cause)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// ConflictError represents a request that clashes with work in progress.
type ConflictError struct {
	Message string
	Cause   error
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) Unwrap() error {
	return e.Cause
}

// ProcessingError represents a store failure or other internal error.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ProcessingError struct {
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}
