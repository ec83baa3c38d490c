// Package storage provides composable storage interfaces for the Engram
// memory engine.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed, so the engine never
// depends on a concrete backend.
package storage

import "errors"

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// SearchHit is one lexical search result before presentation formatting.
type SearchHit struct {
	// Text is the matched content (message content or memory summary).
	Text string

	// Timestamp is the unix-seconds time the underlying row was written.
	Timestamp int64
}

// HistoryOptions configures a history fetch.
type HistoryOptions struct {
	// Limit caps the number of most-recent messages returned.
	// Zero means unlimited.
	Limit int
}
