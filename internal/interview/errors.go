package interview

import "errors"

// Errors for session operations.
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrEmptyPosition        = errors.New("position must not be empty")
	ErrEmptyMessage         = errors.New("message must not be empty")
	ErrSessionNotActive     = errors.New("session not active")
	ErrAIService            = errors.New("ai service failure")
	ErrInsufficientFeedback = errors.New("no persona feedback collected")
	ErrPersistence          = errors.New("persistence failure")
)
