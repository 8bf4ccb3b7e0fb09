package mcpserver

import (
	"context"
	"errors"

	ragerrors "github.com/aman-cerp/ragmcp/internal/errors"
)

// toolError is the {error, ...context} JSON shape every tool handler
// returns instead of letting a raw Go error reach the wire (§6).
type toolError struct {
	Error      string            `json:"error"`
	Code       string            `json:"code,omitempty"`
	Category   string            `json:"category,omitempty"`
	Retryable  bool              `json:"retryable,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// mapError converts any error into the tool-level error shape, folding in
// RAGError's structured fields when present.
func mapError(err error) toolError {
	if err == nil {
		return toolError{}
	}

	var ragErr *ragerrors.RAGError
	if errors.As(err, &ragErr) {
		return toolError{
			Error:      ragErr.Message,
			Code:       ragErr.Code,
			Category:   string(ragErr.Category),
			Retryable:  ragErr.Retryable,
			Suggestion: ragErr.Suggestion,
			Details:    ragErr.Details,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		wrapped := ragerrors.TimeoutError(err)
		return toolError{Error: wrapped.Message, Code: wrapped.Code, Category: string(wrapped.Category), Retryable: wrapped.Retryable}
	}

	return toolError{Error: err.Error(), Code: ragerrors.ErrCodeInternal, Category: string(ragerrors.CategoryInternal)}
}
