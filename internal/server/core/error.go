package core

// Error codes
const (
	ErrMatchNotFound     = "MATCH_NOT_FOUND"
	ErrMatchUnavailable  = "MATCH_UNAVAILABLE"
	ErrInvalidMove       = "INVALID_MOVE"
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrInvalidContent    = "INVALID_CONTENT_TYPE"
	ErrRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrInternalError     = "INTERNAL_ERROR"
)

// ErrorResponse is the error body used by both the HTTP API and the error event
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
