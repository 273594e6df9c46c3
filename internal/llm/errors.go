package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRateLimit indicates the provider returned a rate limit error (429).
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrInvalidResponse indicates the provider returned a reply that could not
// be used, such as one with no text.
type ErrInvalidResponse struct {
	Content string
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid LLM response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down or unreachable.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM provider unavailable: %v", e.Err)
	}
	return "LLM provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrInvalidCredential indicates the API key was rejected.
type ErrInvalidCredential struct {
	Err error
}

func (e *ErrInvalidCredential) Error() string {
	return fmt.Sprintf("LLM credential rejected: %v", e.Err)
}

func (e *ErrInvalidCredential) Unwrap() error { return e.Err }

// ErrQuotaExceeded indicates the account has run out of quota or credit.
// Unlike ErrRateLimit it does not clear by waiting.
type ErrQuotaExceeded struct {
	Err error
}

func (e *ErrQuotaExceeded) Error() string {
	return fmt.Sprintf("LLM quota exceeded: %v", e.Err)
}

func (e *ErrQuotaExceeded) Unwrap() error { return e.Err }

// ErrorTag is the normalized category of a provider failure.
type ErrorTag string

const (
	TagInvalidCredential ErrorTag = "invalid_credential"
	TagQuotaExceeded     ErrorTag = "quota_exceeded"
	TagRateLimited       ErrorTag = "rate_limited"
	TagUnavailable       ErrorTag = "unavailable"
	TagTimeout           ErrorTag = "timeout"
	TagRequestFailed     ErrorTag = "request_failed"
)

// Tags lists every ErrorTag.
var Tags = []ErrorTag{
	TagInvalidCredential,
	TagQuotaExceeded,
	TagRateLimited,
	TagUnavailable,
	TagTimeout,
	TagRequestFailed,
}

// Tag classifies err into one of the fixed error tags. A nil error has no tag.
func Tag(err error) ErrorTag {
	if err == nil {
		return ""
	}
	var (
		cred  *ErrInvalidCredential
		quota *ErrQuotaExceeded
		rl    *ErrRateLimit
		down  *ErrProviderUnavailable
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return TagTimeout
	case errors.As(err, &cred):
		return TagInvalidCredential
	case errors.As(err, &quota):
		return TagQuotaExceeded
	case errors.As(err, &rl):
		return TagRateLimited
	case errors.As(err, &down):
		return TagUnavailable
	}
	return TagRequestFailed
}
