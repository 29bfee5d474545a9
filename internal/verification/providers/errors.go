package providers

import (
	"errors"
	"fmt"

	dErrors "verigate/pkg/domain-errors"
)

// ErrorCategory defines the normalized failure taxonomy
type ErrorCategory string

const (
	// ErrorTimeout indicates the provider took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the request or the provider's answer was malformed
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates credential or permission issues with the provider
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorProviderOutage indicates the provider is unavailable
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorNotFound indicates the requested record doesn't exist
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// ProviderError wraps provider failures with normalized categorization
type ProviderError struct {
	Category   ErrorCategory
	ProviderID string
	Message    string
	Underlying error
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.ProviderID, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.ProviderID, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError creates a new normalized provider error
func NewProviderError(category ErrorCategory, providerID, message string, underlying error) *ProviderError {
	return &ProviderError{
		Category:   category,
		ProviderID: providerID,
		Message:    message,
		Underlying: underlying,
	}
}

// GetCategory extracts the error category from an error
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}

// ToDomainError translates a provider failure into the coded error the HTTP
// boundary understands. The provider's message is kept for client-facing
// categories and dropped for internal ones.
func ToDomainError(err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "verification failed")
	}
	switch pe.Category {
	case ErrorTimeout:
		return dErrors.Wrap(err, dErrors.CodeTimeout, "verification provider timed out")
	case ErrorNotFound:
		return dErrors.Wrap(err, dErrors.CodeNotFound, pe.Message)
	case ErrorBadData:
		return dErrors.Wrap(err, dErrors.CodeUnprocessable, pe.Message)
	case ErrorInternal:
		return dErrors.Wrap(err, dErrors.CodeInternal, "verification failed")
	default:
		return dErrors.Wrap(err, dErrors.CodeUpstream, "verification provider unavailable")
	}
}

// Sentinel errors for common cases
var (
	ErrProviderNotFound = errors.New("provider not found")
)
