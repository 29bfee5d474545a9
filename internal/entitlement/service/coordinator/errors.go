package coordinator

import (
	"errors"
	"fmt"

	id "verigate/pkg/domain"
	strs "verigate/pkg/platform/strings"
)

// ErrQuotaExhausted is matched by every QuotaExhaustedError.
var ErrQuotaExhausted = errors.New("quota exhausted")

// QuotaExhaustedError means no listed type had a usable Order. The operation
// was not invoked.
type QuotaExhaustedError struct {
	Types []id.VerificationType
}

func (e *QuotaExhaustedError) Error() string {
	switch len(e.Types) {
	case 0:
		return "Verification quota exhausted or expired"
	case 1:
		return fmt.Sprintf("Verification quota exhausted or expired for %s", e.Types[0])
	default:
		return fmt.Sprintf("Verification quota exhausted or expired for %s or %s",
			e.Types[0], strs.Join(e.Types[1:], ", "))
	}
}

func (e *QuotaExhaustedError) Unwrap() error {
	return ErrQuotaExhausted
}

// OperationFailedError wraps the error of a metered operation. Nothing was
// charged.
type OperationFailedError struct {
	Type    id.VerificationType
	OrderID id.OrderID
	Err     error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("verification operation failed: %v", e.Err)
}

func (e *OperationFailedError) Unwrap() error {
	return e.Err
}

// IsQuotaExhausted reports whether err came from an exhausted quota.
func IsQuotaExhausted(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}

// AsOperationFailed extracts the operation failure from err.
func AsOperationFailed(err error) (*OperationFailedError, bool) {
	var opErr *OperationFailedError
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}
