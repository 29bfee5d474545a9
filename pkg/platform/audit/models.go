package audit

import (
	"time"

	id "verigate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so stores
// can apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers billing-relevant ledger changes that must be
	// retained: grants and consumptions.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers anomalies worth alerting on, such as service
	// delivered without a matching debit.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine outcomes that can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key ledger actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category         EventCategory
	Timestamp        time.Time
	UserID           id.UserID
	Action           string
	OrderID          string
	VerificationType string
	// Remaining is the order balance after the action, when known.
	Remaining *int
	Reason    string
	RequestID string
	ClientIP  string
	// Device is a display label derived from the caller's User-Agent.
	Device string
}

type AuditEvent string

const (
	EventOrderGranted             AuditEvent = "order_granted"
	EventQuotaConsumed            AuditEvent = "quota_consumed"
	EventQuotaExhausted           AuditEvent = "quota_exhausted"
	EventVerificationFailed       AuditEvent = "verification_failed"
	EventUncompensatedConsumption AuditEvent = "uncompensated_consumption"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventOrderGranted:             CategoryCompliance,
	EventQuotaConsumed:            CategoryCompliance,
	EventUncompensatedConsumption: CategorySecurity,
	EventQuotaExhausted:           CategoryOperations,
	EventVerificationFailed:       CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
