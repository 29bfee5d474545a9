// Package models holds the entitlement ledger's domain types.
//
// An Order is a purchased or granted bundle of verifications. It is created by
// the purchase flow and afterwards only ever debited, one unit per successful
// verification, until it runs out or expires.
package models

import (
	"slices"
	"strings"
	"time"

	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
)

// OrderStatus is set by the purchase flow. Only active orders can be spent.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsValid reports whether s is a known status.
func (s OrderStatus) IsValid() bool {
	return s == OrderStatusActive || s == OrderStatusCancelled
}

// VerificationQuota is the spendable part of an Order.
//
// Invariants: 0 <= Remaining <= TotalGranted and Used + Remaining == TotalGranted.
type VerificationQuota struct {
	EligibleTypes []id.VerificationType
	TotalGranted  int
	Used          int
	Remaining     int
	ExpiresAt     time.Time
}

// Covers reports whether the quota may be spent on t.
func (q VerificationQuota) Covers(t id.VerificationType) bool {
	return slices.Contains(q.EligibleTypes, t)
}

// CoversAny reports whether the quota may be spent on at least one of types.
func (q VerificationQuota) CoversAny(types []id.VerificationType) bool {
	for _, t := range types {
		if q.Covers(t) {
			return true
		}
	}
	return false
}

// Order is the unit of purchased or granted entitlement.
type Order struct {
	ID        id.OrderID
	UserID    id.UserID
	Status    OrderStatus
	Quota     VerificationQuota
	CreatedAt time.Time
}

// NewOrder builds an active Order granting count verifications of the given
// types, valid for validity starting at now.
func NewOrder(userID id.UserID, types []id.VerificationType, count int, validity time.Duration, now time.Time) (*Order, error) {
	o := &Order{
		ID:     id.NewOrderID(),
		UserID: userID,
		Status: OrderStatusActive,
		Quota: VerificationQuota{
			EligibleTypes: slices.Clone(types),
			TotalGranted:  count,
			Remaining:     count,
			ExpiresAt:     now.Add(validity),
		},
		CreatedAt: now,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// NewOrderForDays is NewOrder with the purchase catalog's validity-in-days unit.
func NewOrderForDays(userID id.UserID, types []id.VerificationType, count, validityDays int, now time.Time) (*Order, error) {
	if validityDays <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "validity days must be positive")
	}
	return NewOrder(userID, types, count, time.Duration(validityDays)*24*time.Hour, now)
}

// Validate checks the invariants every persisted Order must satisfy.
func (o *Order) Validate() error {
	switch {
	case o.ID.IsNil():
		return dErrors.New(dErrors.CodeValidation, "order id is required")
	case o.UserID.IsNil():
		return dErrors.New(dErrors.CodeValidation, "user id is required")
	case !o.Status.IsValid():
		return dErrors.New(dErrors.CodeValidation, "invalid order status")
	case len(o.Quota.EligibleTypes) == 0:
		return dErrors.New(dErrors.CodeValidation, "order must be eligible for at least one verification type")
	case o.Quota.TotalGranted <= 0:
		return dErrors.New(dErrors.CodeValidation, "total granted must be positive")
	case o.Quota.Remaining < 0 || o.Quota.Remaining > o.Quota.TotalGranted:
		return dErrors.New(dErrors.CodeInvariantViolation, "remaining must be within [0, total granted]")
	case o.Quota.Used+o.Quota.Remaining != o.Quota.TotalGranted:
		return dErrors.New(dErrors.CodeInvariantViolation, "used and remaining must add up to total granted")
	case !o.Quota.ExpiresAt.After(o.CreatedAt):
		return dErrors.New(dErrors.CodeValidation, "expiry must be after creation")
	}
	for _, t := range o.Quota.EligibleTypes {
		if parsed, err := id.ParseVerificationType(t.String()); err != nil || parsed != t {
			return dErrors.New(dErrors.CodeValidation, "invalid eligible verification type")
		}
	}
	return nil
}

// IsExpired reports whether now is at or past the expiry.
func (o *Order) IsExpired(now time.Time) bool {
	return !now.Before(o.Quota.ExpiresAt)
}

// CanDebit is the debit precondition: active, at least one unit left, not expired.
func (o *Order) CanDebit(now time.Time) bool {
	return o.Status == OrderStatusActive && o.Quota.Remaining > 0 && !o.IsExpired(now)
}

// IsUsableFor reports whether the Order can pay for a verification of type t at now.
func (o *Order) IsUsableFor(t id.VerificationType, now time.Time) bool {
	return o.Quota.Covers(t) && o.CanDebit(now)
}

// IsUsableForAny reports whether the Order can pay for at least one of types at now.
func (o *Order) IsUsableForAny(types []id.VerificationType, now time.Time) bool {
	return o.Quota.CoversAny(types) && o.CanDebit(now)
}

// Debit spends one unit if the precondition holds. Callers must hold whatever
// lock makes the check and the mutation a single step.
func (o *Order) Debit(now time.Time) bool {
	if !o.CanDebit(now) {
		return false
	}
	o.Quota.Remaining--
	o.Quota.Used++
	return true
}

// Clone returns a deep copy so stores never hand out their internal pointers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Quota.EligibleTypes = slices.Clone(o.Quota.EligibleTypes)
	return &c
}

// ConsumptionLess orders Orders for spending: soonest expiry first, then
// oldest, then by id so the order is total.
func ConsumptionLess(a, b *Order) bool {
	return CompareForConsumption(a, b) < 0
}

// CompareForConsumption is the three-way form of ConsumptionLess.
func CompareForConsumption(a, b *Order) int {
	if c := a.Quota.ExpiresAt.Compare(b.Quota.ExpiresAt); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}

// SortForConsumption sorts orders in place into spending order.
func SortForConsumption(orders []*Order) {
	slices.SortFunc(orders, CompareForConsumption)
}
