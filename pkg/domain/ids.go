package domain

import (
	"github.com/google/uuid"

	dErrors "verigate/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so a user id can never be passed where
// an order id is expected.
type (
	UserID  uuid.UUID
	OrderID uuid.UUID
)

// ParseUserID parses a user id from external input.
//
// Errors: CodeInvalidInput when the value is empty, malformed, or the nil UUID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseOrderID parses an order id from external input.
//
// Errors: CodeInvalidInput when the value is empty, malformed, or the nil UUID.
func ParseOrderID(s string) (OrderID, error) {
	u, err := parseUUID(s, "order_id")
	if err != nil {
		return OrderID{}, err
	}
	return OrderID(u), nil
}

// NewOrderID returns a fresh random order id.
func NewOrderID() OrderID {
	return OrderID(uuid.New())
}

func (u UserID) String() string { return uuid.UUID(u).String() }
func (u UserID) IsNil() bool    { return uuid.UUID(u) == uuid.Nil }

func (o OrderID) String() string { return uuid.UUID(o).String() }
func (o OrderID) IsNil() bool    { return uuid.UUID(o) == uuid.Nil }

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}
