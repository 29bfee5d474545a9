package handler

import (
	"strings"

	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
)

const (
	maxGrantCount        = 1_000_000
	maxGrantValidityDays = 3650
)

// GrantOrderRequest is the body of POST /admin/v1/orders, sent by the
// purchase flow once payment is confirmed.
type GrantOrderRequest struct {
	UserID        string   `json:"user_id"`
	EligibleTypes []string `json:"eligible_types"`
	Count         int      `json:"count"`
	ValidityDays  int      `json:"validity_days"`

	parsedUserID id.UserID
	parsedTypes  []id.VerificationType
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *GrantOrderRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.UserID = strings.TrimSpace(r.UserID)
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	userID, err := id.ParseUserID(r.UserID)
	if err != nil {
		return err
	}
	r.parsedUserID = userID

	if len(r.EligibleTypes) == 0 {
		return dErrors.New(dErrors.CodeValidation, "eligible_types is required")
	}
	types, err := id.ParseVerificationTypes(r.EligibleTypes)
	if err != nil {
		return err
	}
	r.parsedTypes = types

	if r.Count <= 0 || r.Count > maxGrantCount {
		return dErrors.New(dErrors.CodeValidation, "count must be between 1 and 1000000")
	}
	if r.ValidityDays <= 0 || r.ValidityDays > maxGrantValidityDays {
		return dErrors.New(dErrors.CodeValidation, "validity_days must be between 1 and 3650")
	}
	return nil
}

// ParsedUserID returns the validated user id.
func (r *GrantOrderRequest) ParsedUserID() id.UserID {
	return r.parsedUserID
}

// ParsedTypes returns the validated, de-duplicated eligible types.
func (r *GrantOrderRequest) ParsedTypes() []id.VerificationType {
	return r.parsedTypes
}
