package handler

import (
	"encoding/json"
	"time"

	"verigate/internal/entitlement/service/coordinator"
	"verigate/internal/verification/providers"
	id "verigate/pkg/domain"
)

// VerificationResponse is the body of a successful verification.
type VerificationResponse struct {
	VerificationType string          `json:"verification_type"`
	ChargedType      string          `json:"charged_type"`
	OrderID          string          `json:"order_id"`
	ProviderID       string          `json:"provider_id"`
	CheckedAt        time.Time       `json:"checked_at"`
	Data             json.RawMessage `json:"data"`
}

func toResponse(requested id.VerificationType, res *coordinator.Result, result *providers.Result) VerificationResponse {
	return VerificationResponse{
		VerificationType: requested.String(),
		ChargedType:      res.Type.String(),
		OrderID:          res.OrderID.String(),
		ProviderID:       result.ProviderID,
		CheckedAt:        result.CheckedAt,
		Data:             result.Data,
	}
}
