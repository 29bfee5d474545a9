package handler

import (
	"time"

	"verigate/internal/entitlement/models"
	strs "verigate/pkg/platform/strings"
)

// EntitlementSummaryResponse is the body of GET /v1/entitlements.
type EntitlementSummaryResponse struct {
	Entitlements []TypeSummaryResponse `json:"entitlements"`
	Orders       []OrderResponse       `json:"orders"`
}

type TypeSummaryResponse struct {
	VerificationType string    `json:"verification_type"`
	Remaining        int       `json:"remaining"`
	Orders           int       `json:"orders"`
	SoonestExpiry    time.Time `json:"soonest_expiry"`
}

type OrderResponse struct {
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	EligibleTypes []string  `json:"eligible_types"`
	TotalGranted  int       `json:"total_granted"`
	Used          int       `json:"used"`
	Remaining     int       `json:"remaining"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func toOrderResponse(o *models.Order) OrderResponse {
	types := make([]string, len(o.Quota.EligibleTypes))
	for i, t := range o.Quota.EligibleTypes {
		types[i] = t.String()
	}
	return OrderResponse{
		OrderID:       o.ID.String(),
		Status:        string(o.Status),
		EligibleTypes: types,
		TotalGranted:  o.Quota.TotalGranted,
		Used:          o.Quota.Used,
		Remaining:     o.Quota.Remaining,
		ExpiresAt:     o.Quota.ExpiresAt,
		CreatedAt:     o.CreatedAt,
	}
}

func toSummaryResponse(summaries []models.TypeSummary, orders []*models.Order) EntitlementSummaryResponse {
	resp := EntitlementSummaryResponse{
		Entitlements: make([]TypeSummaryResponse, 0, len(summaries)),
		Orders:       make([]OrderResponse, 0, len(orders)),
	}
	for _, s := range summaries {
		resp.Entitlements = append(resp.Entitlements, TypeSummaryResponse{
			VerificationType: s.Type.String(),
			Remaining:        s.Remaining,
			Orders:           s.Orders,
			SoonestExpiry:    s.SoonestExpiry,
		})
	}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(o))
	}
	return resp
}

// typesLabel renders eligible types for logs.
func typesLabel(o *models.Order) string {
	return strs.Join(o.Quota.EligibleTypes, ",")
}
