package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verigate/internal/entitlement/models"
	"verigate/internal/entitlement/service/orders"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/requestcontext"
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	Grant(ctx context.Context, req orders.GrantRequest) (*models.Order, error)
	ListActive(ctx context.Context, userID id.UserID) ([]*models.Order, error)
}

// Handler wires entitlement endpoints to the orders service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the caller-facing entitlement endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/entitlements", h.HandleSummary)
}

// RegisterAdmin mounts the purchase-flow endpoints. The caller guards them.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/orders", h.HandleGrant)
}

// HandleSummary handles GET /entitlements: the caller's usable Orders and
// the remaining quota per verification type.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	active, err := h.service.ListActive(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list entitlements",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	summaries := models.Summarize(active, requestcontext.Now(ctx))
	httputil.WriteJSON(w, http.StatusOK, toSummaryResponse(summaries, active))
}

// HandleGrant handles POST /orders.
func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[GrantOrderRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	order, err := h.service.Grant(ctx, orders.GrantRequest{
		UserID:        req.ParsedUserID(),
		EligibleTypes: req.ParsedTypes(),
		Count:         req.Count,
		ValidityDays:  req.ValidityDays,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to grant order",
			"request_id", requestID,
			"user_id", req.UserID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "order granted",
		"request_id", requestID,
		"user_id", order.UserID.String(),
		"order_id", order.ID.String(),
		"eligible_types", typesLabel(order),
		"total_granted", order.Quota.TotalGranted,
		"expires_at", order.Quota.ExpiresAt,
	)
	httputil.WriteJSON(w, http.StatusCreated, toOrderResponse(order))
}
