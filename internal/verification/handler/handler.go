package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"verigate/internal/entitlement/service/coordinator"
	"verigate/internal/verification"
	"verigate/internal/verification/providers"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Coordinator

// Coordinator meters one operation against the caller's quota.
type Coordinator interface {
	Run(ctx context.Context, userID id.UserID, priority []id.VerificationType, op coordinator.Operation) (*coordinator.Result, error)
}

// Handler serves metered verification requests.
type Handler struct {
	coordinator Coordinator
	registry    *providers.Registry
	policy      *verification.Policy
	logger      *slog.Logger
}

// New constructs a verification handler with its dependencies.
func New(coord Coordinator, registry *providers.Registry, policy *verification.Policy, logger *slog.Logger) *Handler {
	return &Handler{
		coordinator: coord,
		registry:    registry,
		policy:      policy,
		logger:      logger,
	}
}

// Register mounts verification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verifications/{type}", h.HandleVerify)
}

// HandleVerify handles POST /verifications/{type}. The payload is forwarded
// to the provider for {type} and paid for from the policy chain of {type}.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	vtype, err := id.ParseVerificationType(chi.URLParam(r, "type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	provider, ok := h.registry.Get(vtype)
	if !ok {
		httputil.WriteError(w, dErrors.Wrap(providers.ErrProviderNotFound, dErrors.CodeNotFound, "unsupported verification type"))
		return
	}

	payload, err := httputil.DecodeRawJSON(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule := h.policy.Rule(vtype)
	if err := rule.CheckPayload(payload); err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.coordinator.Run(ctx, userID, rule.Chain, func(ctx context.Context) (any, error) {
		return provider.Verify(ctx, payload)
	})
	if err != nil {
		h.writeRunError(ctx, w, err, userID, vtype)
		return
	}

	result, ok := res.Value.(*providers.Result)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "unexpected provider result"))
		return
	}

	h.logger.InfoContext(ctx, "verification completed",
		"request_id", requestID,
		"user_id", userID.String(),
		"verification_type", vtype.String(),
		"charged_type", res.Type.String(),
		"order_id", res.OrderID.String(),
		"debited", res.Debited,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, toResponse(vtype, res, result))
}

func (h *Handler) writeRunError(ctx context.Context, w http.ResponseWriter, err error, userID id.UserID, vtype id.VerificationType) {
	if coordinator.IsQuotaExhausted(err) {
		h.logger.InfoContext(ctx, "verification rejected, quota exhausted",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID.String(),
			"verification_type", vtype.String(),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeQuotaExhausted, err.Error()))
		return
	}
	if opErr, ok := coordinator.AsOperationFailed(err); ok {
		h.logger.WarnContext(ctx, "verification provider failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID.String(),
			"verification_type", vtype.String(),
			"category", string(providers.GetCategory(opErr.Err)),
			"error", opErr.Err,
		)
		httputil.WriteError(w, providers.ToDomainError(opErr.Err))
		return
	}
	h.logger.ErrorContext(ctx, "verification failed",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID.String(),
		"verification_type", vtype.String(),
		"error", err,
	)
	httputil.WriteError(w, err)
}
