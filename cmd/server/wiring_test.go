package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	entitlementhandler "verigate/internal/entitlement/handler"
	entmetrics "verigate/internal/entitlement/metrics"
	"verigate/internal/entitlement/reconcile"
	"verigate/internal/entitlement/service/coordinator"
	"verigate/internal/entitlement/service/orders"
	"verigate/internal/entitlement/service/resolver"
	orderstore "verigate/internal/entitlement/store/order"
	jwttoken "verigate/internal/jwt_token"
	"verigate/internal/platform/config"
	"verigate/internal/platform/metrics"
	"verigate/internal/verification"
	verificationhandler "verigate/internal/verification/handler"
	"verigate/pkg/testutil"
)

const (
	testSigningKey = "test-signing-key"
	testAdminToken = "test-admin-token"
)

func newTestRouter(t *testing.T, checks map[string]func(context.Context) error) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := orderstore.NewInMemory()

	res, err := resolver.New(store)
	require.NoError(t, err)
	coord, err := coordinator.New(store, res,
		coordinator.WithRecorder(reconcile.NewMemoryRecorder()),
		coordinator.WithMetrics(entmetrics.NewWithRegistry(prometheus.NewRegistry())),
	)
	require.NoError(t, err)
	orderSvc, err := orders.New(store)
	require.NoError(t, err)

	registry, err := buildProviders(config.VerificationConfig{Types: []string{"pan", "company"}})
	require.NoError(t, err)
	policy, err := verification.NewPolicy(config.DefaultFallbacks, nil)
	require.NoError(t, err)

	return newRouter(routerDeps{
		logger:       log,
		httpMetrics:  metrics.NewWithRegistry(prometheus.NewRegistry()),
		validator:    jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(testSigningKey, "", "")),
		adminToken:   testAdminToken,
		verification: verificationhandler.New(coord, registry, policy, log),
		entitlements: entitlementhandler.New(orderSvc, log),
		checks:       checks,
	})
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwttoken.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestLedgerFlowOverHTTP(t *testing.T) {
	router := newTestRouter(t, nil)
	userID := uuid.NewString()
	auth := bearer(t, userID)

	grant := testutil.NewJSONRequest(t, http.MethodPost, "/admin/v1/orders", map[string]any{
		"user_id":        userID,
		"eligible_types": []string{"pan"},
		"count":          1,
		"validity_days":  30,
	})
	grant.Header.Set("X-Admin-Token", testAdminToken)
	rr := testutil.DoRequest(router, grant)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	// company falls back to the PAN order and spends its only unit.
	verify := testutil.NewRequestWithBody(t, http.MethodPost, "/v1/verifications/company", `{"cin":"U1"}`)
	verify.Header.Set("Authorization", auth)
	rr = testutil.DoRequest(router, verify)
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "charged_type", "pan")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	verify = testutil.NewRequestWithBody(t, http.MethodPost, "/v1/verifications/pan", `{}`)
	verify.Header.Set("Authorization", auth)
	rr = testutil.DoRequest(router, verify)
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "quota_exhausted")

	summary := testutil.NewRequest(t, http.MethodGet, "/v1/entitlements")
	summary.Header.Set("Authorization", auth)
	rr = testutil.DoRequest(router, summary)
	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[entitlementhandler.EntitlementSummaryResponse](t, rr)
	assert.Empty(t, resp.Entitlements)
}

func TestRouterGuards(t *testing.T) {
	router := newTestRouter(t, nil)

	t.Run("v1 requires a bearer token", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/entitlements"))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("token signed with another key is rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwttoken.Claims{UserID: uuid.NewString()})
		signed, err := token.SignedString([]byte("other-key"))
		require.NoError(t, err)
		req := testutil.NewRequest(t, http.MethodGet, "/v1/entitlements")
		req.Header.Set("Authorization", "Bearer "+signed)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("admin routes require the admin token", func(t *testing.T) {
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/admin/v1/orders", `{}`)
		req.Header.Set("X-Admin-Token", "wrong")
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		router := newTestRouter(t, map[string]func(context.Context) error{
			"postgres": func(context.Context) error { return nil },
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "postgres", "ok")
	})

	t.Run("failing probe degrades", func(t *testing.T) {
		router := newTestRouter(t, map[string]func(context.Context) error{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		testutil.AssertJSONContains(t, rr, "status", "degraded")
	})
}

func TestBuildProviders(t *testing.T) {
	t.Run("sandbox without upstream", func(t *testing.T) {
		registry, err := buildProviders(config.VerificationConfig{Types: []string{"pan", "gstin"}})
		require.NoError(t, err)
		p, ok := registry.Get("gstin")
		require.True(t, ok)
		assert.Equal(t, "sandbox-gstin", p.ID())
	})

	t.Run("upstream per type", func(t *testing.T) {
		registry, err := buildProviders(config.VerificationConfig{
			Types:           []string{"pan"},
			ProviderBaseURL: "https://verify.example.com/api",
			ProviderTimeout: time.Second,
		})
		require.NoError(t, err)
		p, ok := registry.Get("pan")
		require.True(t, ok)
		assert.Equal(t, "upstream-pan", p.ID())
	})

	t.Run("invalid type", func(t *testing.T) {
		_, err := buildProviders(config.VerificationConfig{Types: []string{"p n"}})
		assert.Error(t, err)
	})
}
