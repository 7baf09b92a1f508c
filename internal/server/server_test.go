package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/dutywise/dutywise/internal/account/domain"
	accountrepo "github.com/dutywise/dutywise/internal/account/repository"
	accountservice "github.com/dutywise/dutywise/internal/account/service"
	billingdomain "github.com/dutywise/dutywise/internal/billing/domain"
	"github.com/dutywise/dutywise/internal/billing/webhook"
	"github.com/dutywise/dutywise/internal/clock"
	"github.com/dutywise/dutywise/internal/config"
	"github.com/dutywise/dutywise/internal/notify"
	securitydomain "github.com/dutywise/dutywise/internal/security/domain"
	"github.com/dutywise/dutywise/internal/security/ratelimit"
	securityservice "github.com/dutywise/dutywise/internal/security/service"
	totpdomain "github.com/dutywise/dutywise/internal/totp/domain"
	totpservice "github.com/dutywise/dutywise/internal/totp/service"
)

const testWebhookSecret = "whsec_test"

type serverFixture struct {
	server *Server
	clk    *clock.FakeClock
	db     *gorm.DB
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&billingdomain.WebhookEvent{},
		&totpdomain.BackupCode{},
		&securitydomain.SecurityEvent{},
		&securitydomain.BlockedIP{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	accounts := accountrepo.Provide()
	cfg := config.Config{
		BillingWebhookSecret:    testWebhookSecret,
		BillingWebhookTolerance: 300,
		TOTPIssuer:              "Dutywise",
		BackupCodeCount:         8,
		BackupCodeLength:        10,
	}

	securitySvc := securityservice.NewService(securityservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   clk,
		Limiter: ratelimit.NewMemoryLimiter(clk),
		Limits:  config.NewStaticLimitsHolder(config.DefaultLimitsConfig()),
	})
	accountSvc := accountservice.NewService(accountservice.Params{
		DB:   db,
		Log:  log,
		Repo: accounts,
	})
	billingSvc := webhook.NewService(webhook.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Accounts: accounts,
		Security: securitySvc,
		Notifier: &notify.NoOpProvider{},
		Cfg:      cfg,
	})
	totpSvc := totpservice.NewService(totpservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Accounts: accounts,
		Security: securitySvc,
		Cfg:      cfg,
	})

	srv := NewServer(ServerParams{
		Gin:         NewEngine(log),
		Cfg:         cfg,
		DB:          db,
		Log:         log,
		Clock:       clk,
		AccountSvc:  accountSvc,
		BillingSvc:  billingSvc,
		TOTPSvc:     totpSvc,
		SecuritySvc: securitySvc,
	})
	registerRoutes(srv)

	return &serverFixture{server: srv, clk: clk, db: db}
}

func (f *serverFixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	f.server.engine.ServeHTTP(rec, req)
	return rec
}

func identityHeaders(id string, confirmedAt *time.Time) map[string]string {
	headers := map[string]string{
		"X-Identity-Id":    id,
		"X-Identity-Email": id + "@example.com",
	}
	if confirmedAt != nil {
		headers["X-Identity-Email-Confirmed-At"] = confirmedAt.Format(time.RFC3339)
	}
	return headers
}

func TestAccountStateRequiresIdentity(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/account/state", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccountStateResolvesLifecycle(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/account/state", "", identityHeaders("acct_1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var state accountdomain.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, accountdomain.StatePendingEmail, state.Lifecycle)
	assert.True(t, state.NeedsEmailVerification)

	confirmed := f.clk.Now()
	rec = f.do(t, http.MethodGet, "/api/account/state", "", identityHeaders("acct_1", &confirmed))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, accountdomain.StatePendingSubscription, state.Lifecycle)
	assert.True(t, state.NeedsSubscription)
}

func TestTOTPRoutesRequireConfirmedEmail(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/totp/setup", "", identityHeaders("acct_1", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	var decision struct {
		Allow    bool   `json:"allow"`
		Redirect string `json:"redirect"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.False(t, decision.Allow)
	assert.Equal(t, "/verify-email", decision.Redirect)

	confirmed := f.clk.Now()
	rec = f.do(t, http.MethodPost, "/api/totp/setup", "", identityHeaders("acct_1", &confirmed))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBillingWebhookEndpoint(t *testing.T) {
	f := newServerFixture(t)

	confirmed := f.clk.Now()
	rec := f.do(t, http.MethodGet, "/api/account/state", "", identityHeaders("acct_1", &confirmed))
	require.Equal(t, http.StatusOK, rec.Code)

	payload := fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"customer": "cus_1",
			"subscription": "sub_1",
			"metadata": {"account_id": %q}
		}}
	}`, "acct_1")

	// Unsigned deliveries are rejected. A bad signature is the only
	// delivery error that surfaces as a 4xx.
	rec = f.do(t, http.MethodPost, "/webhooks/billing", payload, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A signed payload that cannot parse is acknowledged as a skip.
	garbled := `{"id": "evt_garbled", "type": "invoice.paid", "data": {"object": []}}`
	rec = f.do(t, http.MethodPost, "/webhooks/billing", garbled, map[string]string{
		webhook.SignatureHeader: webhook.SignPayload(testWebhookSecret, []byte(garbled), f.clk.Now()),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var skipped billingdomain.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &skipped))
	assert.Equal(t, billingdomain.OutcomeSkipped, skipped.Outcome)
	assert.Equal(t, billingdomain.SkipInvalidPayload, skipped.Reason)

	rec = f.do(t, http.MethodPost, "/webhooks/billing", payload, map[string]string{
		webhook.SignatureHeader: webhook.SignPayload(testWebhookSecret, []byte(payload), f.clk.Now()),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result billingdomain.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, billingdomain.OutcomeApplied, result.Outcome)

	// The account is now active end to end.
	rec = f.do(t, http.MethodGet, "/api/account/state", "", identityHeaders("acct_1", &confirmed))
	require.Equal(t, http.StatusOK, rec.Code)
	var state accountdomain.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, accountdomain.StateActive, state.Lifecycle)
	assert.True(t, state.CanAccessGatedFeatures)
}

func TestTOTPVerifyRateLimited(t *testing.T) {
	f := newServerFixture(t)
	confirmed := f.clk.Now()
	headers := identityHeaders("acct_1", &confirmed)

	// totp_verify allows 5 attempts per 5 minutes; the account is not
	// enrolled so each attempt fails fast after the limiter records it.
	for i := 0; i < 5; i++ {
		rec := f.do(t, http.MethodPost, "/api/totp/verify", `{"code":"123456"}`, headers)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/totp/verify", `{"code":"123456"}`, headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	f.clk.Advance(6 * time.Minute)
	rec = f.do(t, http.MethodPost, "/api/totp/verify", `{"code":"123456"}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
