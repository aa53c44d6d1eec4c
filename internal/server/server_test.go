package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/hakwonlab/wonpay/internal/clock"
	"github.com/hakwonlab/wonpay/internal/config"
	"github.com/hakwonlab/wonpay/internal/plan"
	"github.com/hakwonlab/wonpay/internal/providers/alert"
	settlementdomain "github.com/hakwonlab/wonpay/internal/settlement/domain"
	settlementrepo "github.com/hakwonlab/wonpay/internal/settlement/repository"
	subscriptiondomain "github.com/hakwonlab/wonpay/internal/subscription/domain"
	subscriptionrepo "github.com/hakwonlab/wonpay/internal/subscription/repository"
	syncdomain "github.com/hakwonlab/wonpay/internal/sync/domain"
	usagedomain "github.com/hakwonlab/wonpay/internal/usage/domain"
	"github.com/hakwonlab/wonpay/internal/usage/limits"
	usagerepo "github.com/hakwonlab/wonpay/internal/usage/repository"
	usageservice "github.com/hakwonlab/wonpay/internal/usage/service"
	webhookdomain "github.com/hakwonlab/wonpay/internal/webhook/domain"
	webhookrepo "github.com/hakwonlab/wonpay/internal/webhook/repository"
	webhookservice "github.com/hakwonlab/wonpay/internal/webhook/service"
	"github.com/hakwonlab/wonpay/internal/webhook/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "test_webhook_secret_12345"

type stubSubscriptionService struct {
	subscriptiondomain.Service

	sub    *subscriptiondomain.Subscription
	getErr error
}

func (s *stubSubscriptionService) Get(ctx context.Context, academyID string) (*subscriptiondomain.Subscription, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.sub, nil
}

func (s *stubSubscriptionService) Cancel(ctx context.Context, academyID string) error {
	return s.getErr
}

type stubSyncService struct {
	report syncdomain.Report
	err    error
}

func (s *stubSyncService) SyncAll(ctx context.Context, opts syncdomain.Options) (syncdomain.Report, error) {
	return s.report, s.err
}

func (s *stubSyncService) SyncSettlements(ctx context.Context, opts syncdomain.Options) (syncdomain.Counts, error) {
	return s.report.Settlements, s.err
}

func (s *stubSyncService) SyncPayouts(ctx context.Context, opts syncdomain.Options) (syncdomain.Counts, error) {
	return s.report.Payouts, s.err
}

type serverFixture struct {
	srv  *Server
	db   *gorm.DB
	clk  *clock.FakeClock
	subs *stubSubscriptionService
	sync *stubSyncService
}

func newFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&webhookdomain.EventRecord{},
		&settlementdomain.Settlement{},
		&settlementdomain.Payout{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.Invoice{},
		&usagedomain.Snapshot{},
	))

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	catalog := plan.NewCatalog(log)

	webhookSvc := webhookservice.NewService(webhookservice.Params{
		DB:            db,
		Log:           log,
		GenID:         node,
		Cfg:           config.Config{WebhookSecret: testSecret},
		Clock:         clk,
		Repo:          webhookrepo.Provide(),
		Settlements:   settlementrepo.Provide(),
		Subscriptions: subscriptionrepo.Provide(),
		Alerts:        &alert.NoOpProvider{},
	})

	subs := &stubSubscriptionService{}
	syncSvc := &stubSyncService{}

	fixture := &serverFixture{
		db:   db,
		clk:  clk,
		subs: subs,
		sync: syncSvc,
	}
	fixture.srv = NewServer(Params{
		Engine:          NewEngine(),
		Cfg:             config.Config{WebhookRateLimit: 20, WebhookRateBurst: 60},
		DB:              db,
		Log:             log,
		Catalog:         catalog,
		WebhookSvc:      webhookSvc,
		SyncSvc:         syncSvc,
		SubscriptionSvc: subs,
		Settlements:     settlementrepo.Provide(),
		UsageSvc: usageservice.NewService(usageservice.Params{
			DB:    db,
			Log:   log,
			GenID: node,
			Clock: clk,
			Repo:  usagerepo.Provide(),
		}),
		Enforcer: limits.NewEnforcer(limits.Params{
			DB:            db,
			Log:           log,
			Catalog:       catalog,
			Subscriptions: subscriptionrepo.Provide(),
			Usage:         usagerepo.Provide(),
		}),
	})
	return fixture
}

func (f *serverFixture) signedRequest(t *testing.T, path, webhookID string, payload []byte) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(f.clk.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(payload)))
	req.Header.Set("webhook-id", webhookID)
	req.Header.Set("webhook-signature", "v1,"+verify.Sign(testSecret, webhookID, ts, payload))
	req.Header.Set("webhook-timestamp", ts)
	return req
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.srv.engine.ServeHTTP(w, req)
	return w
}

func TestSettlementWebhook_EndToEnd(t *testing.T) {
	f := newFixture(t)

	payload := []byte(`{"type":"Settlement.Settled","timestamp":"2026-03-10T09:00:00Z","data":{"settlementId":"s1","partnerId":"p1","status":"SETTLED"}}`)
	w := f.do(f.signedRequest(t, "/webhooks/settlements", "test-settlement-123", payload))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var settlement settlementdomain.Settlement
	require.NoError(t, f.db.First(&settlement, "settlement_id = ?", "s1").Error)
	assert.Equal(t, settlementdomain.SettlementSettled, settlement.Status)
	assert.Equal(t, "p1", settlement.PartnerID)
}

func TestSettlementWebhook_DuplicateDeliveryAnsweredOK(t *testing.T) {
	f := newFixture(t)

	payload := []byte(`{"type":"Settlement.Settled","timestamp":"2026-03-10T09:00:00Z","data":{"settlementId":"s1","partnerId":"p1","status":"SETTLED"}}`)
	require.Equal(t, http.StatusOK, f.do(f.signedRequest(t, "/webhooks/settlements", "wh-1", payload)).Code)
	require.Equal(t, http.StatusOK, f.do(f.signedRequest(t, "/webhooks/settlements", "wh-1", payload)).Code)

	var count int64
	require.NoError(t, f.db.Model(&settlementdomain.Settlement{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSettlementWebhook_BadSignature(t *testing.T) {
	f := newFixture(t)

	payload := []byte(`{"type":"Settlement.Settled","data":{"settlementId":"s1","status":"SETTLED"}}`)
	req := f.signedRequest(t, "/webhooks/settlements", "wh-forged", payload)
	req.Header.Set("webhook-signature", "v1,AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")

	w := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")
}

func TestSettlementWebhook_MissingHeaders(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/settlements", strings.NewReader(`{}`))
	w := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPayoutWebhook_EndToEnd(t *testing.T) {
	f := newFixture(t)

	payload := []byte(`{"type":"Payout.Succeeded","timestamp":"2026-03-10T09:00:00Z","data":{"payoutId":"po1","partnerId":"p1","status":"SUCCEEDED","amount":97000,"currency":"KRW"}}`)
	w := f.do(f.signedRequest(t, "/webhooks/payouts", "wh-po-1", payload))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var payout settlementdomain.Payout
	require.NoError(t, f.db.First(&payout, "payout_id = ?", "po1").Error)
	assert.Equal(t, settlementdomain.PayoutSucceeded, payout.Status)
}

func TestSync_Success(t *testing.T) {
	f := newFixture(t)
	f.sync.report = syncdomain.Report{
		Settlements: syncdomain.Counts{Synced: 8, Errors: 2},
		Payouts:     syncdomain.Counts{Synced: 3},
		Duration:    1500 * time.Millisecond,
	}

	w := f.do(httptest.NewRequest(http.MethodPost, "/sync?since=2026-03-01T00:00:00Z&limit=50", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Contains(t, w.Body.String(), `"synced":8`)
}

func TestSync_FailureKeepsResponseShape(t *testing.T) {
	f := newFixture(t)
	f.sync.err = errors.New("gateway down")

	w := f.do(httptest.NewRequest(http.MethodPost, "/sync", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestSync_BadSinceParam(t *testing.T) {
	f := newFixture(t)

	w := f.do(httptest.NewRequest(http.MethodPost, "/sync?since=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncInfo_NeverErrors(t *testing.T) {
	f := newFixture(t)
	f.sync.err = errors.New("gateway down")

	w := f.do(httptest.NewRequest(http.MethodGet, "/sync", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"endpoint":"/sync"`)
	assert.Contains(t, w.Body.String(), `"method":"POST"`)
}

func TestGetSubscription_NotFound(t *testing.T) {
	f := newFixture(t)
	f.subs.getErr = subscriptiondomain.ErrNotFound

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/subscriptions/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSubscription_DerivedCancellingStatus(t *testing.T) {
	f := newFixture(t)
	f.subs.sub = &subscriptiondomain.Subscription{
		AcademyID:          "academy-1",
		PlanTier:           plan.TierBasic,
		Status:             subscriptiondomain.StatusActive,
		BillingCycle:       plan.CycleMonthly,
		AutoRenew:          false,
		CurrentPeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/subscriptions/academy-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"cancelling"`)
}

func TestHasFeature(t *testing.T) {
	f := newFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/academies/academy-1/features/api_access", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"enabled":false`, "free tier has no api access")

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/academies/academy-1/features/no_such_feature", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestUsage(t *testing.T) {
	f := newFixture(t)

	body := `{"academyId":"academy-1","studentCount":19,"teacherCount":2,"classroomCount":3}`
	req := httptest.NewRequest(http.MethodPost, "/api/usage", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	require.Equal(t, http.StatusOK, f.do(req).Code)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/academies/academy-1/can-add-students?count=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed":true`)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/academies/academy-1/can-add-students?count=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed":false`)
}

func TestListSettlements(t *testing.T) {
	f := newFixture(t)

	payload := []byte(`{"type":"Settlement.Scheduled","timestamp":"2026-03-10T09:00:00Z","data":{"settlementId":"s1","partnerId":"p1","status":"SCHEDULED"}}`)
	require.Equal(t, http.StatusOK, f.do(f.signedRequest(t, "/webhooks/settlements", "wh-list-1", payload)).Code)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/settlements", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"settlementId":"s1"`)
}
