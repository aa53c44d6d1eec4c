package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/hakwonlab/wonpay/internal/clock"
	"github.com/hakwonlab/wonpay/internal/portone"
	"github.com/hakwonlab/wonpay/internal/providers/alert"
	"github.com/hakwonlab/wonpay/internal/ratelimit"
	settlementdomain "github.com/hakwonlab/wonpay/internal/settlement/domain"
	settlementrepo "github.com/hakwonlab/wonpay/internal/settlement/repository"
	"github.com/hakwonlab/wonpay/internal/sync/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeGateway struct {
	settlements []map[string]any
	payouts     []map[string]any
	status      int
}

func (g *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/platform/partner-settlements", func(w http.ResponseWriter, r *http.Request) {
		g.respond(w, r, g.settlements)
	})
	mux.HandleFunc("/platform/payouts", func(w http.ResponseWriter, r *http.Request) {
		g.respond(w, r, g.payouts)
	})
	return mux
}

func (g *fakeGateway) respond(w http.ResponseWriter, r *http.Request, items []map[string]any) {
	if g.status != 0 {
		http.Error(w, "upstream broken", g.status)
		return
	}

	var body struct {
		Page struct {
			Number int `json:"number"`
			Size   int `json:"size"`
		} `json:"page"`
	}
	_ = json.Unmarshal([]byte(r.URL.Query().Get("requestBody")), &body)

	size := body.Page.Size
	if size <= 0 {
		size = 100
	}
	from := body.Page.Number * size
	until := from + size
	if from > len(items) {
		from = len(items)
	}
	if until > len(items) {
		until = len(items)
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"items": items[from:until],
		"page": map[string]any{
			"number":     body.Page.Number,
			"size":       size,
			"totalCount": len(items),
		},
	})
}

func newSyncFixture(t *testing.T, gw *fakeGateway) (*Service, *gorm.DB, settlementdomain.Repository) {
	t.Helper()

	srv := httptest.NewServer(gw.handler())
	t.Cleanup(srv.Close)

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&settlementdomain.Settlement{}, &settlementdomain.Payout{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	repo := settlementrepo.Provide()
	svc := &Service{
		db:            conn,
		log:           zap.NewNop(),
		genID:         node,
		clock:         clock.NewFakeClock(time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)),
		client:        portone.New(portone.Config{BaseURL: srv.URL, APISecret: "secret"}, zap.NewNop()),
		settlements:   repo,
		locker:        ratelimit.NewLocker(nil),
		alerts:        &alert.NoOpProvider{},
		defaultWindow: 7 * 24 * time.Hour,
		defaultLimit:  100,
	}
	return svc, conn, repo
}

func settlementItem(id, status string, amount int64) map[string]any {
	return map[string]any{
		"id":               id,
		"partnerId":        "partner-1",
		"status":           status,
		"orderAmount":      amount,
		"settlementAmount": amount - 3000,
	}
}

func TestSyncSettlementsCountsMalformedItems(t *testing.T) {
	gw := &fakeGateway{}
	for i := 0; i < 8; i++ {
		gw.settlements = append(gw.settlements, settlementItem(fmt.Sprintf("stl-%d", i), "SETTLED", 100000))
	}
	// Two malformed items: one without an id, one with an unknown status.
	gw.settlements = append(gw.settlements, settlementItem("", "SETTLED", 100000))
	gw.settlements = append(gw.settlements, settlementItem("stl-bad", "EXPLODED", 100000))

	svc, conn, repo := newSyncFixture(t, gw)

	counts, err := svc.SyncSettlements(context.Background(), domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.Counts{Synced: 8, Errors: 2}, counts)

	got, err := repo.FindSettlement(context.Background(), conn, "stl-3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, settlementdomain.SettlementSettled, got.Status)

	bad, err := repo.FindSettlement(context.Background(), conn, "stl-bad")
	require.NoError(t, err)
	assert.Nil(t, bad)
}

func TestSyncPaginatesAllPages(t *testing.T) {
	gw := &fakeGateway{}
	for i := 0; i < 25; i++ {
		gw.settlements = append(gw.settlements, settlementItem(fmt.Sprintf("stl-p%d", i), "SCHEDULED", 50000))
	}

	svc, _, _ := newSyncFixture(t, gw)

	counts, err := svc.SyncSettlements(context.Background(), domain.Options{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, domain.Counts{Synced: 25}, counts)
}

func TestSyncDoesNotRegressWebhookState(t *testing.T) {
	gw := &fakeGateway{
		settlements: []map[string]any{settlementItem("stl-race", "SCHEDULED", 100000)},
	}
	svc, conn, repo := newSyncFixture(t, gw)
	ctx := context.Background()

	// A webhook already advanced this settlement to SETTLED.
	now := time.Date(2025, 6, 19, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertSettlement(ctx, conn, &settlementdomain.Settlement{
		ID: 1, SettlementID: "stl-race", PartnerID: "partner-1",
		Status: settlementdomain.SettlementSettled, Currency: "KRW",
		CreatedAt: now, UpdatedAt: now,
	}))

	counts, err := svc.SyncSettlements(ctx, domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.Counts{Synced: 1}, counts)

	got, err := repo.FindSettlement(ctx, conn, "stl-race")
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.SettlementSettled, got.Status)
}

func TestSyncAllReportsBothKinds(t *testing.T) {
	gw := &fakeGateway{
		settlements: []map[string]any{
			settlementItem("stl-a", "SETTLED", 100000),
			settlementItem("stl-b", "IN_PROCESS", 200000),
		},
		payouts: []map[string]any{
			{"id": "po-a", "partnerId": "partner-1", "status": "SUCCEEDED", "amount": 97000, "currency": "KRW"},
			{"id": "po-b", "partnerId": "partner-1", "status": "FAILED", "amount": 50000, "currency": "KRW", "failureReason": "account closed"},
			{"id": "", "partnerId": "partner-1", "status": "SUCCEEDED", "amount": 10},
		},
	}
	svc, conn, repo := newSyncFixture(t, gw)

	report, err := svc.SyncAll(context.Background(), domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.Counts{Synced: 2}, report.Settlements)
	assert.Equal(t, domain.Counts{Synced: 2, Errors: 1}, report.Payouts)
	assert.False(t, report.Skipped)

	po, err := repo.FindPayout(context.Background(), conn, "po-b")
	require.NoError(t, err)
	require.NotNil(t, po.FailureReason)
	assert.Equal(t, "account closed", *po.FailureReason)
}

func TestSyncAllSurfacesGatewayFailure(t *testing.T) {
	gw := &fakeGateway{status: http.StatusBadGateway}
	svc, _, _ := newSyncFixture(t, gw)

	report, err := svc.SyncAll(context.Background(), domain.Options{})
	require.Error(t, err)
	assert.Zero(t, report.Settlements.Synced)
	assert.Zero(t, report.Payouts.Synced)
}
