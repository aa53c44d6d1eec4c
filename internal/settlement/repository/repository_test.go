package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/hakwonlab/wonpay/internal/settlement/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Settlement{}, &domain.Payout{}))
	t.Cleanup(func() {
		conn.Exec("DELETE FROM settlements")
		conn.Exec("DELETE FROM payouts")
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return conn, node
}

func newSettlement(node *snowflake.Node, externalID string, status domain.SettlementStatus, now time.Time) *domain.Settlement {
	return &domain.Settlement{
		ID:               node.Generate(),
		SettlementID:     externalID,
		PartnerID:        "partner-1",
		Status:           status,
		OrderAmount:      100000,
		SettlementAmount: 97000,
		Currency:         "KRW",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestUpsertSettlementAdvancesStatus(t *testing.T) {
	conn, node := setupDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertSettlement(ctx, conn, newSettlement(node, "stl-1", domain.SettlementScheduled, now)))
	require.NoError(t, repo.UpsertSettlement(ctx, conn, newSettlement(node, "stl-1", domain.SettlementSettled, now.Add(time.Hour))))

	got, err := repo.FindSettlement(ctx, conn, "stl-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.SettlementSettled, got.Status)
	assert.Equal(t, domain.SettlementSettled.Rank(), got.StatusRank)
}

func TestUpsertSettlementIgnoresRegression(t *testing.T) {
	conn, node := setupDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertSettlement(ctx, conn, newSettlement(node, "stl-2", domain.SettlementSettled, now)))

	// A stale delivery carrying SCHEDULED arrives after SETTLED.
	stale := newSettlement(node, "stl-2", domain.SettlementScheduled, now.Add(time.Hour))
	stale.SettlementAmount = 1
	require.NoError(t, repo.UpsertSettlement(ctx, conn, stale))

	got, err := repo.FindSettlement(ctx, conn, "stl-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.SettlementSettled, got.Status)
	assert.Equal(t, int64(97000), got.SettlementAmount)
}

func TestUpsertSettlementSameRankRefreshes(t *testing.T) {
	conn, node := setupDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertSettlement(ctx, conn, newSettlement(node, "stl-3", domain.SettlementSettled, now)))

	refresh := newSettlement(node, "stl-3", domain.SettlementSettled, now.Add(time.Hour))
	refresh.SettlementAmount = 98000
	require.NoError(t, repo.UpsertSettlement(ctx, conn, refresh))

	got, err := repo.FindSettlement(ctx, conn, "stl-3")
	require.NoError(t, err)
	assert.Equal(t, int64(98000), got.SettlementAmount)
}

func TestUpsertSettlementCanceledWinsFromAnyState(t *testing.T) {
	conn, node := setupDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertSettlement(ctx, conn, newSettlement(node, "stl-4", domain.SettlementPaidOut, now)))
	require.NoError(t, repo.UpsertSettlement(ctx, conn, newSettlement(node, "stl-4", domain.SettlementCanceled, now.Add(time.Hour))))

	got, err := repo.FindSettlement(ctx, conn, "stl-4")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementCanceled, got.Status)
}

func TestUpsertSettlementKeepsPaymentID(t *testing.T) {
	conn, node := setupDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	paymentID := "pay-77"
	first := newSettlement(node, "stl-5", domain.SettlementScheduled, now)
	first.PaymentID = &paymentID
	require.NoError(t, repo.UpsertSettlement(ctx, conn, first))

	// Later update without a payment id must not erase the stored one.
	require.NoError(t, repo.UpsertSettlement(ctx, conn, newSettlement(node, "stl-5", domain.SettlementSettled, now.Add(time.Hour))))

	got, err := repo.FindSettlement(ctx, conn, "stl-5")
	require.NoError(t, err)
	require.NotNil(t, got.PaymentID)
	assert.Equal(t, "pay-77", *got.PaymentID)
}

func TestUpsertPayoutTerminalStates(t *testing.T) {
	conn, node := setupDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	reason := "account closed"
	require.NoError(t, repo.UpsertPayout(ctx, conn, &domain.Payout{
		ID: node.Generate(), PayoutID: "po-1", PartnerID: "partner-1",
		Status: domain.PayoutProcessing, Amount: 50000, Currency: "KRW",
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, repo.UpsertPayout(ctx, conn, &domain.Payout{
		ID: node.Generate(), PayoutID: "po-1", PartnerID: "partner-1",
		Status: domain.PayoutFailed, Amount: 50000, Currency: "KRW",
		FailureReason: &reason,
		CreatedAt:     now, UpdatedAt: now.Add(time.Hour),
	}))

	got, err := repo.FindPayout(ctx, conn, "po-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "account closed", *got.FailureReason)

	// PROCESSING after FAILED is stale and must not regress.
	require.NoError(t, repo.UpsertPayout(ctx, conn, &domain.Payout{
		ID: node.Generate(), PayoutID: "po-1", PartnerID: "partner-1",
		Status: domain.PayoutProcessing, Amount: 50000, Currency: "KRW",
		CreatedAt: now, UpdatedAt: now.Add(2 * time.Hour),
	}))
	got, err = repo.FindPayout(ctx, conn, "po-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutFailed, got.Status)
}

func TestListSettlements(t *testing.T) {
	conn, node := setupDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.UpsertSettlement(ctx, conn, newSettlement(node, "stl-list-"+id, domain.SettlementScheduled, now)))
	}

	items, err := repo.ListSettlements(ctx, conn, 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
