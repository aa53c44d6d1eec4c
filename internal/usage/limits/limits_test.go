package limits

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/hakwonlab/wonpay/internal/plan"
	subscriptiondomain "github.com/hakwonlab/wonpay/internal/subscription/domain"
	subscriptionrepo "github.com/hakwonlab/wonpay/internal/subscription/repository"
	usagedomain "github.com/hakwonlab/wonpay/internal/usage/domain"
	usagerepo "github.com/hakwonlab/wonpay/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newEnforcer(t *testing.T) (*Enforcer, *gorm.DB, *snowflake.Node) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&subscriptiondomain.Subscription{}, &usagedomain.Snapshot{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	e := &Enforcer{
		db:      conn,
		log:     zap.NewNop(),
		catalog: plan.NewCatalog(zap.NewNop()),
		subs:    subscriptionrepo.Provide(),
		usage:   usagerepo.Provide(),
	}
	return e, conn, node
}

func seed(t *testing.T, conn *gorm.DB, node *snowflake.Node, academyID string, tier plan.Tier, snap usagedomain.Snapshot) {
	t.Helper()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if tier != plan.TierFree {
		require.NoError(t, subscriptionrepo.Provide().Insert(context.Background(), conn, &subscriptiondomain.Subscription{
			ID:                 node.Generate(),
			AcademyID:          academyID,
			PlanTier:           tier,
			Status:             subscriptiondomain.StatusActive,
			BillingCycle:       plan.CycleMonthly,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   now.AddDate(0, 1, 0),
			AutoRenew:          true,
			CreatedAt:          now,
			UpdatedAt:          now,
		}))
	}

	snap.ID = node.Generate()
	snap.AcademyID = academyID
	snap.CalculatedAt = now
	require.NoError(t, usagerepo.Provide().Upsert(context.Background(), conn, &snap))
}

func TestCanAddStudents(t *testing.T) {
	e, conn, node := newEnforcer(t)
	ctx := context.Background()

	// Free plan allows 20 students.
	seed(t, conn, node, "acad-1", plan.TierFree, usagedomain.Snapshot{StudentCount: 19})

	d, err := e.CanAddStudents(ctx, "acad-1", 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = e.CanAddStudents(ctx, "acad-1", 2)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(19), d.Current)
	assert.Equal(t, int64(20), d.Limit)
	assert.NotEmpty(t, d.Message)
}

func TestUnlimitedTier(t *testing.T) {
	e, conn, node := newEnforcer(t)
	ctx := context.Background()

	seed(t, conn, node, "acad-2", plan.TierEnterprise, usagedomain.Snapshot{
		StudentCount: 100000, TeacherCount: 5000,
	})

	d, err := e.CanAddStudents(ctx, "acad-2", 100000)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(-1), d.Limit)

	report, err := e.CheckAll(ctx, "acad-2")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Exceeded)
}

func TestUnknownAcademyDefaultsToFree(t *testing.T) {
	e, _, _ := newEnforcer(t)
	ctx := context.Background()

	// No subscription row and no snapshot at all.
	d, err := e.CanAddTeachers(ctx, "ghost", 2)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(2), d.Limit)

	d, err = e.CanAddTeachers(ctx, "ghost", 3)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestHasFeature(t *testing.T) {
	e, conn, node := newEnforcer(t)
	ctx := context.Background()

	seed(t, conn, node, "acad-3", plan.TierBasic, usagedomain.Snapshot{})

	has, err := e.HasFeature(ctx, "acad-3", "sms_notifications")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = e.HasFeature(ctx, "acad-3", "api_access")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = e.HasFeature(ctx, "acad-3", "warp_drive")
	assert.ErrorIs(t, err, plan.ErrUnknownFeature)
}

func TestCheckAllReportsExceededDimensions(t *testing.T) {
	e, conn, node := newEnforcer(t)
	ctx := context.Background()

	seed(t, conn, node, "acad-4", plan.TierBasic, usagedomain.Snapshot{
		StudentCount:    150, // over 100
		TeacherCount:    5,
		ClassroomCount:  20, // over 15
		StorageGb:       2,
		SMSSentMonth:    600, // over 500
		EmailsSentMonth: 100,
	})

	report, err := e.CheckAll(ctx, "acad-4")
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.ElementsMatch(t, []string{"students", "classrooms", "sms"}, report.Exceeded)
	assert.Equal(t, plan.TierBasic, report.Tier)
}
