package limits

import (
	"context"

	"github.com/hakwonlab/wonpay/internal/plan"
	subscriptiondomain "github.com/hakwonlab/wonpay/internal/subscription/domain"
	usagedomain "github.com/hakwonlab/wonpay/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Decision is one advisory limit check. The engine never blocks anything
// itself; callers decide what to do with a false Allowed.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Current int64  `json:"current"`
	Limit   int64  `json:"limit"`
	Message string `json:"message,omitempty"`
}

// Report aggregates every limit dimension for one academy.
type Report struct {
	Valid    bool               `json:"valid"`
	Tier     plan.Tier          `json:"tier"`
	Exceeded []string           `json:"exceeded"`
	Limits   plan.Limits        `json:"limits"`
	Usage    *usagedomain.Snapshot `json:"usage,omitempty"`
}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Catalog       *plan.Catalog
	Subscriptions subscriptiondomain.Repository
	Usage         usagedomain.Repository
}

// Enforcer answers read-only limit questions against the plan catalog
// and the latest usage snapshot. Academies without a subscription row
// are treated as free tier.
type Enforcer struct {
	db      *gorm.DB
	log     *zap.Logger
	catalog *plan.Catalog
	subs    subscriptiondomain.Repository
	usage   usagedomain.Repository
}

func NewEnforcer(p Params) *Enforcer {
	return &Enforcer{
		db:      p.DB,
		log:     p.Log.Named("limits"),
		catalog: p.Catalog,
		subs:    p.Subscriptions,
		usage:   p.Usage,
	}
}

func (e *Enforcer) planFor(ctx context.Context, academyID string) (plan.Plan, error) {
	tier := plan.TierFree
	sub, err := e.subs.FindByAcademyID(ctx, e.db, academyID)
	if err != nil {
		return plan.Plan{}, err
	}
	if sub != nil {
		tier = sub.PlanTier
	}

	p, ok := e.catalog.Plan(tier)
	if !ok {
		p, _ = e.catalog.Plan(plan.TierFree)
	}
	return p, nil
}

func (e *Enforcer) snapshotFor(ctx context.Context, academyID string) (*usagedomain.Snapshot, error) {
	return e.usage.FindByAcademyID(ctx, e.db, academyID)
}

// checkCount applies the -1-means-unlimited rule to one dimension.
func checkCount(current, add, limit int64, message string) Decision {
	if limit < 0 {
		return Decision{Allowed: true, Current: current, Limit: limit}
	}
	if current+add > limit {
		return Decision{Allowed: false, Current: current, Limit: limit, Message: message}
	}
	return Decision{Allowed: true, Current: current, Limit: limit}
}

func (e *Enforcer) CanAddStudents(ctx context.Context, academyID string, count int64) (Decision, error) {
	p, err := e.planFor(ctx, academyID)
	if err != nil {
		return Decision{}, err
	}
	snap, err := e.snapshotFor(ctx, academyID)
	if err != nil {
		return Decision{}, err
	}
	var current int64
	if snap != nil {
		current = snap.StudentCount
	}
	return checkCount(current, count, p.Limits.Students, "student limit reached for plan "+string(p.Tier)), nil
}

func (e *Enforcer) CanAddTeachers(ctx context.Context, academyID string, count int64) (Decision, error) {
	p, err := e.planFor(ctx, academyID)
	if err != nil {
		return Decision{}, err
	}
	snap, err := e.snapshotFor(ctx, academyID)
	if err != nil {
		return Decision{}, err
	}
	var current int64
	if snap != nil {
		current = snap.TeacherCount
	}
	return checkCount(current, count, p.Limits.Teachers, "teacher limit reached for plan "+string(p.Tier)), nil
}

func (e *Enforcer) HasFeature(ctx context.Context, academyID, feature string) (bool, error) {
	p, err := e.planFor(ctx, academyID)
	if err != nil {
		return false, err
	}
	return p.Features.Has(feature)
}

// CheckAll reports every dimension currently over its plan limit.
func (e *Enforcer) CheckAll(ctx context.Context, academyID string) (Report, error) {
	p, err := e.planFor(ctx, academyID)
	if err != nil {
		return Report{}, err
	}
	snap, err := e.snapshotFor(ctx, academyID)
	if err != nil {
		return Report{}, err
	}

	report := Report{Valid: true, Tier: p.Tier, Limits: p.Limits, Usage: snap, Exceeded: []string{}}
	if snap == nil {
		return report, nil
	}

	over := func(current, limit int64) bool {
		return limit >= 0 && current > limit
	}
	if over(snap.StudentCount, p.Limits.Students) {
		report.Exceeded = append(report.Exceeded, "students")
	}
	if over(snap.TeacherCount, p.Limits.Teachers) {
		report.Exceeded = append(report.Exceeded, "teachers")
	}
	if over(snap.ClassroomCount, p.Limits.Classrooms) {
		report.Exceeded = append(report.Exceeded, "classrooms")
	}
	if p.Limits.StorageGb >= 0 && snap.StorageGb > p.Limits.StorageGb {
		report.Exceeded = append(report.Exceeded, "storage")
	}
	if over(snap.APICallsMonth, p.Limits.APICallsPerMonth) {
		report.Exceeded = append(report.Exceeded, "api_calls")
	}
	if over(snap.SMSSentMonth, p.Limits.SMSPerMonth) {
		report.Exceeded = append(report.Exceeded, "sms")
	}
	if over(snap.EmailsSentMonth, p.Limits.EmailsPerMonth) {
		report.Exceeded = append(report.Exceeded, "emails")
	}

	report.Valid = len(report.Exceeded) == 0
	return report, nil
}
