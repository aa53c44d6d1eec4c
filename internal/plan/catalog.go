package plan

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

type Cycle string

const (
	CycleMonthly Cycle = "monthly"
	CycleYearly  Cycle = "yearly"
)

// Days used for proration math. Whole-cycle day counts are fixed
// regardless of the calendar month the period falls in.
const (
	MonthlyCycleDays = 30
	YearlyCycleDays  = 365
)

func (c Cycle) Days() int {
	if c == CycleYearly {
		return YearlyCycleDays
	}
	return MonthlyCycleDays
}

// Limits uses -1 for unlimited on every dimension.
type Limits struct {
	Students         int64   `mapstructure:"students" json:"students"`
	Teachers         int64   `mapstructure:"teachers" json:"teachers"`
	Classrooms       int64   `mapstructure:"classrooms" json:"classrooms"`
	StorageGb        float64 `mapstructure:"storage_gb" json:"storageGb"`
	APICallsPerMonth int64   `mapstructure:"api_calls_per_month" json:"apiCallsPerMonth"`
	SMSPerMonth      int64   `mapstructure:"sms_per_month" json:"smsPerMonth"`
	EmailsPerMonth   int64   `mapstructure:"emails_per_month" json:"emailsPerMonth"`
}

type Features struct {
	CustomBranding     bool `mapstructure:"custom_branding" json:"customBranding"`
	AdvancedReports    bool `mapstructure:"advanced_reports" json:"advancedReports"`
	APIAccess          bool `mapstructure:"api_access" json:"apiAccess"`
	PrioritySupport    bool `mapstructure:"priority_support" json:"prioritySupport"`
	SMSNotifications   bool `mapstructure:"sms_notifications" json:"smsNotifications"`
	EmailMarketing     bool `mapstructure:"email_marketing" json:"emailMarketing"`
	DataExport         bool `mapstructure:"data_export" json:"dataExport"`
	MultipleLocations  bool `mapstructure:"multiple_locations" json:"multipleLocations"`
	CustomIntegrations bool `mapstructure:"custom_integrations" json:"customIntegrations"`
}

// Has resolves a feature by its wire name.
func (f Features) Has(name string) (bool, error) {
	switch name {
	case "custom_branding", "customBranding":
		return f.CustomBranding, nil
	case "advanced_reports", "advancedReports":
		return f.AdvancedReports, nil
	case "api_access", "apiAccess":
		return f.APIAccess, nil
	case "priority_support", "prioritySupport":
		return f.PrioritySupport, nil
	case "sms_notifications", "smsNotifications":
		return f.SMSNotifications, nil
	case "email_marketing", "emailMarketing":
		return f.EmailMarketing, nil
	case "data_export", "dataExport":
		return f.DataExport, nil
	case "multiple_locations", "multipleLocations":
		return f.MultipleLocations, nil
	case "custom_integrations", "customIntegrations":
		return f.CustomIntegrations, nil
	default:
		return false, ErrUnknownFeature
	}
}

// Plan prices are whole KRW.
type Plan struct {
	Tier         Tier     `mapstructure:"tier" json:"tier"`
	Name         string   `mapstructure:"name" json:"name"`
	MonthlyPrice int64    `mapstructure:"monthly_price" json:"monthlyPrice"`
	YearlyPrice  int64    `mapstructure:"yearly_price" json:"yearlyPrice"`
	Limits       Limits   `mapstructure:"limits" json:"limits"`
	Features     Features `mapstructure:"features" json:"features"`
}

func (p Plan) Price(cycle Cycle) int64 {
	if cycle == CycleYearly {
		return p.YearlyPrice
	}
	return p.MonthlyPrice
}

var (
	ErrUnknownTier    = errors.New("unknown plan tier")
	ErrUnknownFeature = errors.New("unknown plan feature")
)

var tierOrder = map[Tier]int{
	TierFree:       0,
	TierBasic:      1,
	TierPro:        2,
	TierEnterprise: 3,
}

// Rank orders tiers for upgrade/downgrade decisions. Unknown tiers rank
// below free.
func Rank(t Tier) int {
	if r, ok := tierOrder[t]; ok {
		return r
	}
	return -1
}

// Defaults is the compiled-in catalog, used when no plans.yml overrides it.
func Defaults() map[Tier]Plan {
	return map[Tier]Plan{
		TierFree: {
			Tier: TierFree, Name: "Free",
			Limits: Limits{
				Students: 20, Teachers: 2, Classrooms: 3, StorageGb: 1,
				APICallsPerMonth: 1000, SMSPerMonth: 0, EmailsPerMonth: 100,
			},
		},
		TierBasic: {
			Tier: TierBasic, Name: "Basic",
			MonthlyPrice: 50000, YearlyPrice: 500000,
			Limits: Limits{
				Students: 100, Teachers: 10, Classrooms: 15, StorageGb: 10,
				APICallsPerMonth: 10000, SMSPerMonth: 500, EmailsPerMonth: 2000,
			},
			Features: Features{
				AdvancedReports:  true,
				SMSNotifications: true,
				DataExport:       true,
			},
		},
		TierPro: {
			Tier: TierPro, Name: "Pro",
			MonthlyPrice: 150000, YearlyPrice: 1500000,
			Limits: Limits{
				Students: 500, Teachers: 50, Classrooms: 50, StorageGb: 50,
				APICallsPerMonth: 100000, SMSPerMonth: 2000, EmailsPerMonth: 10000,
			},
			Features: Features{
				CustomBranding:   true,
				AdvancedReports:  true,
				APIAccess:        true,
				PrioritySupport:  true,
				SMSNotifications: true,
				EmailMarketing:   true,
				DataExport:       true,
			},
		},
		TierEnterprise: {
			Tier: TierEnterprise, Name: "Enterprise",
			Limits: Limits{
				Students: -1, Teachers: -1, Classrooms: -1, StorageGb: -1,
				APICallsPerMonth: -1, SMSPerMonth: -1, EmailsPerMonth: -1,
			},
			Features: Features{
				CustomBranding:     true,
				AdvancedReports:    true,
				APIAccess:          true,
				PrioritySupport:    true,
				SMSNotifications:   true,
				EmailMarketing:     true,
				DataExport:         true,
				MultipleLocations:  true,
				CustomIntegrations: true,
			},
		},
	}
}

// Catalog holds the active plan table. A plans.yml next to the binary (or
// under ./config) overrides the defaults and is hot-reloaded on change.
type Catalog struct {
	current atomic.Value // map[Tier]Plan
	log     *zap.Logger
}

func NewCatalog(log *zap.Logger) *Catalog {
	c := &Catalog{log: log.Named("plan")}
	c.current.Store(Defaults())

	v := viper.New()
	v.SetConfigName("plans")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			c.log.Warn("plan catalog config unreadable, using defaults", zap.Error(err))
		}
		return c
	}

	c.apply(v)
	v.OnConfigChange(func(fsnotify.Event) {
		c.apply(v)
	})
	v.WatchConfig()
	return c
}

func (c *Catalog) apply(v *viper.Viper) {
	var file struct {
		Plans []Plan `mapstructure:"plans"`
	}
	if err := v.Unmarshal(&file); err != nil {
		c.log.Warn("plan catalog reload failed, keeping previous", zap.Error(err))
		return
	}

	plans := Defaults()
	for _, p := range file.Plans {
		if _, ok := tierOrder[p.Tier]; !ok {
			c.log.Warn("plan catalog entry with unknown tier skipped", zap.String("tier", string(p.Tier)))
			continue
		}
		plans[p.Tier] = p
	}
	c.current.Store(plans)
	c.log.Info("plan catalog loaded", zap.Int("plans", len(plans)))
}

func (c *Catalog) Plan(t Tier) (Plan, bool) {
	plans := c.current.Load().(map[Tier]Plan)
	p, ok := plans[t]
	return p, ok
}

func (c *Catalog) Price(t Tier, cycle Cycle) (int64, error) {
	p, ok := c.Plan(t)
	if !ok {
		return 0, ErrUnknownTier
	}
	return p.Price(cycle), nil
}

// Prorate computes the upgrade charge for switching plans mid-period:
// the price delta scaled by the unused share of the cycle, rounded to
// whole KRW. Downgrades and expired periods prorate to zero, and the
// result never exceeds the full delta.
func Prorate(fromPrice, toPrice int64, daysRemaining, cycleDays int) int64 {
	delta := toPrice - fromPrice
	if delta <= 0 || daysRemaining <= 0 || cycleDays <= 0 {
		return 0
	}
	if daysRemaining > cycleDays {
		daysRemaining = cycleDays
	}
	amount := int64(math.Round(float64(delta) * float64(daysRemaining) / float64(cycleDays)))
	if amount > delta {
		amount = delta
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

// ProratedUpgrade resolves both prices from the catalog and prorates the
// difference over the given cycle.
func (c *Catalog) ProratedUpgrade(from, to Tier, cycle Cycle, daysRemaining int) (int64, error) {
	fromPlan, ok := c.Plan(from)
	if !ok {
		return 0, ErrUnknownTier
	}
	toPlan, ok := c.Plan(to)
	if !ok {
		return 0, ErrUnknownTier
	}
	return Prorate(fromPlan.Price(cycle), toPlan.Price(cycle), daysRemaining, cycle.Days()), nil
}
