package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hakwonlab/wonpay/internal/config"
	"github.com/hakwonlab/wonpay/internal/plan"
	"github.com/hakwonlab/wonpay/internal/ratelimit"
	settlementdomain "github.com/hakwonlab/wonpay/internal/settlement/domain"
	subscriptiondomain "github.com/hakwonlab/wonpay/internal/subscription/domain"
	syncdomain "github.com/hakwonlab/wonpay/internal/sync/domain"
	"github.com/hakwonlab/wonpay/internal/usage/limits"
	usageservice "github.com/hakwonlab/wonpay/internal/usage/service"
	webhookdomain "github.com/hakwonlab/wonpay/internal/webhook/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Params struct {
	fx.In

	Engine          *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	Catalog         *plan.Catalog
	WebhookSvc      webhookdomain.Service
	SyncSvc         syncdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Settlements     settlementdomain.Repository
	UsageSvc        *usageservice.Service
	Enforcer        *limits.Enforcer
	Limiter         *ratelimit.TokenBucket `optional:"true"`
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	catalog         *plan.Catalog
	webhookSvc      webhookdomain.Service
	syncSvc         syncdomain.Service
	subscriptionSvc subscriptiondomain.Service
	settlements     settlementdomain.Repository
	usageSvc        *usageservice.Service
	enforcer        *limits.Enforcer
	limiter         *ratelimit.TokenBucket
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:          p.Engine,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("server"),
		catalog:         p.Catalog,
		webhookSvc:      p.WebhookSvc,
		syncSvc:         p.SyncSvc,
		subscriptionSvc: p.SubscriptionSvc,
		settlements:     p.Settlements,
		usageSvc:        p.UsageSvc,
		enforcer:        p.Enforcer,
		limiter:         p.Limiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	webhooks := s.engine.Group("/webhooks", s.webhookRateLimit())
	webhooks.POST("/settlements", s.handleSettlementWebhook)
	webhooks.POST("/payouts", s.handlePayoutWebhook)

	s.engine.POST("/sync", s.handleSync)
	s.engine.GET("/sync", s.handleSyncInfo)

	api := s.engine.Group("/api")
	api.GET("/settlements", s.handleListSettlements)
	api.GET("/payouts", s.handleListPayouts)

	api.POST("/usage", s.handleIngestUsage)

	subs := api.Group("/subscriptions/:academyId")
	subs.GET("", s.handleGetSubscription)
	subs.GET("/invoices", s.handleListInvoices)
	subs.POST("/cancel", s.handleCancelSubscription)
	subs.POST("/suspend", s.handleSuspendSubscription)
	subs.POST("/reinstate", s.handleReinstateSubscription)
	subs.POST("/change-plan", s.handleChangePlan)

	academies := api.Group("/academies/:academyId")
	academies.GET("/limits", s.handleCheckLimits)
	academies.GET("/can-add-students", s.handleCanAddStudents)
	academies.GET("/can-add-teachers", s.handleCanAddTeachers)
	academies.GET("/features/:feature", s.handleHasFeature)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
