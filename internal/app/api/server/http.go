package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fablecast/entitlement/docs"
	"github.com/fablecast/entitlement/internal/app/api/handlers"
	mw "github.com/fablecast/entitlement/internal/app/api/middleware"
	"github.com/fablecast/entitlement/internal/app/service/billing"
	"github.com/fablecast/entitlement/internal/app/service/champion"
	"github.com/fablecast/entitlement/internal/app/service/entitlement"
	notificationlog "github.com/fablecast/entitlement/internal/app/service/notification_log"
	"github.com/fablecast/entitlement/internal/app/service/paymentevent"
	"github.com/fablecast/entitlement/internal/app/service/purchase"
	"github.com/fablecast/entitlement/internal/app/service/statistics"
	"github.com/fablecast/entitlement/internal/app/service/unlock"
	"github.com/fablecast/entitlement/internal/app/service/wallet"
	cfgpkg "github.com/fablecast/entitlement/pkg/config"
	metrics "github.com/fablecast/entitlement/pkg/metrics"
)

// Services is everything the HTTP layer serves.
type Services struct {
	fx.In

	DB            *gorm.DB
	Entitlement   *entitlement.Service
	Champion      *champion.Service
	Unlock        *unlock.Service
	Wallet        *wallet.Service
	Billing       *billing.Service
	Purchase      *purchase.Service
	PaymentEvents *paymentevent.Service
	Statistics    *statistics.Service
	Notifications *notificationlog.Service
}

// Routes is the handler-facing view of Services, so tests can mount stubs.
type Routes struct {
	DB            handlers.Pinger
	Entitlement   handlers.EntitlementService
	Champion      handlers.ChampionService
	Unlock        handlers.UnlockService
	Wallet        handlers.WalletService
	Billing       handlers.BillingService
	Purchase      handlers.PurchaseService
	PaymentEvents handlers.PaymentEventService
	Statistics    handlers.StatisticsService
	Notifications handlers.NotificationLogService
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func routesOf(s Services) (Routes, error) {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return Routes{}, err
	}
	return Routes{
		DB:            sqlDB,
		Entitlement:   s.Entitlement,
		Champion:      s.Champion,
		Unlock:        s.Unlock,
		Wallet:        s.Wallet,
		Billing:       s.Billing,
		Purchase:      s.Purchase,
		PaymentEvents: s.PaymentEvents,
		Statistics:    s.Statistics,
		Notifications: s.Notifications,
	}, nil
}

func registerMetrics(r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config) {
	if cfg == nil || cfg.MetricsAddr == "" {
		return
	}
	p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
		ReqCntURLLabelMappingFn: func(c *gin.Context) string {
			if fp := c.FullPath(); fp != "" {
				return fp
			}
			return c.Request.URL.Path
		},
		Logger: log,
	})
	p.SetListenAddress(cfg.MetricsAddr)
	p.Use(r)

	log.Infow("metrics started", "addr", cfg.MetricsAddr)
}

func registerRoutes(r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config, svcs Services) error {
	rt, err := routesOf(svcs)
	if err != nil {
		return err
	}
	registerMetrics(r, log, cfg)
	Mount(r, log, cfg, rt)
	return nil
}

// Mount attaches every route group to r.
func Mount(r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config, rt Routes) {
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub, rt.DB)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Provider callbacks authenticate themselves.
	webhook := r.Group("/api/v1/payment")
	webhook.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterPaymentWebhookRoutes(webhook, rt.PaymentEvents, log)

	// Protected group using auth middleware
	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log), mw.AuthMiddleware(cfg, log))
	handlers.RegisterEntitlementRoutes(apiV1, rt.Entitlement)
	handlers.RegisterChampionRoutes(apiV1, rt.Champion, mw.RequireAdmin())
	handlers.RegisterUnlockRoutes(apiV1, rt.Unlock)
	handlers.RegisterKarmaRoutes(apiV1, rt.Wallet, rt.Purchase)
	handlers.RegisterBillingRoutes(apiV1, rt.Billing)

	admin := apiV1.Group("/admin")
	admin.Use(mw.RequireAdmin())
	handlers.RegisterAdminRoutes(admin, rt.Statistics, rt.Wallet, rt.Notifications, rt.Unlock)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
