package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/hostelway/internal/config"
	notificationrepo "github.com/smallbiznis/hostelway/internal/notification/repository"
	obsmetrics "github.com/smallbiznis/hostelway/internal/observability/metrics"
	paymentlinkdomain "github.com/smallbiznis/hostelway/internal/paymentlink/domain"
	"github.com/smallbiznis/hostelway/internal/providers/pms"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	webhookdomain "github.com/smallbiznis/hostelway/internal/webhook/domain"
	webhookrepo "github.com/smallbiznis/hostelway/internal/webhook/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(registerGin),
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

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

type Server struct {
	engine           *gin.Engine
	cfg              config.Config
	db               *gorm.DB
	genID            *snowflake.Node
	reservationSvc   reservationdomain.Service
	reservationRepo  reservationdomain.Repository
	webhookSvc       webhookdomain.Service
	webhookRepo      webhookrepo.Repository
	settingsSvc      settingsdomain.Service
	paymentLinkSvc   paymentlinkdomain.Service
	notificationRepo notificationrepo.Repository
	pmsClient        pms.Client
	obsMetrics       *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	DB               *gorm.DB
	GenID            *snowflake.Node
	ReservationSvc   reservationdomain.Service
	ReservationRepo  reservationdomain.Repository
	WebhookSvc       webhookdomain.Service
	WebhookRepo      webhookrepo.Repository
	SettingsSvc      settingsdomain.Service
	PaymentLinkSvc   paymentlinkdomain.Service
	NotificationRepo notificationrepo.Repository
	PMSClient        pms.Client
	ObsMetrics       *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		db:               p.DB,
		genID:            p.GenID,
		reservationSvc:   p.ReservationSvc,
		reservationRepo:  p.ReservationRepo,
		webhookSvc:       p.WebhookSvc,
		webhookRepo:      p.WebhookRepo,
		settingsSvc:      p.SettingsSvc,
		paymentLinkSvc:   p.PaymentLinkSvc,
		notificationRepo: p.NotificationRepo,
		pmsClient:        p.PMSClient,
		obsMetrics:       p.ObsMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandleWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	reservations := api.Group("/reservations")
	{
		reservations.GET("", s.ListReservations)
		reservations.GET("/:id", s.GetReservation)
		reservations.GET("/:id/history", s.ListReservationHistory)
		reservations.GET("/:id/notifications", s.ListReservationNotifications)
		reservations.POST("/:id/reconcile", s.ReconcileReservation)
		reservations.POST("/:id/payment-link/regenerate", s.RegeneratePaymentLink)
	}

	api.GET("/webhooks/unresolvable", s.ListUnresolvableWebhooks)
	api.PUT("/settings/:provider", s.UpsertSettings)
}
