package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dutywise/dutywise/internal/account"
	accountdomain "github.com/dutywise/dutywise/internal/account/domain"
	"github.com/dutywise/dutywise/internal/accessguard"
	"github.com/dutywise/dutywise/internal/billing"
	"github.com/dutywise/dutywise/internal/clock"
	billingdomain "github.com/dutywise/dutywise/internal/billing/domain"
	"github.com/dutywise/dutywise/internal/config"
	"github.com/dutywise/dutywise/internal/notify"
	"github.com/dutywise/dutywise/internal/security"
	securitydomain "github.com/dutywise/dutywise/internal/security/domain"
	"github.com/dutywise/dutywise/internal/totp"
	totpdomain "github.com/dutywise/dutywise/internal/totp/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	account.Module,
	billing.Module,
	totp.Module,
	security.Module,
	notify.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	accountSvc  accountdomain.Service
	billingSvc  billingdomain.Service
	totpSvc     totpdomain.Service
	securitySvc securitydomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	AccountSvc  accountdomain.Service
	BillingSvc  billingdomain.Service
	TOTPSvc     totpdomain.Service
	SecuritySvc securitydomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("http.server"),
		clock:       p.Clock,
		accountSvc:  p.AccountSvc,
		billingSvc:  p.BillingSvc,
		totpSvc:     p.TOTPSvc,
		securitySvc: p.SecuritySvc,
	}
}

func registerRoutes(s *Server) {
	s.RegisterWebhookRoutes()
	s.RegisterAPIRoutes()
}

func (s *Server) RegisterWebhookRoutes() {
	s.engine.POST("/webhooks/billing", s.HandleBillingWebhook)
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.IdentityContext())

	api.GET("/account/state", s.HandleAccountState)

	totpGroup := api.Group("/totp")
	totpGroup.Use(s.RequireAccess(accessguard.RequireConfirmedEmail))
	totpGroup.POST("/setup", s.HandleTOTPSetup)
	totpGroup.POST("/enable", s.HandleTOTPEnable)
	totpGroup.POST("/disable", s.HandleTOTPDisable)
	totpGroup.POST("/verify", s.HandleTOTPVerify)
	totpGroup.POST("/backup/consume", s.HandleBackupCodeConsume)
	totpGroup.POST("/backup/regenerate", s.HandleBackupCodeRegenerate)
}
