// Package server wires the HTTP surface: public payment routes, the gateway
// webhook endpoint and the admin review queue.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/fanbase/internal/account"
	accountservice "github.com/smallbiznis/fanbase/internal/account/service"
	"github.com/smallbiznis/fanbase/internal/audit"
	auditdomain "github.com/smallbiznis/fanbase/internal/audit/domain"
	"github.com/smallbiznis/fanbase/internal/config"
	"github.com/smallbiznis/fanbase/internal/ledger"
	ledgerdomain "github.com/smallbiznis/fanbase/internal/ledger/domain"
	obslogger "github.com/smallbiznis/fanbase/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/fanbase/internal/observability/metrics"
	"github.com/smallbiznis/fanbase/internal/payment"
	paymentdomain "github.com/smallbiznis/fanbase/internal/payment/domain"
	"github.com/smallbiznis/fanbase/internal/payment/receipt"
	"github.com/smallbiznis/fanbase/internal/ratelimit"
	"github.com/smallbiznis/fanbase/internal/review"
	reviewdomain "github.com/smallbiznis/fanbase/internal/review/domain"
	"github.com/smallbiznis/fanbase/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/fanbase/internal/subscription/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	account.Module,
	audit.Module,
	ledger.Module,
	payment.Module,
	ratelimit.Module,
	review.Module,
	subscription.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(m))
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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	accountSvc      *accountservice.Service
	subscriptionSvc subscriptiondomain.Service
	ledgerSvc       ledgerdomain.Service
	ingestor        paymentdomain.Ingestor
	reconcileSvc    paymentdomain.Service
	receiptVerifier receipt.Verifier
	reviewSvc       reviewdomain.Service
	auditSvc        auditdomain.Service
	webhookLimiter  *ratelimit.WebhookLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	AccountSvc      *accountservice.Service
	SubscriptionSvc subscriptiondomain.Service
	LedgerSvc       ledgerdomain.Service
	Ingestor        paymentdomain.Ingestor
	ReconcileSvc    paymentdomain.Service
	ReceiptVerifier receipt.Verifier
	ReviewSvc       reviewdomain.Service
	AuditSvc        auditdomain.Service
	WebhookLimiter  *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		accountSvc:      p.AccountSvc,
		subscriptionSvc: p.SubscriptionSvc,
		ledgerSvc:       p.LedgerSvc,
		ingestor:        p.Ingestor,
		reconcileSvc:    p.ReconcileSvc,
		receiptVerifier: p.ReceiptVerifier,
		reviewSvc:       p.ReviewSvc,
		auditSvc:        p.AuditSvc,
		webhookLimiter:  p.WebhookLimiter,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payments/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/accounts/:id", s.GetAccountByID)

	v1.POST("/subscriptions", s.CreateSubscription)
	v1.GET("/subscriptions/:id", s.GetSubscriptionByID)
	v1.POST("/subscriptions/:id/cancel", s.CancelSubscription)

	v1.POST("/tips", s.CreateTip)

	v1.POST("/payouts", s.RequestPayout)
	v1.GET("/payouts/:id", s.GetPayoutByID)

	v1.POST("/receipts/verify", s.VerifyReceipt)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/reviews", s.CreateReviewRequest)
	admin.GET("/reviews", s.ListPendingReviews)
	admin.GET("/reviews/:id", s.GetReviewByID)
	admin.POST("/reviews/:id/approve", s.ApproveReview)
	admin.POST("/reviews/:id/reject", s.RejectReview)
	admin.POST("/reviews/:id/under-review", s.MarkReviewUnderReview)

	admin.POST("/issues", s.ReportIssue)
	admin.GET("/issues", s.ListIssues)
	admin.POST("/issues/:id/status", s.UpdateIssueStatus)
	admin.POST("/issues/:id/resolve", s.ResolveIssue)

	admin.GET("/payouts", s.ListPayouts)

	admin.GET("/audit-logs", s.ListAuditLogs)
}
