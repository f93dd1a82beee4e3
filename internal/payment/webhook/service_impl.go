// Package webhook accepts raw gateway deliveries, verifies their signatures
// and hands canonical events to the reconciliation service.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fanbase/internal/clock"
	"github.com/smallbiznis/fanbase/internal/config"
	"github.com/smallbiznis/fanbase/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/fanbase/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/fanbase/internal/payment/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Reconcile paymentdomain.Service
	EventRepo paymentrepo.Repository
	Adapters  *adapters.Registry
	Cfg       config.Config
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	reconcile     paymentdomain.Service
	eventRepo     paymentrepo.Repository
	adapters      *adapters.Registry
	webhookSecret string
}

func NewService(p Params) paymentdomain.Ingestor {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.webhook"),
		genID:         p.GenID,
		clock:         p.Clock,
		reconcile:     p.Reconcile,
		eventRepo:     p.EventRepo,
		adapters:      p.Adapters,
		webhookSecret: strings.TrimSpace(p.Cfg.GatewayWebhookSecret),
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
		Provider:      provider,
		WebhookSecret: s.webhookSecret,
	})
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			// Unknown event types are acknowledged so the gateway stops
			// redelivering, but the raw delivery is still kept.
			return s.recordIgnored(ctx, provider, payload)
		}
		return err
	}

	if err := s.reconcile.Apply(ctx, event); err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			return nil
		}
		return err
	}
	return nil
}

type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func (s *Service) recordIgnored(ctx context.Context, provider string, payload []byte) error {
	var raw envelope
	if err := json.Unmarshal(payload, &raw); err != nil || strings.TrimSpace(raw.ID) == "" {
		return nil
	}

	now := s.clock.Now()
	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: raw.ID,
		Kind:            "ignored",
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
		ProcessedAt:     &now,
	}
	if _, err := s.eventRepo.InsertEvent(ctx, s.db, &record); err != nil {
		return err
	}

	s.log.Info("ignored webhook event",
		zap.String("provider", provider),
		zap.String("event_type", raw.Type),
	)
	return nil
}
