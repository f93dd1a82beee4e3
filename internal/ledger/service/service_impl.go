package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/fanbase/internal/account/domain"
	"github.com/smallbiznis/fanbase/internal/clock"
	"github.com/smallbiznis/fanbase/internal/ledger/domain"
	"github.com/smallbiznis/fanbase/internal/payment/gateway"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
	Gateway     gateway.Client
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	accountRepo accountdomain.Repository
	gateway     gateway.Client
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		gateway:     p.Gateway,
	}
}

func (s *Service) CreateTip(ctx context.Context, subscriberID, creatorID snowflake.ID, amount float64, currency string) (*domain.CreateTipResponse, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	creator, err := s.accountRepo.FindByID(ctx, s.db, creatorID)
	if err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.IntentRequest{
		Amount:      amount,
		Currency:    currency,
		Description: fmt.Sprintf("tip to creator %s", creator.ID),
	})
	if err != nil {
		s.log.Warn("failed to create payment intent", zap.Error(err))
		return nil, err
	}

	now := s.clock.Now()
	txID := s.genID.Generate()
	inserted, err := s.repo.InsertTransaction(ctx, s.db, &domain.Transaction{
		ID:                txID,
		Type:              domain.TransactionTypeTip,
		Status:            domain.TransactionStatusPending,
		Amount:            amount,
		Currency:          currency,
		SubscriberID:      subscriberID,
		CreatorID:         creator.ID,
		ExternalPaymentID: intent.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, domain.ErrDuplicatePayment
	}

	return &domain.CreateTipResponse{
		TransactionID: txID,
		ClientSecret:  intent.ClientSecret,
	}, nil
}

func (s *Service) RequestPayout(ctx context.Context, creatorID snowflake.ID, amount float64, currency string) (*domain.PayoutRequest, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	creator, err := s.accountRepo.FindByID(ctx, s.db, creatorID)
	if err != nil {
		return nil, err
	}
	if creator.TotalEarnings < amount {
		return nil, accountdomain.ErrInsufficientEarnings
	}

	now := s.clock.Now()
	req := &domain.PayoutRequest{
		ID:          s.genID.Generate(),
		CreatorID:   creator.ID,
		Amount:      amount,
		Currency:    currency,
		Status:      domain.PayoutStatusPending,
		RequestedAt: now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertPayoutRequest(ctx, s.db, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) GetPayout(ctx context.Context, id snowflake.ID) (*domain.PayoutRequest, error) {
	return s.repo.FindPayoutRequest(ctx, s.db, id)
}

func (s *Service) ListPayouts(ctx context.Context, status domain.PayoutStatus, limit int) ([]*domain.PayoutRequest, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	return s.repo.ListPayoutRequests(ctx, s.db, status, limit)
}
