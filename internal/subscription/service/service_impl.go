package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/fanbase/internal/account/domain"
	auditdomain "github.com/smallbiznis/fanbase/internal/audit/domain"
	"github.com/smallbiznis/fanbase/internal/clock"
	ledgerdomain "github.com/smallbiznis/fanbase/internal/ledger/domain"
	"github.com/smallbiznis/fanbase/internal/payment/gateway"
	"github.com/smallbiznis/fanbase/internal/subscription/domain"
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
	LedgerRepo  ledgerdomain.Repository
	Gateway     gateway.Client
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	accountRepo accountdomain.Repository
	ledgerRepo  ledgerdomain.Repository
	gateway     gateway.Client
	auditSvc    auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("subscription.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		ledgerRepo:  p.LedgerRepo,
		gateway:     p.Gateway,
		auditSvc:    p.AuditSvc,
	}
}

// Subscribe creates a pending subscription and its pending transaction keyed
// on the gateway intent id. Nothing becomes active here; activation happens
// when the charge settles.
func (s *Service) Subscribe(ctx context.Context, subscriberID, planID snowflake.ID) (*domain.CreateSubscriptionResponse, error) {
	plan, err := s.repo.FindPlan(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.Active {
		return nil, domain.ErrPlanNotFound
	}
	if plan.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	creator, err := s.accountRepo.FindByID(ctx, s.db, plan.CreatorID)
	if err != nil {
		return nil, err
	}
	if !creator.SubscriptionEnabled {
		return nil, domain.ErrCreatorDisabled
	}

	open, err := s.repo.HasOpenSubscription(ctx, s.db, subscriberID, plan.CreatorID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, domain.ErrAlreadySubscribed
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.IntentRequest{
		Amount:      plan.Amount,
		Currency:    plan.Currency,
		Description: fmt.Sprintf("subscription to plan %s", plan.ID),
	})
	if err != nil {
		s.log.Warn("failed to create payment intent", zap.Error(err))
		return nil, err
	}

	now := s.clock.Now()
	sub := &domain.Subscription{
		ID:                s.genID.Generate(),
		SubscriberID:      subscriberID,
		CreatorID:         plan.CreatorID,
		PlanID:            plan.ID,
		Status:            domain.SubscriptionStatusPending,
		StartDate:         now,
		ExternalPaymentID: intent.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	txID := s.genID.Generate()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return err
		}
		subID := sub.ID
		inserted, err := s.ledgerRepo.InsertTransaction(ctx, tx, &ledgerdomain.Transaction{
			ID:                txID,
			Type:              ledgerdomain.TransactionTypeSubscription,
			Status:            ledgerdomain.TransactionStatusPending,
			Amount:            plan.Amount,
			Currency:          plan.Currency,
			SubscriberID:      subscriberID,
			CreatorID:         plan.CreatorID,
			SubscriptionID:    &subID,
			ExternalPaymentID: intent.ID,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return ledgerdomain.ErrDuplicatePayment
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &domain.CreateSubscriptionResponse{
		Subscription:  sub,
		TransactionID: txID,
		ClientSecret:  intent.ClientSecret,
	}, nil
}

func (s *Service) Cancel(ctx context.Context, subscriptionID snowflake.ID) error {
	sub, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return domain.ErrSubscriptionNotFound
	}

	changed, err := s.repo.Cancel(ctx, s.db, sub.ID, s.clock.Now())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	targetID := sub.ID.String()
	actorID := sub.SubscriberID.String()
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), &actorID,
		"subscription.cancelled", "subscription", &targetID, nil); err != nil {
		s.log.Warn("failed to write audit log", zap.Error(err))
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}
