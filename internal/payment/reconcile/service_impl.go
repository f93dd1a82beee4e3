// Package reconcile applies canonical payment events to ledger state exactly
// once. All terminal transitions are conditional updates keyed on
// external_payment_id; earnings mutations are additive SQL expressions.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/fanbase/internal/account/domain"
	auditdomain "github.com/smallbiznis/fanbase/internal/audit/domain"
	"github.com/smallbiznis/fanbase/internal/clock"
	ledgerdomain "github.com/smallbiznis/fanbase/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/fanbase/internal/observability/metrics"
	"github.com/smallbiznis/fanbase/internal/payment/domain"
	"github.com/smallbiznis/fanbase/internal/payment/gateway"
	paymentrepo "github.com/smallbiznis/fanbase/internal/payment/repository"
	subscriptiondomain "github.com/smallbiznis/fanbase/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	EventRepo   paymentrepo.Repository
	LedgerRepo  ledgerdomain.Repository
	SubRepo     subscriptiondomain.Repository
	AccountRepo accountdomain.Repository
	AuditSvc    auditdomain.Service
	Gateway     gateway.Client
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	eventRepo   paymentrepo.Repository
	ledgerRepo  ledgerdomain.Repository
	subRepo     subscriptiondomain.Repository
	accountRepo accountdomain.Repository
	auditSvc    auditdomain.Service
	gateway     gateway.Client
	metrics     *obsmetrics.Metrics
}

// eventClaimLease bounds how long a crashed attempt can hold an event claim
// before a redelivery may steal it.
const eventClaimLease = time.Minute

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.reconcile"),
		genID:       p.GenID,
		clock:       p.Clock,
		eventRepo:   p.EventRepo,
		ledgerRepo:  p.LedgerRepo,
		subRepo:     p.SubRepo,
		accountRepo: p.AccountRepo,
		auditSvc:    p.AuditSvc,
		gateway:     p.Gateway,
		metrics:     p.Metrics,
	}
}

func (s *Service) Apply(ctx context.Context, event *domain.ReconcileEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now()
	received := domain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		Kind:            event.Kind,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      now,
		AttemptedAt:     &now,
	}

	inserted, err := s.eventRepo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.eventRepo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.recordOutcome(event.Kind, "duplicate")
			return domain.ErrEventAlreadyProcessed
		}
		// An unprocessed record means an earlier attempt is either still
		// running or died. Take the claim; a live claim blocks us so two
		// concurrent deliveries can never both execute side effects.
		claimed, err := s.eventRepo.ClaimEvent(ctx, s.db, stored.ID, now, now.Add(-eventClaimLease))
		if err != nil {
			return err
		}
		if !claimed {
			s.recordOutcome(event.Kind, "in_flight")
			return domain.ErrEventInFlight
		}
	}

	if err := s.applyEvent(ctx, event); err != nil {
		// Release the claim so a redelivery can retry right away.
		if releaseErr := s.eventRepo.ReleaseEvent(ctx, s.db, stored.ID); releaseErr != nil {
			s.log.Warn("failed to release event claim",
				zap.String("provider_event_id", event.ProviderEventID),
				zap.Error(releaseErr),
			)
		}
		s.recordOutcome(event.Kind, outcomeFor(err))
		return err
	}

	if err := s.eventRepo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return err
	}

	s.recordOutcome(event.Kind, "applied")
	return nil
}

func validateEvent(event *domain.ReconcileEvent) error {
	if event == nil {
		return domain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return domain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return domain.ErrInvalidEvent
	}
	event.Kind = strings.TrimSpace(event.Kind)

	switch event.Kind {
	case domain.KindChargeSucceeded, domain.KindChargeFailed,
		domain.KindSubscriptionRenewed, domain.KindSubscriptionCancelled:
		if strings.TrimSpace(event.ExternalID) == "" {
			return domain.ErrInvalidEvent
		}
	case domain.KindAdminApproved, domain.KindAdminRejected:
		if event.SubjectID == 0 {
			return domain.ErrInvalidEvent
		}
	default:
		return domain.ErrInvalidEvent
	}

	if event.Kind == domain.KindChargeSucceeded && event.Amount < 0 {
		return domain.ErrInvalidAmount
	}
	return nil
}

func (s *Service) applyEvent(ctx context.Context, event *domain.ReconcileEvent) error {
	switch event.Kind {
	case domain.KindChargeSucceeded:
		return s.settleCharge(ctx, event)
	case domain.KindChargeFailed:
		return s.failCharge(ctx, event)
	case domain.KindSubscriptionRenewed:
		return s.applyRenewal(ctx, event)
	case domain.KindSubscriptionCancelled:
		return s.cancelSubscription(ctx, event)
	case domain.KindAdminApproved:
		return s.applyAdminApproval(ctx, event)
	case domain.KindAdminRejected:
		return s.applyAdminRejection(ctx, event)
	default:
		return domain.ErrInvalidEvent
	}
}

// settleCharge completes the pending transaction, activates a linked
// subscription and credits the creator in one transactional unit, so a
// failure before the terminal write leaves the row pending.
func (s *Service) settleCharge(ctx context.Context, event *domain.ReconcileEvent) error {
	if event.SubjectType == domain.SubjectPlatformMembership {
		return s.settleMembership(ctx, event)
	}

	now := s.clock.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.ledgerRepo.SettleTransaction(ctx, tx, event.ExternalID, ledgerdomain.TransactionStatusCompleted, now)
		if err != nil {
			return err
		}
		if !won {
			return s.resolveSettleLoss(ctx, tx, event.ExternalID, ledgerdomain.TransactionStatusCompleted)
		}

		row, err := s.ledgerRepo.FindTransactionByExternalID(ctx, tx, event.ExternalID)
		if err != nil {
			return err
		}
		if row == nil {
			return domain.ErrInvalidEvent
		}

		if err := s.accountRepo.CreditEarnings(ctx, tx, row.CreatorID, row.Amount, now); err != nil {
			return err
		}

		if row.Type == ledgerdomain.TransactionTypeSubscription {
			if err := s.activateSubscription(ctx, tx, event.ExternalID, now); err != nil {
				return err
			}
		}

		if tier := strings.TrimSpace(event.Tier); tier != "" {
			if err := s.accountRepo.SetPlatformSubscription(ctx, tx, row.SubscriberID, "active", tier, now); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.writeAuditLog(ctx, "payment.completed", "transaction", event.ExternalID, map[string]any{
		"kind":   event.Kind,
		"amount": event.Amount,
	})
	return nil
}

// settleMembership applies a verified store receipt: no ledger transaction is
// involved, only the account's platform membership. A missing tier means the
// product id could not be mapped and a human follows up; nothing changes.
func (s *Service) settleMembership(ctx context.Context, event *domain.ReconcileEvent) error {
	tier := strings.TrimSpace(event.Tier)
	if tier == "" || event.SubjectID == 0 {
		return nil
	}

	now := s.clock.Now()
	if err := s.accountRepo.SetPlatformSubscription(ctx, s.db, event.SubjectID, "active", tier, now); err != nil {
		return err
	}

	s.writeAuditLog(ctx, "membership.activated", "account", event.SubjectID.String(), map[string]any{
		"tier":        tier,
		"external_id": event.ExternalID,
	})
	return nil
}

func (s *Service) failCharge(ctx context.Context, event *domain.ReconcileEvent) error {
	now := s.clock.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.ledgerRepo.SettleTransaction(ctx, tx, event.ExternalID, ledgerdomain.TransactionStatusFailed, now)
		if err != nil {
			return err
		}
		if !won {
			return s.resolveSettleLoss(ctx, tx, event.ExternalID, ledgerdomain.TransactionStatusFailed)
		}

		row, err := s.ledgerRepo.FindTransactionByExternalID(ctx, tx, event.ExternalID)
		if err != nil {
			return err
		}
		if row != nil && row.Type == ledgerdomain.TransactionTypeSubscription {
			if _, err := s.subRepo.CancelByExternalID(ctx, tx, event.ExternalID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.writeAuditLog(ctx, "payment.failed", "transaction", event.ExternalID, map[string]any{
		"kind": event.Kind,
	})
	return nil
}

// resolveSettleLoss decides what losing the conditional update means: a
// redelivered event landing on the same terminal state is a no-op; a
// different terminal state is a conflict that is never overwritten.
func (s *Service) resolveSettleLoss(ctx context.Context, tx *gorm.DB, externalID string, wanted ledgerdomain.TransactionStatus) error {
	existing, err := s.ledgerRepo.FindTransactionByExternalID(ctx, tx, externalID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ledgerdomain.ErrTransactionNotFound
	}
	if existing.Status == wanted {
		return nil
	}
	s.log.Warn("terminal state conflict",
		zap.String("external_payment_id", externalID),
		zap.String("recorded", string(existing.Status)),
		zap.String("incoming", string(wanted)),
	)
	return domain.ErrTerminalConflict
}

func (s *Service) activateSubscription(ctx context.Context, tx *gorm.DB, externalID string, now time.Time) error {
	sub, err := s.subRepo.FindByExternalID(ctx, tx, externalID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	plan, err := s.subRepo.FindPlan(ctx, tx, sub.PlanID)
	if err != nil {
		return err
	}

	_, err = s.subRepo.Activate(ctx, tx, externalID, now.AddDate(0, 0, plan.IntervalDays), now)
	return err
}

// applyRenewal inserts a fresh transaction keyed on the renewal invoice id.
// The unique constraint dedupes redelivered invoices: end_date is extended
// and earnings credited only when the insert wins.
func (s *Service) applyRenewal(ctx context.Context, event *domain.ReconcileEvent) error {
	now := s.clock.Now()
	var renewed bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.subRepo.FindByExternalID(ctx, tx, event.SubscriptionExternalID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		plan, err := s.subRepo.FindPlan(ctx, tx, sub.PlanID)
		if err != nil {
			return err
		}

		amount := event.Amount
		if amount <= 0 {
			amount = plan.Amount
		}
		subID := sub.ID
		inserted, err := s.ledgerRepo.InsertTransaction(ctx, tx, &ledgerdomain.Transaction{
			ID:                s.genID.Generate(),
			Type:              ledgerdomain.TransactionTypeSubscription,
			Status:            ledgerdomain.TransactionStatusCompleted,
			Amount:            amount,
			Currency:          plan.Currency,
			SubscriberID:      sub.SubscriberID,
			CreatorID:         sub.CreatorID,
			SubscriptionID:    &subID,
			ExternalPaymentID: event.ExternalID,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		renewed = true

		if err := s.subRepo.ExtendEndDate(ctx, tx, sub.ID, plan.IntervalDays, now); err != nil {
			return err
		}
		return s.accountRepo.CreditEarnings(ctx, tx, sub.CreatorID, amount, now)
	})
	if err != nil {
		return err
	}

	if renewed {
		s.writeAuditLog(ctx, "subscription.renewed", "subscription", event.SubscriptionExternalID, map[string]any{
			"invoice_id": event.ExternalID,
			"amount":     event.Amount,
		})
	}
	return nil
}

func (s *Service) cancelSubscription(ctx context.Context, event *domain.ReconcileEvent) error {
	now := s.clock.Now()

	sub, err := s.subRepo.FindByExternalID(ctx, s.db, event.ExternalID)
	if err != nil {
		return err
	}
	if sub == nil {
		return subscriptiondomain.ErrSubscriptionNotFound
	}

	changed, err := s.subRepo.CancelByExternalID(ctx, s.db, event.ExternalID, now)
	if err != nil {
		return err
	}
	if changed {
		s.writeAuditLog(ctx, "subscription.cancelled", "subscription", event.ExternalID, nil)
	}
	return nil
}

func (s *Service) applyAdminApproval(ctx context.Context, event *domain.ReconcileEvent) error {
	switch event.SubjectType {
	case domain.SubjectPayoutRequest:
		return s.executePayout(ctx, event)
	case domain.SubjectSubscriptionApproval:
		return s.enableSubscriptions(ctx, event)
	default:
		return domain.ErrInvalidEvent
	}
}

// executePayout calls the gateway first; the debit and the processing flip
// happen only after the gateway reports success. A transient failure means
// the outcome is unknown, so the request stays pending for manual review.
func (s *Service) executePayout(ctx context.Context, event *domain.ReconcileEvent) error {
	now := s.clock.Now()

	req, err := s.ledgerRepo.FindPayoutRequest(ctx, s.db, event.SubjectID)
	if err != nil {
		return err
	}
	if req.Status == ledgerdomain.PayoutStatusProcessing || req.Status == ledgerdomain.PayoutStatusCompleted {
		return nil
	}
	if req.Status != ledgerdomain.PayoutStatusPending {
		return domain.ErrTerminalConflict
	}

	payout, err := s.gateway.CreatePayout(ctx, gateway.PayoutRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Destination: req.CreatorID.String(),
	})
	if err != nil {
		if gateway.IsTransient(err) {
			s.log.Warn("payout outcome unknown, leaving request pending",
				zap.String("payout_request_id", req.ID.String()),
				zap.Error(err),
			)
		}
		s.recordGatewayFailure("create_payout", err)
		return err
	}

	var won bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		won, err = s.ledgerRepo.MarkPayoutProcessing(ctx, tx, req.ID, payout.ID, now)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		debited, err := s.accountRepo.DebitEarnings(ctx, tx, req.CreatorID, req.Amount, now)
		if err != nil {
			return err
		}
		if !debited {
			return accountdomain.ErrInsufficientEarnings
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !won {
		// Another applier already flipped the request; it owns the audit row.
		return nil
	}

	targetID := req.ID.String()
	s.writeAdminAuditLog(ctx, event, "payout.approved", "payout_request", targetID, map[string]any{
		"previous_status":    string(ledgerdomain.PayoutStatusPending),
		"new_status":         string(ledgerdomain.PayoutStatusProcessing),
		"amount":             req.Amount,
		"external_payout_id": payout.ID,
	})
	return nil
}

func (s *Service) enableSubscriptions(ctx context.Context, event *domain.ReconcileEvent) error {
	now := s.clock.Now()

	creator, err := s.accountRepo.FindByID(ctx, s.db, event.SubjectID)
	if err != nil {
		return err
	}

	changed, err := s.accountRepo.EnableSubscriptions(ctx, s.db, creator.ID, now)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	targetID := creator.ID.String()
	s.writeAdminAuditLog(ctx, event, "subscription_approval.approved", "account", targetID, map[string]any{
		"previous_subscription_enabled": creator.SubscriptionEnabled,
		"new_subscription_enabled":      true,
	})
	return nil
}

func (s *Service) applyAdminRejection(ctx context.Context, event *domain.ReconcileEvent) error {
	targetID := event.SubjectID.String()
	s.writeAdminAuditLog(ctx, event, "review.rejected", event.SubjectType, targetID, map[string]any{
		"notes": event.Notes,
	})
	return nil
}

func (s *Service) writeAuditLog(ctx context.Context, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, "system", nil, action, targetType, &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) writeAdminAuditLog(ctx context.Context, event *domain.ReconcileEvent, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	var actorID *string
	if event.AdminID != 0 {
		value := event.AdminID.String()
		actorID = &value
	}
	if err := s.auditSvc.AuditLog(ctx, "admin", actorID, action, targetType, &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) recordOutcome(kind, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordReconcileEvent(kind, outcome)
}

func (s *Service) recordGatewayFailure(operation string, err error) {
	if s.metrics == nil {
		return
	}
	class := string(gateway.ClassPermanent)
	if gateway.IsTransient(err) {
		class = string(gateway.ClassTransient)
	}
	s.metrics.RecordGatewayFailure(operation, class)
}

func outcomeFor(err error) string {
	switch err {
	case nil:
		return "applied"
	case domain.ErrTerminalConflict:
		return "conflict"
	default:
		return "error"
	}
}
