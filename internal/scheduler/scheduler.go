// Package scheduler runs periodic maintenance jobs. Its only job today flips
// active subscriptions whose paid period has lapsed to expired.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/fanbase/internal/clock"
	subscriptiondomain "github.com/smallbiznis/fanbase/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler dependencies are incomplete")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	SubRepo subscriptiondomain.Repository
	Clock   clock.Clock
	Config  Config `optional:"true"`
}

type Scheduler struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	subRepo subscriptiondomain.Repository
	clock   clock.Clock
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.SubRepo == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("scheduler"),
		cfg:     p.Config.withDefaults(),
		subRepo: p.SubRepo,
		clock:   p.Clock,
	}, nil
}

// Run loops until ctx is cancelled, executing one pass per interval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ExpireLapsedSubscriptions(ctx); err != nil {
				s.log.Error("expire lapsed subscriptions failed", zap.Error(err))
			}
		}
	}
}

// ExpireLapsedSubscriptions performs one expiry pass. It drains in batches so
// a large backlog cannot hold one statement open for the whole sweep.
func (s *Scheduler) ExpireLapsedSubscriptions(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	now := s.clock.Now()
	var total int64
	for {
		expired, err := s.subRepo.ExpireLapsed(ctx, s.db, now, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		total += expired
		if expired < int64(s.cfg.BatchSize) {
			break
		}
	}

	if total > 0 {
		s.log.Info("expired lapsed subscriptions", zap.Int64("count", total))
	}
	return nil
}
