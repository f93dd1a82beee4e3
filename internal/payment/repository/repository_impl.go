package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fanbase/internal/payment/domain"
	"gorm.io/gorm"
)

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error)

	// ClaimEvent takes the claim on an unprocessed record; a live claim newer
	// than staleBefore blocks it. Rows-affected reports whether this call won.
	ClaimEvent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time, staleBefore time.Time) (bool, error)

	// ReleaseEvent clears the claim after a failed attempt so a redelivery
	// can retry immediately.
	ReleaseEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, kind, payload, received_at, attempted_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, kind, payload, received_at, attempted_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.Kind,
		event.Payload,
		event.ReceivedAt,
		event.AttemptedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ClaimEvent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET attempted_at = ?
		 WHERE id = ?
		   AND processed_at IS NULL
		   AND (attempted_at IS NULL OR attempted_at < ?)`,
		now,
		id,
		staleBefore,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ReleaseEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET attempted_at = NULL
		 WHERE id = ? AND processed_at IS NULL`,
		id,
	).Error
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}
