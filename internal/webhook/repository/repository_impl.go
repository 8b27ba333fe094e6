package repository

import (
	"context"

	"github.com/smallbiznis/hostelway/internal/webhook/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *domain.Event) error
	ListUnresolvable(ctx context.Context, db *gorm.DB, limit int) ([]domain.Event, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, provider, status, reservation_id, payload, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Provider,
		event.Status,
		event.ReservationID,
		event.Payload,
		event.Detail,
		event.CreatedAt,
	).Error
}

func (r *repo) ListUnresolvable(ctx context.Context, db *gorm.DB, limit int) ([]domain.Event, error) {
	var events []domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, status, reservation_id, payload, detail, created_at
		 FROM webhook_events
		 WHERE status = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		domain.StatusUnresolvable, limit,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
