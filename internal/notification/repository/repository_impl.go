package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/notification/domain"
	"gorm.io/gorm"
)

type Repository interface {
	// FindActive returns the pending or sent row for the pair, if any.
	// Skipped and failed rows do not block another attempt.
	FindActive(ctx context.Context, db *gorm.DB, reservationID snowflake.ID, t domain.Type) (*domain.LogEntry, error)
	Insert(ctx context.Context, db *gorm.DB, entry *domain.LogEntry) error
	Finalize(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.LogStatus, channel domain.Channel, detail string, at time.Time) error
	ListByReservation(ctx context.Context, db *gorm.DB, reservationID snowflake.ID) ([]domain.LogEntry, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, reservationID snowflake.ID, t domain.Type) (*domain.LogEntry, error) {
	var item domain.LogEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, reservation_id, type, status, channel, recipient, detail, created_at, updated_at
		 FROM notification_logs
		 WHERE reservation_id = ? AND type = ? AND status IN ('pending', 'sent')
		 ORDER BY created_at DESC
		 LIMIT 1`,
		reservationID, t,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.LogEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notification_logs (
			id, reservation_id, type, status, channel, recipient, detail, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ReservationID,
		entry.Type,
		entry.Status,
		entry.Channel,
		entry.Recipient,
		entry.Detail,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Error
}

func (r *repo) Finalize(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.LogStatus, channel domain.Channel, detail string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notification_logs
		 SET status = ?, channel = ?, detail = ?, updated_at = ?
		 WHERE id = ?`,
		status, channel, detail, at, id,
	).Error
}

func (r *repo) ListByReservation(ctx context.Context, db *gorm.DB, reservationID snowflake.ID) ([]domain.LogEntry, error) {
	var items []domain.LogEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, reservation_id, type, status, channel, recipient, detail, created_at, updated_at
		 FROM notification_logs
		 WHERE reservation_id = ?
		 ORDER BY created_at ASC`,
		reservationID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
