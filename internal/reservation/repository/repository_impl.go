package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/reservation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const reservationColumns = `id, org_id, branch_id, external_id,
	guest_name, guest_phone, guest_email,
	check_in, check_out, status, payment_status,
	amount, currency, payment_link_id, payment_link_url,
	access_code, access_code_id, access_code_start, access_code_end,
	created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Reservation, error) {
	var item domain.Reservation
	err := db.WithContext(ctx).Raw(
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, externalID string) (*domain.Reservation, error) {
	if externalID == "" {
		return nil, nil
	}
	var item domain.Reservation
	err := db.WithContext(ctx).Raw(
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE org_id = ? AND external_id = ?
		 LIMIT 1`,
		orgID,
		externalID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, res *domain.Reservation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO reservations (
			id, org_id, branch_id, external_id,
			guest_name, guest_phone, guest_email,
			check_in, check_out, status, payment_status,
			amount, currency, payment_link_id, payment_link_url,
			access_code, access_code_id, access_code_start, access_code_end,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID,
		res.OrgID,
		res.BranchID,
		res.ExternalID,
		res.GuestName,
		res.GuestPhone,
		res.GuestEmail,
		res.CheckIn,
		res.CheckOut,
		res.Status,
		res.PaymentStatus,
		res.Amount,
		res.Currency,
		res.PaymentLinkID,
		res.PaymentLinkURL,
		res.AccessCode,
		res.AccessCodeID,
		res.AccessCodeStart,
		res.AccessCodeEnd,
		res.CreatedAt,
		res.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, res *domain.Reservation) error {
	return db.WithContext(ctx).Exec(
		`UPDATE reservations
		 SET external_id = ?,
		     guest_name = ?,
		     guest_phone = ?,
		     guest_email = ?,
		     check_in = ?,
		     check_out = ?,
		     status = ?,
		     payment_status = ?,
		     amount = ?,
		     currency = ?,
		     payment_link_id = ?,
		     payment_link_url = ?,
		     access_code = ?,
		     access_code_id = ?,
		     access_code_start = ?,
		     access_code_end = ?,
		     updated_at = ?
		 WHERE id = ?`,
		res.ExternalID,
		res.GuestName,
		res.GuestPhone,
		res.GuestEmail,
		res.CheckIn,
		res.CheckOut,
		res.Status,
		res.PaymentStatus,
		res.Amount,
		res.Currency,
		res.PaymentLinkID,
		res.PaymentLinkURL,
		res.AccessCode,
		res.AccessCodeID,
		res.AccessCodeStart,
		res.AccessCodeEnd,
		res.UpdatedAt,
		res.ID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, afterID snowflake.ID, limit int) ([]*domain.Reservation, error) {
	var items []*domain.Reservation
	query := `SELECT ` + reservationColumns + `
		 FROM reservations
		 WHERE org_id = ?`
	args := []any{orgID}
	if afterID != 0 {
		query += ` AND id > ?`
		args = append(args, afterID)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) AppendHistory(ctx context.Context, db *gorm.DB, entry *domain.SyncHistoryEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO reservation_sync_history (
			id, reservation_id, source, snapshot, changes, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ReservationID,
		entry.Source,
		entry.Snapshot,
		entry.Changes,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListHistory(ctx context.Context, db *gorm.DB, reservationID snowflake.ID, limit int) ([]*domain.SyncHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []*domain.SyncHistoryEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, reservation_id, source, snapshot, changes, created_at
		 FROM reservation_sync_history
		 WHERE reservation_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		reservationID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
