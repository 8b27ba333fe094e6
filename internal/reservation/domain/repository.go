package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Reservation, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, externalID string) (*Reservation, error)
	Insert(ctx context.Context, db *gorm.DB, res *Reservation) error
	Update(ctx context.Context, db *gorm.DB, res *Reservation) error
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, afterID snowflake.ID, limit int) ([]*Reservation, error)
	AppendHistory(ctx context.Context, db *gorm.DB, entry *SyncHistoryEntry) error
	ListHistory(ctx context.Context, db *gorm.DB, reservationID snowflake.ID, limit int) ([]*SyncHistoryEntry, error)
}
