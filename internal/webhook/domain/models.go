package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EventStatus string

const (
	StatusAccepted EventStatus = "accepted"
	// StatusUnresolvable events are kept for manual inspection; dropping
	// an ambiguous webhook silently is treated as data loss.
	StatusUnresolvable EventStatus = "unresolvable"
	StatusIgnored      EventStatus = "ignored"
)

// Event is the audit record of one inbound webhook.
type Event struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider      string         `json:"provider" gorm:"type:text;not null"`
	Status        EventStatus    `json:"status" gorm:"type:text;not null"`
	ReservationID *snowflake.ID  `json:"reservation_id,omitempty"`
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Detail        string         `json:"detail,omitempty" gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
}

func (Event) TableName() string { return "webhook_events" }

type Result struct {
	Status        EventStatus
	ReservationID snowflake.ID
}

type Service interface {
	// Ingest resolves the payload to a reservation and feeds the
	// normalized snapshot through the reconciler. Unresolvable payloads
	// are persisted, not dropped.
	Ingest(ctx context.Context, provider string, payload []byte) (Result, error)
}

var (
	ErrInvalidPayload  = errors.New("invalid_webhook_payload")
	ErrUnknownProvider = errors.New("unknown_webhook_provider")
)
