package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypeBookingConfirmation Type = "booking_confirmation"
	TypePaymentLink         Type = "payment_link"
	TypeCheckinInvitation   Type = "checkin_invitation"
	TypeAccessCode          Type = "access_code"
)

func ParseType(raw string) (Type, bool) {
	switch Type(raw) {
	case TypeBookingConfirmation, TypePaymentLink, TypeCheckinInvitation, TypeAccessCode:
		return Type(raw), true
	default:
		return "", false
	}
}

type LogStatus string

const (
	// StatusPending is the claim written under the reservation lock
	// before the send attempt leaves the critical section.
	StatusPending LogStatus = "pending"
	StatusSent    LogStatus = "sent"
	StatusFailed  LogStatus = "failed"
	StatusSkipped LogStatus = "skipped"
)

type Channel string

const (
	ChannelSession  Channel = "session"
	ChannelTemplate Channel = "template"
)

// LogEntry is append-only. A pending or sent row for a (reservation, type)
// pair blocks any further send of that type; a pending row stops blocking
// once it outlives one operation timeout.
type LogEntry struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	ReservationID snowflake.ID `json:"reservation_id" gorm:"not null;index"`
	Type          Type         `json:"type" gorm:"type:text;not null"`
	Status        LogStatus    `json:"status" gorm:"type:text;not null"`
	Channel       Channel      `json:"channel,omitempty" gorm:"type:text"`
	Recipient     string       `json:"recipient,omitempty" gorm:"type:text"`
	Detail        string       `json:"detail,omitempty" gorm:"type:text"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

func (LogEntry) TableName() string { return "notification_logs" }

type OutcomeStatus string

const (
	OutcomeSent    OutcomeStatus = "sent"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

type Outcome struct {
	Status OutcomeStatus
	Reason string
}

func Sent(channel Channel) Outcome {
	return Outcome{Status: OutcomeSent, Reason: string(channel)}
}

func Skipped(reason string) Outcome {
	return Outcome{Status: OutcomeSkipped, Reason: reason}
}

func Failed(reason string) Outcome {
	return Outcome{Status: OutcomeFailed, Reason: reason}
}

const (
	ReasonAlreadySent    = "already_sent"
	ReasonNoContact      = "no_contact"
	ReasonNotConfigured  = "not_configured"
	ReasonClaimAbandoned = "claim_abandoned"
)

type Service interface {
	Notify(ctx context.Context, reservationID snowflake.ID, t Type) (Outcome, error)
}

var ErrUnknownType = errors.New("unknown_notification_type")
