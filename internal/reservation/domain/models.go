package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checked_in"
	StatusCheckedOut Status = "checked_out"
	StatusCancelled  Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
	PaymentRefunded      PaymentStatus = "refunded"
)

// StatusRank orders statuses for the monotonic transition rule.
// Cancelled is terminal and handled outside the rank comparison.
func StatusRank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusConfirmed:
		return 1
	case StatusCheckedIn:
		return 2
	case StatusCheckedOut:
		return 3
	default:
		return -1
	}
}

func PaymentRank(s PaymentStatus) int {
	switch s {
	case PaymentPending:
		return 0
	case PaymentPartiallyPaid:
		return 1
	case PaymentPaid:
		return 2
	default:
		return -1
	}
}

// Reservation is the canonical aggregate. Provider views are reconciled
// into it; it is never hard-deleted, only transitioned to cancelled.
type Reservation struct {
	ID         snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID  `json:"org_id" gorm:"not null;index"`
	BranchID   *snowflake.ID `json:"branch_id,omitempty"`
	ExternalID string        `json:"external_id,omitempty" gorm:"type:text"`

	GuestName  string `json:"guest_name" gorm:"type:text"`
	GuestPhone string `json:"guest_phone" gorm:"type:text"`
	GuestEmail string `json:"guest_email" gorm:"type:text"`

	CheckIn  time.Time `json:"check_in" gorm:"not null"`
	CheckOut time.Time `json:"check_out" gorm:"not null"`

	Status        Status        `json:"status" gorm:"type:text;not null"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"type:text;not null"`

	Amount         int64  `json:"amount"`
	Currency       string `json:"currency" gorm:"type:text"`
	PaymentLinkID  string `json:"payment_link_id,omitempty" gorm:"type:text"`
	PaymentLinkURL string `json:"payment_link_url,omitempty" gorm:"type:text"`

	AccessCode      string     `json:"access_code,omitempty" gorm:"type:text"`
	AccessCodeID    string     `json:"-" gorm:"type:text"`
	AccessCodeStart *time.Time `json:"access_code_start,omitempty"`
	AccessCodeEnd   *time.Time `json:"access_code_end,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Reservation) TableName() string { return "reservations" }

type SyncSource string

const (
	SourcePoll    SyncSource = "poll"
	SourceWebhook SyncSource = "webhook"
	SourceManual  SyncSource = "manual"
)

// SyncHistoryEntry is an append-only record of one reconciliation pass,
// written even when the snapshot changed nothing.
type SyncHistoryEntry struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	ReservationID snowflake.ID   `json:"reservation_id" gorm:"not null;index"`
	Source        SyncSource     `json:"source" gorm:"type:text;not null"`
	Snapshot      datatypes.JSON `json:"snapshot" gorm:"type:jsonb;not null"`
	Changes       datatypes.JSON `json:"changes" gorm:"type:jsonb"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
}

func (SyncHistoryEntry) TableName() string { return "reservation_sync_history" }

// Snapshot is the normalized, provider-agnostic view of one reservation.
// AmountDue of zero means the provider did not report it; the reconciler
// falls back to the amount stored on the reservation.
type Snapshot struct {
	Source     SyncSource `json:"source"`
	ExternalID string     `json:"external_id,omitempty"`

	GuestName  string `json:"guest_name,omitempty"`
	GuestPhone string `json:"guest_phone,omitempty"`
	GuestEmail string `json:"guest_email,omitempty"`

	CheckIn  time.Time `json:"check_in,omitempty"`
	CheckOut time.Time `json:"check_out,omitempty"`

	Confirmed  bool `json:"confirmed,omitempty"`
	CheckedIn  bool `json:"checked_in,omitempty"`
	CheckedOut bool `json:"checked_out,omitempty"`
	Cancelled  bool `json:"cancelled,omitempty"`
	Refunded   bool `json:"refunded,omitempty"`

	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due,omitempty"`
	Currency   string `json:"currency,omitempty"`
	RawStatus  string `json:"raw_status,omitempty"`
}

const (
	FieldStatus        = "status"
	FieldPaymentStatus = "payment_status"
)

// TransitionEvent records one accepted canonical transition.
type TransitionEvent struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// Ref identifies the reservation a snapshot belongs to. ID wins when set;
// otherwise the reconciler resolves (OrgID, ExternalID), creating the
// reservation on first sight of an unknown PMS booking.
type Ref struct {
	ID         snowflake.ID
	OrgID      snowflake.ID
	BranchID   *snowflake.ID
	ExternalID string
}
