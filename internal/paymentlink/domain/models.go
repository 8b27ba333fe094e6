package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type ResultStatus string

const (
	StatusCreated ResultStatus = "created"
	StatusReused  ResultStatus = "reused"
	StatusSkipped ResultStatus = "skipped"
)

const (
	ReasonCancelled     = "cancelled"
	ReasonNoAmount      = "no_amount"
	ReasonAlreadyPaid   = "already_paid"
	ReasonNotConfigured = "not_configured"
)

type Result struct {
	Status ResultStatus
	URL    string
	Reason string
}

type Service interface {
	// EnsureLink stores at most one payment link per reservation. A
	// concurrent duplicate create is discarded at store time.
	EnsureLink(ctx context.Context, reservationID snowflake.ID) (Result, error)

	// Regenerate clears the stored link and issues a fresh one.
	Regenerate(ctx context.Context, reservationID snowflake.ID) (Result, error)
}
