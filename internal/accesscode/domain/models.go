package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type ResultStatus string

const (
	// StatusIssued means a new code was minted on the lock platform.
	StatusIssued ResultStatus = "issued"
	// StatusReused means the stored code still covers the stay window.
	StatusReused ResultStatus = "reused"
	StatusNotEligible ResultStatus = "not_eligible"
)

const (
	ReasonCancelled     = "cancelled"
	ReasonNotConfigured = "not_configured"
	ReasonNoLock        = "no_lock"
)

type Result struct {
	Status ResultStatus
	Code   string
	Reason string
}

type Service interface {
	// EnsureAccessCode is idempotent: an unchanged stay window returns
	// the stored code without touching the lock platform; a moved
	// window rotates the code.
	EnsureAccessCode(ctx context.Context, reservationID snowflake.ID) (Result, error)
}
