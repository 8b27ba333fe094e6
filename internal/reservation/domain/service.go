package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/pkg/db/pagination"
)

type Service interface {
	// Reconcile applies one provider snapshot under the reservation lock
	// and fans accepted transitions out to the registered listeners.
	Reconcile(ctx context.Context, ref Ref, snap Snapshot) (*Reservation, error)
	Get(ctx context.Context, orgID, id snowflake.ID) (*Reservation, error)
	List(ctx context.Context, orgID snowflake.ID, p pagination.Pagination) ([]*Reservation, *pagination.PageInfo, error)
}

// TransitionListener consumes accepted transitions after the reservation
// lock has been released. Implementations acquire the lock themselves for
// their own read-decide-write steps.
type TransitionListener interface {
	Name() string
	OnTransition(ctx context.Context, res *Reservation, events []TransitionEvent) error
}

var (
	ErrNotFound        = errors.New("reservation_not_found")
	ErrInvalidRef      = errors.New("invalid_reservation_ref")
	ErrInvalidSnapshot = errors.New("invalid_snapshot")
	ErrInvalidStay     = errors.New("invalid_stay_window")
)
