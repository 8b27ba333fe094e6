// Package statemachine holds the pure transition rules for canonical
// reservation state. No I/O happens here; side effects live in the
// listeners fed by the emitted events.
package statemachine

import (
	"github.com/smallbiznis/hostelway/internal/reservation/domain"
)

// Decision is the outcome of applying one snapshot.
type Decision struct {
	Status        domain.Status
	PaymentStatus domain.PaymentStatus
	Events        []domain.TransitionEvent
}

// Apply computes the next canonical (status, payment_status) pair for a
// snapshot. Transitions are monotonic: a snapshot may only move status
// forward in the pending < confirmed < checked_in < checked_out order,
// except cancellation which applies from any non-terminal state and is
// terminal. Payment status is monotonic toward paid, except refunded
// which applies from paid or partially_paid. Stale or no-op snapshots
// produce zero events.
func Apply(current *domain.Reservation, snap domain.Snapshot) Decision {
	d := Decision{
		Status:        current.Status,
		PaymentStatus: current.PaymentStatus,
	}

	// A cancelled reservation ignores all further snapshots.
	if current.Status == domain.StatusCancelled {
		return d
	}

	if next := targetStatus(snap); next != "" {
		if accepted := advanceStatus(current.Status, next); accepted != current.Status {
			d.Status = accepted
			d.Events = append(d.Events, domain.TransitionEvent{
				Field: domain.FieldStatus,
				From:  string(current.Status),
				To:    string(accepted),
			})
		}
	}

	if next := targetPayment(current, snap); next != current.PaymentStatus {
		d.PaymentStatus = next
		d.Events = append(d.Events, domain.TransitionEvent{
			Field: domain.FieldPaymentStatus,
			From:  string(current.PaymentStatus),
			To:    string(next),
		})
	}

	return d
}

func targetStatus(snap domain.Snapshot) domain.Status {
	switch {
	case snap.Cancelled:
		return domain.StatusCancelled
	case snap.CheckedOut:
		return domain.StatusCheckedOut
	case snap.CheckedIn:
		return domain.StatusCheckedIn
	case snap.Confirmed:
		return domain.StatusConfirmed
	default:
		return ""
	}
}

func advanceStatus(current, next domain.Status) domain.Status {
	if next == domain.StatusCancelled {
		return domain.StatusCancelled
	}
	if domain.StatusRank(next) > domain.StatusRank(current) {
		return next
	}
	return current
}

func targetPayment(current *domain.Reservation, snap domain.Snapshot) domain.PaymentStatus {
	if snap.Refunded {
		switch current.PaymentStatus {
		case domain.PaymentPaid, domain.PaymentPartiallyPaid:
			return domain.PaymentRefunded
		default:
			return current.PaymentStatus
		}
	}
	if current.PaymentStatus == domain.PaymentRefunded {
		return current.PaymentStatus
	}

	due := snap.AmountDue
	if due <= 0 {
		due = current.Amount
	}

	computed := domain.PaymentPending
	switch {
	case due > 0 && snap.AmountPaid >= due:
		computed = domain.PaymentPaid
	case snap.AmountPaid > 0:
		computed = domain.PaymentPartiallyPaid
	}

	if domain.PaymentRank(computed) > domain.PaymentRank(current.PaymentStatus) {
		return computed
	}
	return current.PaymentStatus
}
