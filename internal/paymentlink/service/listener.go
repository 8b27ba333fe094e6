package service

import (
	"context"

	notificationdomain "github.com/smallbiznis/hostelway/internal/notification/domain"
	"github.com/smallbiznis/hostelway/internal/paymentlink/domain"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	"go.uber.org/zap"
)

// Listener issues a payment link when a reservation is confirmed and
// still owes money, then pushes the link to the guest.
type Listener struct {
	svc      domain.Service
	notifier notificationdomain.Service
	log      *zap.Logger
}

func NewListener(svc domain.Service, notifier notificationdomain.Service, log *zap.Logger) reservationdomain.TransitionListener {
	return &Listener{svc: svc, notifier: notifier, log: log.Named("paymentlink.listener")}
}

func (l *Listener) Name() string { return "paymentlink_provisioner" }

func (l *Listener) OnTransition(ctx context.Context, res *reservationdomain.Reservation, events []reservationdomain.TransitionEvent) error {
	if !confirmedUnpaid(res, events) {
		return nil
	}

	result, err := l.svc.EnsureLink(ctx, res.ID)
	if err != nil {
		return err
	}
	if result.Status != domain.StatusCreated {
		l.log.Debug("payment link not created",
			zap.String("reservation_id", res.ID.String()),
			zap.String("status", string(result.Status)),
			zap.String("reason", result.Reason),
		)
		return nil
	}

	_, err = l.notifier.Notify(ctx, res.ID, notificationdomain.TypePaymentLink)
	return err
}

func confirmedUnpaid(res *reservationdomain.Reservation, events []reservationdomain.TransitionEvent) bool {
	if res.PaymentStatus == reservationdomain.PaymentPaid || res.PaymentStatus == reservationdomain.PaymentRefunded {
		return false
	}
	for _, event := range events {
		if event.Field == reservationdomain.FieldStatus && event.To == string(reservationdomain.StatusConfirmed) {
			return true
		}
	}
	return false
}
