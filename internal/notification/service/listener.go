package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/hostelway/internal/notification/domain"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	"go.uber.org/zap"
)

// Listener maps accepted reservation transitions to guest notifications.
// It runs after the reconciler released the reservation lock.
type Listener struct {
	svc domain.Service
	log *zap.Logger
}

func NewListener(svc domain.Service, log *zap.Logger) reservationdomain.TransitionListener {
	return &Listener{svc: svc, log: log.Named("notification.listener")}
}

func (l *Listener) Name() string { return "notification_dispatcher" }

func (l *Listener) OnTransition(ctx context.Context, res *reservationdomain.Reservation, events []reservationdomain.TransitionEvent) error {
	var errs []error
	for _, event := range events {
		t, ok := notificationFor(event)
		if !ok {
			continue
		}
		if _, err := l.svc.Notify(ctx, res.ID, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func notificationFor(event reservationdomain.TransitionEvent) (domain.Type, bool) {
	switch {
	case event.Field == reservationdomain.FieldStatus && event.To == string(reservationdomain.StatusConfirmed):
		return domain.TypeBookingConfirmation, true
	case event.Field == reservationdomain.FieldPaymentStatus && event.To == string(reservationdomain.PaymentPaid):
		return domain.TypeCheckinInvitation, true
	default:
		return "", false
	}
}
