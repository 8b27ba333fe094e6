package service

import (
	"context"

	"github.com/smallbiznis/hostelway/internal/accesscode/domain"
	notificationdomain "github.com/smallbiznis/hostelway/internal/notification/domain"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	"go.uber.org/zap"
)

// Listener provisions a door code once a reservation is confirmed and
// hands the code to the guest via the notification dispatcher.
type Listener struct {
	svc      domain.Service
	notifier notificationdomain.Service
	log      *zap.Logger
}

func NewListener(svc domain.Service, notifier notificationdomain.Service, log *zap.Logger) reservationdomain.TransitionListener {
	return &Listener{svc: svc, notifier: notifier, log: log.Named("accesscode.listener")}
}

func (l *Listener) Name() string { return "accesscode_provisioner" }

func (l *Listener) OnTransition(ctx context.Context, res *reservationdomain.Reservation, events []reservationdomain.TransitionEvent) error {
	if !shouldProvision(events) {
		return nil
	}

	result, err := l.svc.EnsureAccessCode(ctx, res.ID)
	if err != nil {
		return err
	}

	switch result.Status {
	case domain.StatusIssued:
		if _, err := l.notifier.Notify(ctx, res.ID, notificationdomain.TypeAccessCode); err != nil {
			return err
		}
	case domain.StatusNotEligible:
		l.log.Debug("access code not provisioned",
			zap.String("reservation_id", res.ID.String()),
			zap.String("reason", result.Reason),
		)
	}
	return nil
}

func shouldProvision(events []reservationdomain.TransitionEvent) bool {
	for _, event := range events {
		if event.Field != reservationdomain.FieldStatus {
			continue
		}
		switch event.To {
		case string(reservationdomain.StatusConfirmed), string(reservationdomain.StatusCheckedIn):
			return true
		}
	}
	return false
}
