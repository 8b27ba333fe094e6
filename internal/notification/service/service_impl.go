package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/config"
	"github.com/smallbiznis/hostelway/internal/notification/domain"
	"github.com/smallbiznis/hostelway/internal/notification/repository"
	"github.com/smallbiznis/hostelway/internal/observability/metrics"
	"github.com/smallbiznis/hostelway/internal/providers/messaging"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	"github.com/smallbiznis/hostelway/pkg/keyedmutex"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const stayDateFormat = "Mon, 02 Jan 2006"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	Repo      repository.Repository
	ResRepo   reservationdomain.Repository
	Settings  settingsdomain.Service
	Messaging messaging.Client
	Locks     *keyedmutex.KeyedMutex
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	opTimeout time.Duration
	repo      repository.Repository
	resRepo   reservationdomain.Repository
	settings  settingsdomain.Service
	messaging messaging.Client
	locks     *keyedmutex.KeyedMutex
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	opTimeout := p.Cfg.OperationTimeout
	if opTimeout <= 0 {
		opTimeout = 30 * time.Second
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("notification"),
		genID:     p.GenID,
		clock:     p.Clock,
		opTimeout: opTimeout,
		repo:      p.Repo,
		resRepo:   p.ResRepo,
		settings:  p.Settings,
		messaging: p.Messaging,
		locks:     p.Locks,
		metrics:   p.Metrics,
	}
}

// Notify claims a pending log row under the reservation lock, sends
// outside it, then finalizes the row under the lock again. The pending
// row is what stops a concurrent caller from sending the same type
// twice.
func (s *Service) Notify(ctx context.Context, reservationID snowflake.ID, t domain.Type) (domain.Outcome, error) {
	if _, ok := domain.ParseType(string(t)); !ok {
		return domain.Outcome{}, domain.ErrUnknownType
	}

	claim, res, outcome, err := s.claim(ctx, reservationID, t)
	if err != nil {
		return domain.Outcome{}, err
	}
	if claim == nil {
		s.record(ctx, t, outcome)
		return outcome, nil
	}

	creds, err := s.settings.Resolve(ctx, settingsdomain.ProviderMessaging, res.OrgID, res.BranchID)
	if err != nil {
		if errors.Is(err, settingsdomain.ErrNotConfigured) {
			outcome := domain.Skipped(domain.ReasonNotConfigured)
			if finErr := s.finalize(ctx, reservationID, claim.ID, domain.StatusSkipped, "", domain.ReasonNotConfigured); finErr != nil {
				return domain.Outcome{}, finErr
			}
			s.record(ctx, t, outcome)
			return outcome, nil
		}
		return domain.Outcome{}, err
	}

	channel, sendErr := s.deliver(ctx, creds, res, t)
	if sendErr != nil {
		if finErr := s.finalize(ctx, reservationID, claim.ID, domain.StatusFailed, channel, sendErr.Error()); finErr != nil {
			return domain.Outcome{}, finErr
		}
		outcome := domain.Failed(sendErr.Error())
		s.record(ctx, t, outcome)
		return outcome, sendErr
	}

	if err := s.finalize(ctx, reservationID, claim.ID, domain.StatusSent, channel, ""); err != nil {
		return domain.Outcome{}, err
	}
	outcome = domain.Sent(channel)
	s.record(ctx, t, outcome)
	s.log.Info("notification sent",
		zap.String("reservation_id", reservationID.String()),
		zap.String("type", string(t)),
		zap.String("channel", string(channel)),
	)
	return outcome, nil
}

// claim runs the decision step inside the critical section. A nil claim
// means the outcome is already settled (skip).
func (s *Service) claim(ctx context.Context, reservationID snowflake.ID, t domain.Type) (*domain.LogEntry, *reservationdomain.Reservation, domain.Outcome, error) {
	release, err := s.locks.Lock(ctx, int64(reservationID))
	if err != nil {
		return nil, nil, domain.Outcome{}, err
	}
	defer release()

	res, err := s.resRepo.FindByID(ctx, s.db, reservationID)
	if err != nil {
		return nil, nil, domain.Outcome{}, err
	}
	if res == nil {
		return nil, nil, domain.Outcome{}, reservationdomain.ErrNotFound
	}

	existing, err := s.repo.FindActive(ctx, s.db, reservationID, t)
	if err != nil {
		return nil, nil, domain.Outcome{}, err
	}
	if existing != nil {
		if existing.Status != domain.StatusPending || s.clock.Now().Sub(existing.UpdatedAt) <= s.opTimeout {
			return nil, nil, domain.Skipped(domain.ReasonAlreadySent), nil
		}
		// A pending row older than one operation timeout is a claim whose
		// owner crashed before finalize. Close it as failed so the pair
		// does not stay blocked.
		s.log.Warn("reclaiming abandoned notification claim",
			zap.String("reservation_id", reservationID.String()),
			zap.String("type", string(t)),
			zap.String("entry_id", existing.ID.String()),
		)
		if err := s.repo.Finalize(ctx, s.db, existing.ID, domain.StatusFailed, existing.Channel, domain.ReasonClaimAbandoned, s.clock.Now()); err != nil {
			return nil, nil, domain.Outcome{}, err
		}
	}

	now := s.clock.Now()
	if res.GuestPhone == "" {
		entry := &domain.LogEntry{
			ID:            s.genID.Generate(),
			ReservationID: reservationID,
			Type:          t,
			Status:        domain.StatusSkipped,
			Detail:        domain.ReasonNoContact,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Insert(ctx, s.db, entry); err != nil {
			return nil, nil, domain.Outcome{}, err
		}
		return nil, nil, domain.Skipped(domain.ReasonNoContact), nil
	}

	entry := &domain.LogEntry{
		ID:            s.genID.Generate(),
		ReservationID: reservationID,
		Type:          t,
		Status:        domain.StatusPending,
		Recipient:     res.GuestPhone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		return nil, nil, domain.Outcome{}, err
	}
	return entry, res, domain.Outcome{}, nil
}

func (s *Service) finalize(ctx context.Context, reservationID, entryID snowflake.ID, status domain.LogStatus, channel domain.Channel, detail string) error {
	release, err := s.locks.Lock(ctx, int64(reservationID))
	if err != nil {
		return err
	}
	defer release()
	return s.repo.Finalize(ctx, s.db, entryID, status, channel, detail, s.clock.Now())
}

// deliver tries the session channel first and falls back to the type's
// template when the conversation window is closed.
func (s *Service) deliver(ctx context.Context, creds settingsdomain.Credentials, res *reservationdomain.Reservation, t domain.Type) (domain.Channel, error) {
	err := s.messaging.SendSession(ctx, creds, res.GuestPhone, sessionBody(t, res))
	if err == nil {
		return domain.ChannelSession, nil
	}
	if !errors.Is(err, messaging.ErrSessionClosed) {
		return domain.ChannelSession, err
	}

	s.log.Info("session window closed, falling back to template",
		zap.String("reservation_id", res.ID.String()),
		zap.String("type", string(t)),
	)
	if err := s.messaging.SendTemplate(ctx, creds, res.GuestPhone, string(t), templateParams(t, res)); err != nil {
		return domain.ChannelTemplate, err
	}
	return domain.ChannelTemplate, nil
}

func (s *Service) record(ctx context.Context, t domain.Type, outcome domain.Outcome) {
	s.metrics.RecordNotification(ctx, string(t), string(outcome.Status))
}

func sessionBody(t domain.Type, res *reservationdomain.Reservation) string {
	checkIn := res.CheckIn.Format(stayDateFormat)
	checkOut := res.CheckOut.Format(stayDateFormat)

	switch t {
	case domain.TypeBookingConfirmation:
		return fmt.Sprintf("Hi %s, your booking is confirmed: %s to %s. See you soon!",
			res.GuestName, checkIn, checkOut)
	case domain.TypePaymentLink:
		return fmt.Sprintf("Hi %s, complete your booking payment here: %s",
			res.GuestName, res.PaymentLinkURL)
	case domain.TypeCheckinInvitation:
		return fmt.Sprintf("Hi %s, you can check in from %s. Reply here if you need anything.",
			res.GuestName, checkIn)
	case domain.TypeAccessCode:
		return fmt.Sprintf("Hi %s, your door code is %s, valid %s to %s.",
			res.GuestName, res.AccessCode, checkIn, checkOut)
	default:
		return ""
	}
}

func templateParams(t domain.Type, res *reservationdomain.Reservation) []string {
	checkIn := res.CheckIn.Format(stayDateFormat)
	checkOut := res.CheckOut.Format(stayDateFormat)

	switch t {
	case domain.TypeBookingConfirmation:
		return []string{res.GuestName, checkIn, checkOut}
	case domain.TypePaymentLink:
		return []string{res.GuestName, res.PaymentLinkURL}
	case domain.TypeCheckinInvitation:
		return []string{res.GuestName, checkIn}
	case domain.TypeAccessCode:
		return []string{res.GuestName, res.AccessCode, checkIn, checkOut}
	default:
		return nil
	}
}
