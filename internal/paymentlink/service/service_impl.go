package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/config"
	"github.com/smallbiznis/hostelway/internal/paymentlink/domain"
	paymentclient "github.com/smallbiznis/hostelway/internal/providers/payment"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	"github.com/smallbiznis/hostelway/pkg/keyedmutex"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// referencePrefix is embedded in the gateway reference string; the
// webhook ingestor parses it back to a reservation id.
const referencePrefix = "RES"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Holder   *config.SyncConfigHolder
	ResRepo  reservationdomain.Repository
	Settings settingsdomain.Service
	Payment  paymentclient.Client
	Locks    *keyedmutex.KeyedMutex
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	holder   *config.SyncConfigHolder
	resRepo  reservationdomain.Repository
	settings settingsdomain.Service
	payment  paymentclient.Client
	locks    *keyedmutex.KeyedMutex
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("paymentlink"),
		clock:    p.Clock,
		holder:   p.Holder,
		resRepo:  p.ResRepo,
		settings: p.Settings,
		payment:  p.Payment,
		locks:    p.Locks,
	}
}

func (s *Service) EnsureLink(ctx context.Context, reservationID snowflake.ID) (domain.Result, error) {
	return s.ensure(ctx, reservationID, false)
}

func (s *Service) Regenerate(ctx context.Context, reservationID snowflake.ID) (domain.Result, error) {
	return s.ensure(ctx, reservationID, true)
}

func (s *Service) ensure(ctx context.Context, reservationID snowflake.ID, force bool) (domain.Result, error) {
	res, result, err := s.decide(ctx, reservationID, force)
	if err != nil {
		return domain.Result{}, err
	}
	if res == nil {
		return result, nil
	}

	creds, err := s.settings.Resolve(ctx, settingsdomain.ProviderPayment, res.OrgID, res.BranchID)
	if err != nil {
		if errors.Is(err, settingsdomain.ErrNotConfigured) {
			return domain.Result{Status: domain.StatusSkipped, Reason: domain.ReasonNotConfigured}, nil
		}
		return domain.Result{}, err
	}

	reference := fmt.Sprintf("%s-%d-%d", referencePrefix, int64(res.ID), s.clock.Now().Unix())
	link, err := s.payment.CreateLink(ctx, creds, paymentclient.CreateLinkRequest{
		Amount:           res.Amount,
		Currency:         res.Currency,
		Description:      fmt.Sprintf("Stay %s to %s", res.CheckIn.Format("2006-01-02"), res.CheckOut.Format("2006-01-02")),
		Reference:        reference,
		ExpiresInSeconds: int64(s.holder.Get().PaymentLinkTTL.Seconds()),
		Metadata: map[string]string{
			"organization_id": res.OrgID.String(),
			"reservation_id":  res.ID.String(),
		},
	})
	if err != nil {
		return domain.Result{}, err
	}

	stored, err := s.store(ctx, reservationID, link)
	if err != nil {
		return domain.Result{}, err
	}
	if !stored {
		// Lost the race to a concurrent caller; their link is the one
		// guests will receive.
		s.log.Info("discarding duplicate payment link",
			zap.String("reservation_id", reservationID.String()),
			zap.String("link_id", link.ID),
		)
		return domain.Result{Status: domain.StatusReused}, nil
	}

	s.log.Info("payment link created",
		zap.String("reservation_id", reservationID.String()),
		zap.String("link_id", link.ID),
	)
	return domain.Result{Status: domain.StatusCreated, URL: link.URL}, nil
}

// decide runs the skip checks under the reservation lock. A nil
// reservation means the result is final.
func (s *Service) decide(ctx context.Context, reservationID snowflake.ID, force bool) (*reservationdomain.Reservation, domain.Result, error) {
	release, err := s.locks.Lock(ctx, int64(reservationID))
	if err != nil {
		return nil, domain.Result{}, err
	}
	defer release()

	res, err := s.resRepo.FindByID(ctx, s.db, reservationID)
	if err != nil {
		return nil, domain.Result{}, err
	}
	if res == nil {
		return nil, domain.Result{}, reservationdomain.ErrNotFound
	}

	if res.Status == reservationdomain.StatusCancelled {
		return nil, domain.Result{Status: domain.StatusSkipped, Reason: domain.ReasonCancelled}, nil
	}
	if res.Amount <= 0 {
		return nil, domain.Result{Status: domain.StatusSkipped, Reason: domain.ReasonNoAmount}, nil
	}
	if res.PaymentStatus == reservationdomain.PaymentPaid || res.PaymentStatus == reservationdomain.PaymentRefunded {
		return nil, domain.Result{Status: domain.StatusSkipped, Reason: domain.ReasonAlreadyPaid}, nil
	}

	if res.PaymentLinkID != "" {
		if !force {
			return nil, domain.Result{Status: domain.StatusReused, URL: res.PaymentLinkURL}, nil
		}
		res.PaymentLinkID = ""
		res.PaymentLinkURL = ""
		res.UpdatedAt = s.clock.Now()
		if err := s.resRepo.Update(ctx, s.db, res); err != nil {
			return nil, domain.Result{}, err
		}
	}

	return res, domain.Result{}, nil
}

// store writes the link under the lock unless another caller already
// stored one.
func (s *Service) store(ctx context.Context, reservationID snowflake.ID, link paymentclient.Link) (bool, error) {
	release, err := s.locks.Lock(ctx, int64(reservationID))
	if err != nil {
		return false, err
	}
	defer release()

	res, err := s.resRepo.FindByID(ctx, s.db, reservationID)
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, reservationdomain.ErrNotFound
	}
	if res.PaymentLinkID != "" {
		return false, nil
	}

	res.PaymentLinkID = link.ID
	res.PaymentLinkURL = link.URL
	res.UpdatedAt = s.clock.Now()
	if err := s.resRepo.Update(ctx, s.db, res); err != nil {
		return false, err
	}
	return true, nil
}
