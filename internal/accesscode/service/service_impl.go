package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/accesscode/domain"
	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/config"
	lockclient "github.com/smallbiznis/hostelway/internal/providers/lock"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	"github.com/smallbiznis/hostelway/pkg/keyedmutex"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Holder   *config.SyncConfigHolder
	ResRepo  reservationdomain.Repository
	Settings settingsdomain.Service
	Lock     lockclient.Client
	Locks    *keyedmutex.KeyedMutex
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	holder   *config.SyncConfigHolder
	resRepo  reservationdomain.Repository
	settings settingsdomain.Service
	lock     lockclient.Client
	locks    *keyedmutex.KeyedMutex
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("accesscode"),
		clock:    p.Clock,
		holder:   p.Holder,
		resRepo:  p.ResRepo,
		settings: p.Settings,
		lock:     p.Lock,
		locks:    p.Locks,
	}
}

// plan is what the claim step decides under the reservation lock.
type plan struct {
	res       *reservationdomain.Reservation
	start     time.Time
	end       time.Time
	oldCodeID string
}

func (s *Service) EnsureAccessCode(ctx context.Context, reservationID snowflake.ID) (domain.Result, error) {
	skew := s.holder.Get().ClockSkew

	// Decision pass. Reuse and eligibility are settled here so that an
	// unchanged window never reaches the lock platform.
	claimed, result, err := s.claim(ctx, reservationID, skew)
	if err != nil {
		return domain.Result{}, err
	}
	if claimed == nil {
		return result, nil
	}

	creds, err := s.settings.Resolve(ctx, settingsdomain.ProviderLock, claimed.res.OrgID, claimed.res.BranchID)
	if err != nil {
		if errors.Is(err, settingsdomain.ErrNotConfigured) {
			return domain.Result{Status: domain.StatusNotEligible, Reason: domain.ReasonNotConfigured}, nil
		}
		return domain.Result{}, err
	}

	lockID, err := s.lockID(ctx, creds, claimed.res.OrgID)
	if err != nil {
		return domain.Result{}, err
	}
	if lockID == "" {
		return domain.Result{Status: domain.StatusNotEligible, Reason: domain.ReasonNoLock}, nil
	}

	// The stored code is cleared before any provider call so a crash
	// mid-rotation leaves the reservation codeless but retryable, never
	// holding a code that no longer matches its window.
	if claimed.oldCodeID != "" {
		if err := s.clearStoredCode(ctx, reservationID); err != nil {
			return domain.Result{}, err
		}
		if err := s.lock.RevokeCode(ctx, creds, claimed.res.OrgID, lockID, claimed.oldCodeID); err != nil {
			s.log.Warn("revoking stale access code failed",
				zap.String("reservation_id", reservationID.String()),
				zap.String("code_id", claimed.oldCodeID),
				zap.Error(err),
			)
		}
	}

	issued, err := s.lock.IssueTemporaryCode(ctx, creds, claimed.res.OrgID, lockID,
		claimed.start, claimed.end, claimed.res.GuestName)
	if err != nil {
		return domain.Result{}, err
	}

	if err := s.storeCode(ctx, reservationID, issued, claimed.start, claimed.end); err != nil {
		return domain.Result{}, err
	}

	s.log.Info("access code issued",
		zap.String("reservation_id", reservationID.String()),
		zap.Time("valid_from", claimed.start),
		zap.Time("valid_until", claimed.end),
	)
	return domain.Result{Status: domain.StatusIssued, Code: issued.Code}, nil
}

func (s *Service) claim(ctx context.Context, reservationID snowflake.ID, skew time.Duration) (*plan, domain.Result, error) {
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
		return nil, domain.Result{Status: domain.StatusNotEligible, Reason: domain.ReasonCancelled}, nil
	}

	start := res.CheckIn.Add(-skew)
	end := res.CheckOut.Add(skew)

	if res.AccessCode != "" && res.AccessCodeStart != nil && res.AccessCodeEnd != nil &&
		res.AccessCodeStart.Equal(start) && res.AccessCodeEnd.Equal(end) {
		return nil, domain.Result{Status: domain.StatusReused, Code: res.AccessCode}, nil
	}

	return &plan{res: res, start: start, end: end, oldCodeID: res.AccessCodeID}, domain.Result{}, nil
}

func (s *Service) clearStoredCode(ctx context.Context, reservationID snowflake.ID) error {
	return s.mutate(ctx, reservationID, func(res *reservationdomain.Reservation) {
		res.AccessCode = ""
		res.AccessCodeID = ""
		res.AccessCodeStart = nil
		res.AccessCodeEnd = nil
	})
}

func (s *Service) storeCode(ctx context.Context, reservationID snowflake.ID, issued lockclient.IssuedCode, start, end time.Time) error {
	return s.mutate(ctx, reservationID, func(res *reservationdomain.Reservation) {
		res.AccessCode = issued.Code
		res.AccessCodeID = issued.CodeID
		res.AccessCodeStart = &start
		res.AccessCodeEnd = &end
	})
}

func (s *Service) mutate(ctx context.Context, reservationID snowflake.ID, apply func(*reservationdomain.Reservation)) error {
	release, err := s.locks.Lock(ctx, int64(reservationID))
	if err != nil {
		return err
	}
	defer release()

	res, err := s.resRepo.FindByID(ctx, s.db, reservationID)
	if err != nil {
		return err
	}
	if res == nil {
		return reservationdomain.ErrNotFound
	}
	apply(res)
	res.UpdatedAt = s.clock.Now()
	return s.resRepo.Update(ctx, s.db, res)
}

// lockID picks the configured door, falling back to the first lock the
// platform reports for the account.
func (s *Service) lockID(ctx context.Context, creds settingsdomain.Credentials, orgID snowflake.ID) (string, error) {
	if id := creds.Get("lock_id"); id != "" {
		return id, nil
	}
	locks, err := s.lock.ListLocks(ctx, creds, orgID)
	if err != nil {
		return "", err
	}
	if len(locks) == 0 {
		return "", nil
	}
	return locks[0].ID, nil
}
