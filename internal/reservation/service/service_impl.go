package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/config"
	obsmetrics "github.com/smallbiznis/hostelway/internal/observability/metrics"
	"github.com/smallbiznis/hostelway/internal/reservation/domain"
	"github.com/smallbiznis/hostelway/internal/reservation/statemachine"
	pkgdb "github.com/smallbiznis/hostelway/pkg/db"
	"github.com/smallbiznis/hostelway/pkg/db/pagination"
	"github.com/smallbiznis/hostelway/pkg/keyedmutex"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       domain.Repository
	Locks      *keyedmutex.KeyedMutex
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
	Listeners  []domain.TransitionListener `group:"transition_listeners"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	opTimeout  time.Duration
	repo       domain.Repository
	locks      *keyedmutex.KeyedMutex
	obsMetrics *obsmetrics.Metrics
	listeners  []domain.TransitionListener
}

func NewService(p Params) domain.Service {
	opTimeout := p.Cfg.OperationTimeout
	if opTimeout <= 0 {
		opTimeout = 30 * time.Second
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("reservation.sync"),
		genID:      p.GenID,
		clock:      p.Clock,
		opTimeout:  opTimeout,
		repo:       p.Repo,
		locks:      p.Locks,
		obsMetrics: p.ObsMetrics,
		listeners:  p.Listeners,
	}
}

// Reconcile applies one snapshot to canonical state. The read-decide-write
// step runs under the per-reservation lock; listener fan-out happens after
// the lock is released so provider I/O never extends the critical section.
func (s *Service) Reconcile(ctx context.Context, ref domain.Ref, snap domain.Snapshot) (*domain.Reservation, error) {
	if ref.ID == 0 && (ref.OrgID == 0 || snapExternalID(ref, snap) == "") {
		return nil, domain.ErrInvalidRef
	}
	if !snap.CheckIn.IsZero() && !snap.CheckOut.IsZero() && !snap.CheckOut.After(snap.CheckIn) {
		return nil, domain.ErrInvalidStay
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	id := ref.ID
	if id == 0 {
		resolved, err := s.resolveOrCreate(ctx, ref, snap)
		if err != nil {
			return nil, err
		}
		id = resolved
	}

	release, err := s.locks.Lock(ctx, int64(id))
	if err != nil {
		return nil, err
	}

	res, events, err := s.applyLocked(ctx, id, snap)
	release()
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordReconcile(ctx, string(snap.Source), len(events))

	if len(events) > 0 {
		s.fanOut(ctx, res, events)
	}
	return res, nil
}

func (s *Service) Get(ctx context.Context, orgID, id snowflake.ID) (*domain.Reservation, error) {
	res, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if res == nil || (orgID != 0 && res.OrgID != orgID) {
		return nil, domain.ErrNotFound
	}
	return res, nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID, p pagination.Pagination) ([]*domain.Reservation, *pagination.PageInfo, error) {
	var afterID snowflake.ID
	if p.PageToken != "" {
		cursor, err := pagination.DecodeCursor(p.PageToken)
		if err != nil {
			return nil, nil, err
		}
		parsed, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, nil, err
		}
		afterID = parsed
	}

	limit := p.Limit()
	items, err := s.repo.List(ctx, s.db, orgID, afterID, limit+1)
	if err != nil {
		return nil, nil, err
	}

	items, info := pagination.BuildPageInfo(items, limit, func(r *domain.Reservation) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: r.ID.String()})
		return token
	})
	return items, info, nil
}

// resolveOrCreate maps (org, external id) to a reservation id, creating the
// reservation on first sight of an unknown PMS booking. Concurrent first
// sights race on the unique (org_id, external_id) index; the loser re-reads.
func (s *Service) resolveOrCreate(ctx context.Context, ref domain.Ref, snap domain.Snapshot) (snowflake.ID, error) {
	externalID := snapExternalID(ref, snap)

	existing, err := s.repo.FindByExternalID(ctx, s.db, ref.OrgID, externalID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	if snap.CheckIn.IsZero() || snap.CheckOut.IsZero() {
		return 0, domain.ErrInvalidSnapshot
	}

	now := s.clock.Now()
	res := &domain.Reservation{
		ID:            s.genID.Generate(),
		OrgID:         ref.OrgID,
		BranchID:      ref.BranchID,
		ExternalID:    externalID,
		GuestName:     snap.GuestName,
		GuestPhone:    snap.GuestPhone,
		GuestEmail:    snap.GuestEmail,
		CheckIn:       snap.CheckIn,
		CheckOut:      snap.CheckOut,
		Status:        domain.StatusPending,
		PaymentStatus: domain.PaymentPending,
		Amount:        snap.AmountDue,
		Currency:      snap.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, res); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			existing, findErr := s.repo.FindByExternalID(ctx, s.db, ref.OrgID, externalID)
			if findErr != nil {
				return 0, findErr
			}
			if existing != nil {
				return existing.ID, nil
			}
		}
		return 0, err
	}

	s.log.Info("reservation created from snapshot",
		zap.String("reservation_id", res.ID.String()),
		zap.String("external_id", externalID),
		zap.String("source", string(snap.Source)),
	)
	return res.ID, nil
}

func (s *Service) applyLocked(ctx context.Context, id snowflake.ID, snap domain.Snapshot) (*domain.Reservation, []domain.TransitionEvent, error) {
	res, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	if res == nil {
		return nil, nil, domain.ErrNotFound
	}

	changes := map[string]any{}
	if res.Status != domain.StatusCancelled {
		s.mergeDetails(res, snap, changes)
	}

	decision := statemachine.Apply(res, snap)
	for _, ev := range decision.Events {
		changes[ev.Field] = map[string]string{"from": ev.From, "to": ev.To}
	}
	res.Status = decision.Status
	res.PaymentStatus = decision.PaymentStatus

	now := s.clock.Now()
	if len(changes) > 0 {
		res.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, res); err != nil {
			return nil, nil, err
		}
	}

	// History is written even for a no-op so the audit trail proves the
	// snapshot was seen and judged stale.
	if err := s.appendHistory(ctx, res.ID, snap, changes, now); err != nil {
		return nil, nil, err
	}

	if len(decision.Events) == 0 {
		s.log.Debug("snapshot produced no transition",
			zap.String("reservation_id", res.ID.String()),
			zap.String("source", string(snap.Source)),
		)
	}
	return res, decision.Events, nil
}

func (s *Service) mergeDetails(res *domain.Reservation, snap domain.Snapshot, changes map[string]any) {
	if snap.GuestName != "" && snap.GuestName != res.GuestName {
		changes["guest_name"] = map[string]string{"from": res.GuestName, "to": snap.GuestName}
		res.GuestName = snap.GuestName
	}
	if snap.GuestPhone != "" && snap.GuestPhone != res.GuestPhone {
		changes["guest_phone"] = map[string]string{"from": res.GuestPhone, "to": snap.GuestPhone}
		res.GuestPhone = snap.GuestPhone
	}
	if snap.GuestEmail != "" && snap.GuestEmail != res.GuestEmail {
		changes["guest_email"] = map[string]string{"from": res.GuestEmail, "to": snap.GuestEmail}
		res.GuestEmail = snap.GuestEmail
	}
	if !snap.CheckIn.IsZero() && !snap.CheckOut.IsZero() && snap.CheckOut.After(snap.CheckIn) {
		if !snap.CheckIn.Equal(res.CheckIn) {
			changes["check_in"] = map[string]string{"from": res.CheckIn.Format(time.RFC3339), "to": snap.CheckIn.Format(time.RFC3339)}
			res.CheckIn = snap.CheckIn
		}
		if !snap.CheckOut.Equal(res.CheckOut) {
			changes["check_out"] = map[string]string{"from": res.CheckOut.Format(time.RFC3339), "to": snap.CheckOut.Format(time.RFC3339)}
			res.CheckOut = snap.CheckOut
		}
	}
	if snap.AmountDue > 0 && snap.AmountDue != res.Amount {
		changes["amount"] = map[string]int64{"from": res.Amount, "to": snap.AmountDue}
		res.Amount = snap.AmountDue
	}
	if snap.Currency != "" && snap.Currency != res.Currency {
		changes["currency"] = map[string]string{"from": res.Currency, "to": snap.Currency}
		res.Currency = snap.Currency
	}
	if snap.ExternalID != "" && res.ExternalID == "" {
		changes["external_id"] = map[string]string{"from": "", "to": snap.ExternalID}
		res.ExternalID = snap.ExternalID
	}
}

func (s *Service) appendHistory(ctx context.Context, reservationID snowflake.ID, snap domain.Snapshot, changes map[string]any, now time.Time) error {
	rawSnap, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	rawChanges, err := json.Marshal(changes)
	if err != nil {
		return err
	}
	return s.repo.AppendHistory(ctx, s.db, &domain.SyncHistoryEntry{
		ID:            s.genID.Generate(),
		ReservationID: reservationID,
		Source:        snap.Source,
		Snapshot:      datatypes.JSON(rawSnap),
		Changes:       datatypes.JSON(rawChanges),
		CreatedAt:     now,
	})
}

func (s *Service) fanOut(ctx context.Context, res *domain.Reservation, events []domain.TransitionEvent) {
	for _, listener := range s.listeners {
		if err := listener.OnTransition(ctx, res, events); err != nil {
			s.log.Warn("transition listener failed",
				zap.String("listener", listener.Name()),
				zap.String("reservation_id", res.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func snapExternalID(ref domain.Ref, snap domain.Snapshot) string {
	if ref.ExternalID != "" {
		return ref.ExternalID
	}
	return snap.ExternalID
}
