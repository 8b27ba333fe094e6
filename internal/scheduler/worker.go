package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/config"
	"github.com/smallbiznis/hostelway/internal/providers/pms"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// tenantTimeout bounds one org's fetch-and-reconcile pass so a slow PMS
// cannot stall the whole poll cycle.
const tenantTimeout = 2 * time.Minute

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Holder   *config.SyncConfigHolder
	Settings settingsdomain.Service
	PMS      pms.Client
	ResSvc   reservationdomain.Service
}

// Worker drives the PMS poll loop: every interval it sweeps a rolling
// date window for every org with a PMS configured and reconciles each
// booking it finds.
type Worker struct {
	log      *zap.Logger
	clock    clock.Clock
	holder   *config.SyncConfigHolder
	settings settingsdomain.Service
	pms      pms.Client
	resSvc   reservationdomain.Service
}

func NewWorker(p Params) *Worker {
	return &Worker{
		log:      p.Log.Named("scheduler"),
		clock:    p.Clock,
		holder:   p.Holder,
		settings: p.Settings,
		pms:      p.PMS,
		resSvc:   p.ResSvc,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	for {
		if err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Warn("poll cycle failed", zap.Error(err))
		}

		// The interval is re-read each cycle so a hot-reloaded config
		// takes effect without a restart.
		timer := time.NewTimer(w.holder.Get().PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (w *Worker) RunOnce(ctx context.Context) error {
	tenants, err := w.settings.ListTenants(ctx, settingsdomain.ProviderPMS)
	if err != nil {
		return err
	}
	if len(tenants) == 0 {
		return nil
	}

	cfg := w.holder.Get()
	today := w.clock.Now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -cfg.LookbackDays)
	to := today.AddDate(0, 0, cfg.LookaheadDays)

	for _, tenant := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.syncTenant(ctx, tenant, from, to); err != nil {
			w.log.Warn("tenant sync failed",
				zap.String("org_id", tenant.OrgID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (w *Worker) syncTenant(parentCtx context.Context, tenant settingsdomain.Tenant, from, to time.Time) error {
	ctx, cancel := context.WithTimeout(parentCtx, tenantTimeout)
	defer cancel()

	creds, err := w.settings.Resolve(ctx, settingsdomain.ProviderPMS, tenant.OrgID, tenant.BranchID)
	if err != nil {
		if errors.Is(err, settingsdomain.ErrNotConfigured) {
			return nil
		}
		return err
	}

	snapshots, err := w.pms.FetchReservations(ctx, creds, from, to)
	if err != nil {
		return err
	}

	reconciled, failed := 0, 0
	for _, snap := range snapshots {
		snap.Source = reservationdomain.SourcePoll
		ref := reservationdomain.Ref{
			OrgID:      tenant.OrgID,
			BranchID:   tenant.BranchID,
			ExternalID: snap.ExternalID,
		}
		if _, err := w.resSvc.Reconcile(ctx, ref, snap); err != nil {
			failed++
			w.log.Warn("poll reconcile failed",
				zap.String("org_id", tenant.OrgID.String()),
				zap.String("external_id", snap.ExternalID),
				zap.Error(err),
			)
			continue
		}
		reconciled++
	}

	w.log.Info("tenant sync complete",
		zap.String("org_id", tenant.OrgID.String()),
		zap.Int("reconciled", reconciled),
		zap.Int("failed", failed),
	)
	return nil
}
