package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/config"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	"github.com/smallbiznis/hostelway/pkg/db/pagination"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tenantsStub struct {
	tenants    []settingsdomain.Tenant
	resolveErr error
}

func (s *tenantsStub) Resolve(ctx context.Context, provider settingsdomain.Provider, orgID snowflake.ID, branchID *snowflake.ID) (settingsdomain.Credentials, error) {
	if s.resolveErr != nil {
		return settingsdomain.Credentials{}, s.resolveErr
	}
	return settingsdomain.Credentials{
		Provider: provider,
		Values:   map[string]string{"base_url": "http://pms", "api_key": "k"},
	}, nil
}

func (s *tenantsStub) Upsert(ctx context.Context, req settingsdomain.UpsertRequest) error {
	return nil
}

func (s *tenantsStub) ListTenants(ctx context.Context, provider settingsdomain.Provider) ([]settingsdomain.Tenant, error) {
	return s.tenants, nil
}

type pmsStub struct {
	mu        sync.Mutex
	from, to  time.Time
	snapshots []reservationdomain.Snapshot
	fetches   int
}

func (p *pmsStub) FetchReservations(ctx context.Context, creds settingsdomain.Credentials, from, to time.Time) ([]reservationdomain.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	p.from, p.to = from, to
	return p.snapshots, nil
}

func (p *pmsStub) FetchByID(ctx context.Context, creds settingsdomain.Credentials, externalID string) (reservationdomain.Snapshot, error) {
	return reservationdomain.Snapshot{}, nil
}

type reconcileRecorder struct {
	mu    sync.Mutex
	refs  []reservationdomain.Ref
	snaps []reservationdomain.Snapshot
}

func (r *reconcileRecorder) Reconcile(ctx context.Context, ref reservationdomain.Ref, snap reservationdomain.Snapshot) (*reservationdomain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs, ref)
	r.snaps = append(r.snaps, snap)
	return &reservationdomain.Reservation{}, nil
}

func (r *reconcileRecorder) Get(ctx context.Context, orgID, id snowflake.ID) (*reservationdomain.Reservation, error) {
	return nil, nil
}

func (r *reconcileRecorder) List(ctx context.Context, orgID snowflake.ID, p pagination.Pagination) ([]*reservationdomain.Reservation, *pagination.PageInfo, error) {
	return nil, nil, nil
}

func TestRunOnceSweepsRollingWindow(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	orgID := node.Generate()

	pmsClient := &pmsStub{snapshots: []reservationdomain.Snapshot{
		{ExternalID: "BK-1", Confirmed: true},
		{ExternalID: "BK-2", CheckedIn: true, Confirmed: true},
	}}
	reconciler := &reconcileRecorder{}

	worker := NewWorker(Params{
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)),
		Holder: config.NewStaticSyncConfigHolder(config.SyncConfig{
			LookaheadDays: 14,
			LookbackDays:  1,
		}),
		Settings: &tenantsStub{tenants: []settingsdomain.Tenant{{OrgID: orgID}}},
		PMS:      pmsClient,
		ResSvc:   reconciler,
	})

	require.NoError(t, worker.RunOnce(context.Background()))

	require.Equal(t, 1, pmsClient.fetches)
	require.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), pmsClient.from)
	require.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), pmsClient.to)

	require.Len(t, reconciler.refs, 2)
	require.Equal(t, orgID, reconciler.refs[0].OrgID)
	require.Equal(t, "BK-1", reconciler.refs[0].ExternalID)
	for _, snap := range reconciler.snaps {
		require.Equal(t, reservationdomain.SourcePoll, snap.Source)
	}
}

func TestRunOnceSkipsUnconfiguredTenant(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	pmsClient := &pmsStub{}
	worker := NewWorker(Params{
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)),
		Holder: config.NewStaticSyncConfigHolder(config.SyncConfig{}),
		Settings: &tenantsStub{
			tenants:    []settingsdomain.Tenant{{OrgID: node.Generate()}},
			resolveErr: settingsdomain.ErrNotConfigured,
		},
		PMS:    pmsClient,
		ResSvc: &reconcileRecorder{},
	})

	require.NoError(t, worker.RunOnce(context.Background()))
	require.Zero(t, pmsClient.fetches)
}

func TestRunOnceNoTenants(t *testing.T) {
	pmsClient := &pmsStub{}
	worker := NewWorker(Params{
		Log:      zap.NewNop(),
		Clock:    clock.SystemClock{},
		Holder:   config.NewStaticSyncConfigHolder(config.SyncConfig{}),
		Settings: &tenantsStub{},
		PMS:      pmsClient,
		ResSvc:   &reconcileRecorder{},
	})

	require.NoError(t, worker.RunOnce(context.Background()))
	require.Zero(t, pmsClient.fetches)
}
