package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/hostelway/internal/accesscode/domain"
	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/config"
	lockclient "github.com/smallbiznis/hostelway/internal/providers/lock"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	reservationrepo "github.com/smallbiznis/hostelway/internal/reservation/repository"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	"github.com/smallbiznis/hostelway/pkg/keyedmutex"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type lockSettingsStub struct {
	err error
}

func (s *lockSettingsStub) Resolve(ctx context.Context, provider settingsdomain.Provider, orgID snowflake.ID, branchID *snowflake.ID) (settingsdomain.Credentials, error) {
	if s.err != nil {
		return settingsdomain.Credentials{}, s.err
	}
	return settingsdomain.Credentials{
		Provider: provider,
		Values: map[string]string{
			"base_url": "http://locks", "client_id": "c", "client_secret": "s",
			"username": "u", "password": "p", "lock_id": "front-door",
		},
	}, nil
}

func (s *lockSettingsStub) Upsert(ctx context.Context, req settingsdomain.UpsertRequest) error {
	return nil
}

func (s *lockSettingsStub) ListTenants(ctx context.Context, provider settingsdomain.Provider) ([]settingsdomain.Tenant, error) {
	return nil, nil
}

type lockStub struct {
	mu          sync.Mutex
	issueCalls  int
	revokeCalls int
	revokedIDs  []string
	nextCode    lockclient.IssuedCode
	issueErr    error
}

func (l *lockStub) IssueTemporaryCode(ctx context.Context, creds settingsdomain.Credentials, orgID snowflake.ID, lockID string, start, end time.Time, label string) (lockclient.IssuedCode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issueCalls++
	if l.issueErr != nil {
		return lockclient.IssuedCode{}, l.issueErr
	}
	return l.nextCode, nil
}

func (l *lockStub) RevokeCode(ctx context.Context, creds settingsdomain.Credentials, orgID snowflake.ID, lockID, codeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revokeCalls++
	l.revokedIDs = append(l.revokedIDs, codeID)
	return nil
}

func (l *lockStub) ListLocks(ctx context.Context, creds settingsdomain.Credentials, orgID snowflake.ID) ([]lockclient.Lock, error) {
	return []lockclient.Lock{{ID: "front-door", Name: "Front Door"}}, nil
}

func (l *lockStub) calls() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.issueCalls, l.revokeCalls
}

func setupAccessCodeService(t *testing.T, lock lockclient.Client, settings settingsdomain.Service) (domain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.AutoMigrate(&reservationdomain.Reservation{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clock.SystemClock{},
		Holder:   config.NewStaticSyncConfigHolder(config.SyncConfig{ClockSkew: 15 * time.Minute}),
		ResRepo:  reservationrepo.Provide(),
		Settings: settings,
		Lock:     lock,
		Locks:    keyedmutex.New(),
	})
	return svc, db, node
}

func seedConfirmedReservation(t *testing.T, db *gorm.DB, node *snowflake.Node) *reservationdomain.Reservation {
	t.Helper()
	res := &reservationdomain.Reservation{
		ID:            node.Generate(),
		OrgID:         node.Generate(),
		ExternalID:    "BK-7",
		GuestName:     "Ana",
		GuestPhone:    "+34600000001",
		CheckIn:       time.Date(2026, 9, 2, 14, 0, 0, 0, time.UTC),
		CheckOut:      time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC),
		Status:        reservationdomain.StatusConfirmed,
		PaymentStatus: reservationdomain.PaymentPaid,
		Amount:        12000,
		Currency:      "EUR",
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, db.Create(res).Error)
	return res
}

func TestEnsureAccessCodeIssuesAndStores(t *testing.T) {
	lock := &lockStub{nextCode: lockclient.IssuedCode{CodeID: "c-1", Code: "482913"}}
	svc, db, node := setupAccessCodeService(t, lock, &lockSettingsStub{})
	res := seedConfirmedReservation(t, db, node)

	result, err := svc.EnsureAccessCode(context.Background(), res.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusIssued, result.Status)
	require.Equal(t, "482913", result.Code)

	var stored reservationdomain.Reservation
	require.NoError(t, db.First(&stored, "id = ?", res.ID).Error)
	require.Equal(t, "482913", stored.AccessCode)
	require.Equal(t, "c-1", stored.AccessCodeID)
	require.NotNil(t, stored.AccessCodeStart)
	require.NotNil(t, stored.AccessCodeEnd)
	require.True(t, stored.AccessCodeStart.Equal(res.CheckIn.Add(-15*time.Minute)))
	require.True(t, stored.AccessCodeEnd.Equal(res.CheckOut.Add(15*time.Minute)))
}

func TestEnsureAccessCodeReusesUnchangedWindow(t *testing.T) {
	lock := &lockStub{nextCode: lockclient.IssuedCode{CodeID: "c-1", Code: "482913"}}
	svc, db, node := setupAccessCodeService(t, lock, &lockSettingsStub{})
	res := seedConfirmedReservation(t, db, node)
	ctx := context.Background()

	first, err := svc.EnsureAccessCode(ctx, res.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusIssued, first.Status)

	second, err := svc.EnsureAccessCode(ctx, res.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusReused, second.Status)
	require.Equal(t, "482913", second.Code)

	issues, revokes := lock.calls()
	require.Equal(t, 1, issues)
	require.Zero(t, revokes)
}

func TestEnsureAccessCodeRotatesOnWindowMove(t *testing.T) {
	lock := &lockStub{nextCode: lockclient.IssuedCode{CodeID: "c-1", Code: "482913"}}
	svc, db, node := setupAccessCodeService(t, lock, &lockSettingsStub{})
	res := seedConfirmedReservation(t, db, node)
	ctx := context.Background()

	_, err := svc.EnsureAccessCode(ctx, res.ID)
	require.NoError(t, err)

	// Guest extends the stay by one night.
	require.NoError(t, db.Model(&reservationdomain.Reservation{}).
		Where("id = ?", res.ID).
		Update("check_out", res.CheckOut.Add(24*time.Hour)).Error)

	lock.mu.Lock()
	lock.nextCode = lockclient.IssuedCode{CodeID: "c-2", Code: "771204"}
	lock.mu.Unlock()

	result, err := svc.EnsureAccessCode(ctx, res.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusIssued, result.Status)
	require.Equal(t, "771204", result.Code)

	issues, revokes := lock.calls()
	require.Equal(t, 2, issues)
	require.Equal(t, 1, revokes)
	require.Equal(t, []string{"c-1"}, lock.revokedIDs)

	var stored reservationdomain.Reservation
	require.NoError(t, db.First(&stored, "id = ?", res.ID).Error)
	require.Equal(t, "c-2", stored.AccessCodeID)
}

func TestEnsureAccessCodeIssueFailureLeavesRetryable(t *testing.T) {
	lock := &lockStub{nextCode: lockclient.IssuedCode{CodeID: "c-1", Code: "482913"}}
	svc, db, node := setupAccessCodeService(t, lock, &lockSettingsStub{})
	res := seedConfirmedReservation(t, db, node)
	ctx := context.Background()

	_, err := svc.EnsureAccessCode(ctx, res.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&reservationdomain.Reservation{}).
		Where("id = ?", res.ID).
		Update("check_out", res.CheckOut.Add(24*time.Hour)).Error)

	lock.mu.Lock()
	lock.issueErr = fmt.Errorf("lock platform down")
	lock.mu.Unlock()

	_, err = svc.EnsureAccessCode(ctx, res.ID)
	require.Error(t, err)

	// Old code was cleared before the failed issue; the next call can
	// mint a fresh one.
	var stored reservationdomain.Reservation
	require.NoError(t, db.First(&stored, "id = ?", res.ID).Error)
	require.Empty(t, stored.AccessCode)
	require.Empty(t, stored.AccessCodeID)

	lock.mu.Lock()
	lock.issueErr = nil
	lock.nextCode = lockclient.IssuedCode{CodeID: "c-3", Code: "550011"}
	lock.mu.Unlock()

	retry, err := svc.EnsureAccessCode(ctx, res.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusIssued, retry.Status)
	require.Equal(t, "550011", retry.Code)
}

func TestEnsureAccessCodeCancelledNotEligible(t *testing.T) {
	lock := &lockStub{}
	svc, db, node := setupAccessCodeService(t, lock, &lockSettingsStub{})
	res := seedConfirmedReservation(t, db, node)

	require.NoError(t, db.Model(&reservationdomain.Reservation{}).
		Where("id = ?", res.ID).
		Update("status", reservationdomain.StatusCancelled).Error)

	result, err := svc.EnsureAccessCode(context.Background(), res.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusNotEligible, result.Status)
	require.Equal(t, domain.ReasonCancelled, result.Reason)

	issues, _ := lock.calls()
	require.Zero(t, issues)
}

func TestEnsureAccessCodeLockNotConfigured(t *testing.T) {
	lock := &lockStub{}
	svc, db, node := setupAccessCodeService(t, lock, &lockSettingsStub{err: settingsdomain.ErrNotConfigured})
	res := seedConfirmedReservation(t, db, node)

	result, err := svc.EnsureAccessCode(context.Background(), res.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusNotEligible, result.Status)
	require.Equal(t, domain.ReasonNotConfigured, result.Reason)
}
