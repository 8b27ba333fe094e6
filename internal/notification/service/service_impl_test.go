package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/notification/domain"
	"github.com/smallbiznis/hostelway/internal/notification/repository"
	"github.com/smallbiznis/hostelway/internal/providers/messaging"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	reservationrepo "github.com/smallbiznis/hostelway/internal/reservation/repository"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	"github.com/smallbiznis/hostelway/pkg/keyedmutex"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type settingsStub struct {
	err error
}

func (s *settingsStub) Resolve(ctx context.Context, provider settingsdomain.Provider, orgID snowflake.ID, branchID *snowflake.ID) (settingsdomain.Credentials, error) {
	if s.err != nil {
		return settingsdomain.Credentials{}, s.err
	}
	return settingsdomain.Credentials{
		Provider: provider,
		Values:   map[string]string{"base_url": "http://messaging", "access_token": "t", "phone_number_id": "1"},
	}, nil
}

func (s *settingsStub) Upsert(ctx context.Context, req settingsdomain.UpsertRequest) error {
	return nil
}

func (s *settingsStub) ListTenants(ctx context.Context, provider settingsdomain.Provider) ([]settingsdomain.Tenant, error) {
	return nil, nil
}

type messagingStub struct {
	mu            sync.Mutex
	sessionCalls  int
	templateCalls int
	sessionErr    error
	templateErr   error
	lastTemplate  string
	lastParams    []string
}

func (m *messagingStub) SendSession(ctx context.Context, creds settingsdomain.Credentials, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionCalls++
	return m.sessionErr
}

func (m *messagingStub) SendTemplate(ctx context.Context, creds settingsdomain.Credentials, to, template string, params []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templateCalls++
	m.lastTemplate = template
	m.lastParams = params
	return m.templateErr
}

func (m *messagingStub) calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionCalls, m.templateCalls
}

func setupNotificationService(t *testing.T, msg messaging.Client, settings settingsdomain.Service) (domain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.AutoMigrate(&domain.LogEntry{}, &reservationdomain.Reservation{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.SystemClock{},
		Repo:      repository.Provide(),
		ResRepo:   reservationrepo.Provide(),
		Settings:  settings,
		Messaging: msg,
		Locks:     keyedmutex.New(),
	})
	return svc, db, node
}

func seedReservation(t *testing.T, db *gorm.DB, node *snowflake.Node, phone string) *reservationdomain.Reservation {
	t.Helper()
	res := &reservationdomain.Reservation{
		ID:            node.Generate(),
		OrgID:         node.Generate(),
		ExternalID:    "BK-1",
		GuestName:     "Ana",
		GuestPhone:    phone,
		CheckIn:       time.Date(2026, 9, 2, 14, 0, 0, 0, time.UTC),
		CheckOut:      time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC),
		Status:        reservationdomain.StatusConfirmed,
		PaymentStatus: reservationdomain.PaymentPending,
		Amount:        12000,
		Currency:      "EUR",
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, db.Create(res).Error)
	return res
}

func TestNotifyTwiceSendsOnce(t *testing.T) {
	msg := &messagingStub{}
	svc, db, node := setupNotificationService(t, msg, &settingsStub{})
	res := seedReservation(t, db, node, "+34600000001")
	ctx := context.Background()

	first, err := svc.Notify(ctx, res.ID, domain.TypeBookingConfirmation)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSent, first.Status)

	second, err := svc.Notify(ctx, res.ID, domain.TypeBookingConfirmation)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSkipped, second.Status)
	require.Equal(t, domain.ReasonAlreadySent, second.Reason)

	sessions, templates := msg.calls()
	require.Equal(t, 1, sessions)
	require.Equal(t, 0, templates)

	var count int64
	require.NoError(t, db.Model(&domain.LogEntry{}).
		Where("reservation_id = ? AND type = ? AND status = ?", res.ID, domain.TypeBookingConfirmation, domain.StatusSent).
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestNotifyConcurrentCallersSendOnce(t *testing.T) {
	msg := &messagingStub{}
	svc, db, node := setupNotificationService(t, msg, &settingsStub{})
	res := seedReservation(t, db, node, "+34600000001")

	var wg sync.WaitGroup
	outcomes := make([]domain.Outcome, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = svc.Notify(context.Background(), res.ID, domain.TypeBookingConfirmation)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	sent, skipped := 0, 0
	for _, outcome := range outcomes {
		switch outcome.Status {
		case domain.OutcomeSent:
			sent++
		case domain.OutcomeSkipped:
			skipped++
		}
	}
	require.Equal(t, 1, sent)
	require.Equal(t, 1, skipped)

	sessions, _ := msg.calls()
	require.Equal(t, 1, sessions)
}

func TestNotifyNoPhoneSkipsWithoutProviderCall(t *testing.T) {
	msg := &messagingStub{}
	svc, db, node := setupNotificationService(t, msg, &settingsStub{})
	res := seedReservation(t, db, node, "")

	outcome, err := svc.Notify(context.Background(), res.ID, domain.TypeCheckinInvitation)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSkipped, outcome.Status)
	require.Equal(t, domain.ReasonNoContact, outcome.Reason)

	sessions, templates := msg.calls()
	require.Zero(t, sessions)
	require.Zero(t, templates)

	var entry domain.LogEntry
	require.NoError(t, db.Where("reservation_id = ?", res.ID).First(&entry).Error)
	require.Equal(t, domain.StatusSkipped, entry.Status)
	require.Equal(t, domain.ReasonNoContact, entry.Detail)
}

func TestNotifySessionClosedFallsBackToTemplate(t *testing.T) {
	msg := &messagingStub{sessionErr: messaging.ErrSessionClosed}
	svc, db, node := setupNotificationService(t, msg, &settingsStub{})
	res := seedReservation(t, db, node, "+34600000001")

	outcome, err := svc.Notify(context.Background(), res.ID, domain.TypeBookingConfirmation)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSent, outcome.Status)
	require.Equal(t, string(domain.ChannelTemplate), outcome.Reason)

	sessions, templates := msg.calls()
	require.Equal(t, 1, sessions)
	require.Equal(t, 1, templates)
	require.Equal(t, string(domain.TypeBookingConfirmation), msg.lastTemplate)
	require.Equal(t, "Ana", msg.lastParams[0])

	var entry domain.LogEntry
	require.NoError(t, db.Where("reservation_id = ? AND status = ?", res.ID, domain.StatusSent).First(&entry).Error)
	require.Equal(t, domain.ChannelTemplate, entry.Channel)
}

func TestNotifyProviderFailureFinalizesFailed(t *testing.T) {
	msg := &messagingStub{sessionErr: fmt.Errorf("network down")}
	svc, db, node := setupNotificationService(t, msg, &settingsStub{})
	res := seedReservation(t, db, node, "+34600000001")

	outcome, err := svc.Notify(context.Background(), res.ID, domain.TypeBookingConfirmation)
	require.Error(t, err)
	require.Equal(t, domain.OutcomeFailed, outcome.Status)

	var entry domain.LogEntry
	require.NoError(t, db.Where("reservation_id = ?", res.ID).First(&entry).Error)
	require.Equal(t, domain.StatusFailed, entry.Status)

	// A failed row does not block the retry.
	msg.mu.Lock()
	msg.sessionErr = nil
	msg.mu.Unlock()

	retry, err := svc.Notify(context.Background(), res.ID, domain.TypeBookingConfirmation)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSent, retry.Status)
}

func TestNotifyReclaimsAbandonedPendingClaim(t *testing.T) {
	msg := &messagingStub{}
	svc, db, node := setupNotificationService(t, msg, &settingsStub{})
	res := seedReservation(t, db, node, "+34600000001")

	// A pending row whose owner died long before finalize.
	stale := time.Now().UTC().Add(-24 * time.Hour)
	staleID := node.Generate()
	require.NoError(t, db.Create(&domain.LogEntry{
		ID:            staleID,
		ReservationID: res.ID,
		Type:          domain.TypeBookingConfirmation,
		Status:        domain.StatusPending,
		Recipient:     res.GuestPhone,
		CreatedAt:     stale,
		UpdatedAt:     stale,
	}).Error)

	outcome, err := svc.Notify(context.Background(), res.ID, domain.TypeBookingConfirmation)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSent, outcome.Status)

	sessions, _ := msg.calls()
	require.Equal(t, 1, sessions)

	var old domain.LogEntry
	require.NoError(t, db.Where("id = ?", staleID).First(&old).Error)
	require.Equal(t, domain.StatusFailed, old.Status)
	require.Equal(t, domain.ReasonClaimAbandoned, old.Detail)
}

func TestNotifyFreshPendingClaimStillBlocks(t *testing.T) {
	msg := &messagingStub{}
	svc, db, node := setupNotificationService(t, msg, &settingsStub{})
	res := seedReservation(t, db, node, "+34600000001")

	now := time.Now().UTC()
	require.NoError(t, db.Create(&domain.LogEntry{
		ID:            node.Generate(),
		ReservationID: res.ID,
		Type:          domain.TypeBookingConfirmation,
		Status:        domain.StatusPending,
		Recipient:     res.GuestPhone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}).Error)

	outcome, err := svc.Notify(context.Background(), res.ID, domain.TypeBookingConfirmation)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSkipped, outcome.Status)
	require.Equal(t, domain.ReasonAlreadySent, outcome.Reason)

	sessions, templates := msg.calls()
	require.Zero(t, sessions)
	require.Zero(t, templates)
}

func TestNotifyMessagingNotConfigured(t *testing.T) {
	msg := &messagingStub{}
	svc, db, node := setupNotificationService(t, msg, &settingsStub{err: settingsdomain.ErrNotConfigured})
	res := seedReservation(t, db, node, "+34600000001")

	outcome, err := svc.Notify(context.Background(), res.ID, domain.TypeBookingConfirmation)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSkipped, outcome.Status)
	require.Equal(t, domain.ReasonNotConfigured, outcome.Reason)

	sessions, _ := msg.calls()
	require.Zero(t, sessions)
}

func TestNotifyUnknownType(t *testing.T) {
	msg := &messagingStub{}
	svc, _, node := setupNotificationService(t, msg, &settingsStub{})

	_, err := svc.Notify(context.Background(), node.Generate(), domain.Type("newsletter"))
	require.ErrorIs(t, err, domain.ErrUnknownType)
}
