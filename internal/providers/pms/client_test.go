package pms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/hostelway/internal/providers/httpx"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pmsCreds(baseURL string) settingsdomain.Credentials {
	return settingsdomain.Credentials{
		Provider: settingsdomain.ProviderPMS,
		Values: map[string]string{
			"base_url": baseURL,
			"api_key":  "test-key",
		},
	}
}

func TestFetchReservationsNormalizesStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.Equal(t, "2026-09-01", r.URL.Query().Get("from"))
		require.Equal(t, "2026-09-08", r.URL.Query().Get("to"))
		w.Write([]byte(`{"reservations":[
			{"id":"BK-1","status":"confirmed","guest":{"name":"Ana","phone":"+34600000001"},
			 "check_in":"2026-09-02","check_out":"2026-09-04","total_amount":12000,"paid_amount":0,"currency":"EUR"},
			{"id":"BK-2","status":"in_house","guest":{"name":"Ben"},
			 "check_in":"2026-09-01T14:00:00Z","check_out":"2026-09-03T10:00:00Z","total_amount":8000,"paid_amount":8000,"currency":"EUR"},
			{"id":"BK-3","status":"no_show","guest":{},
			 "check_in":"2026-09-05","check_out":"2026-09-06","total_amount":4000,"paid_amount":0,"currency":"EUR"},
			{"id":"","status":"confirmed","check_in":"bad","check_out":"bad"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(httpx.New(zap.NewNop(), nil), zap.NewNop())
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)

	snapshots, err := client.FetchReservations(context.Background(), pmsCreds(server.URL), from, to)
	require.NoError(t, err)
	require.Len(t, snapshots, 3)

	require.Equal(t, "BK-1", snapshots[0].ExternalID)
	require.True(t, snapshots[0].Confirmed)
	require.False(t, snapshots[0].CheckedIn)
	require.EqualValues(t, 12000, snapshots[0].AmountDue)

	require.True(t, snapshots[1].CheckedIn)
	require.False(t, snapshots[1].CheckedOut)
	require.EqualValues(t, 8000, snapshots[1].AmountPaid)

	require.True(t, snapshots[2].Cancelled)
	require.Equal(t, "no_show", snapshots[2].RawStatus)
}

func TestFetchByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/reservations/BK-9", r.URL.Path)
		w.Write([]byte(`{"id":"BK-9","status":"checked_out","guest":{"name":"Eva"},
			"check_in":"2026-08-20","check_out":"2026-08-22","total_amount":7000,"paid_amount":7000,"currency":"EUR"}`))
	}))
	defer server.Close()

	client := NewClient(httpx.New(zap.NewNop(), nil), zap.NewNop())
	snap, err := client.FetchByID(context.Background(), pmsCreds(server.URL), "BK-9")
	require.NoError(t, err)
	require.True(t, snap.CheckedOut)
	require.True(t, snap.CheckedIn)
	require.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), snap.CheckIn)
}

func TestFetchByIDInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(httpx.New(zap.NewNop(), nil), zap.NewNop())
	_, err := client.FetchByID(context.Background(), pmsCreds(server.URL), "BK-9")
	require.ErrorIs(t, err, ErrInvalidResponse)
}
