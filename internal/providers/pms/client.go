package pms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/hostelway/internal/providers/httpx"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	"go.uber.org/zap"
)

var ErrInvalidResponse = errors.New("pms_invalid_response")

// Client fetches reservations from the property management system and
// normalizes them into provider-agnostic snapshots. Credentials are
// resolved per tenant by the caller.
type Client interface {
	FetchReservations(ctx context.Context, creds settingsdomain.Credentials, from, to time.Time) ([]reservationdomain.Snapshot, error)
	FetchByID(ctx context.Context, creds settingsdomain.Credentials, externalID string) (reservationdomain.Snapshot, error)
}

type client struct {
	http *httpx.Client
	log  *zap.Logger
}

func NewClient(http *httpx.Client, log *zap.Logger) Client {
	return &client{http: http, log: log.Named("pms")}
}

// Booking is the PMS wire shape for one reservation. Webhook payloads
// embed the same object.
type Booking struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Guest  struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"guest"`
	CheckIn     string `json:"check_in"`
	CheckOut    string `json:"check_out"`
	TotalAmount int64  `json:"total_amount"`
	PaidAmount  int64  `json:"paid_amount"`
	Currency    string `json:"currency"`
}

func (c *client) FetchReservations(ctx context.Context, creds settingsdomain.Credentials, from, to time.Time) ([]reservationdomain.Snapshot, error) {
	query := url.Values{}
	query.Set("from", from.Format("2006-01-02"))
	query.Set("to", to.Format("2006-01-02"))

	resp, err := c.http.Do(ctx, "pms", "fetch_reservations", httpx.Request{
		Method: http.MethodGet,
		URL:    strings.TrimRight(creds.Get("base_url"), "/") + "/api/v1/reservations?" + query.Encode(),
		Header: map[string]string{"X-Api-Key": creds.Get("api_key")},
	})
	if err != nil {
		return nil, err
	}

	var body struct {
		Reservations []Booking `json:"reservations"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, ErrInvalidResponse
	}

	snapshots := make([]reservationdomain.Snapshot, 0, len(body.Reservations))
	for _, booking := range body.Reservations {
		snap, err := Normalize(booking)
		if err != nil {
			c.log.Warn("skipping malformed booking",
				zap.String("external_id", booking.ID),
				zap.Error(err),
			)
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func (c *client) FetchByID(ctx context.Context, creds settingsdomain.Credentials, externalID string) (reservationdomain.Snapshot, error) {
	resp, err := c.http.Do(ctx, "pms", "fetch_reservation", httpx.Request{
		Method: http.MethodGet,
		URL:    strings.TrimRight(creds.Get("base_url"), "/") + "/api/v1/reservations/" + url.PathEscape(externalID),
		Header: map[string]string{"X-Api-Key": creds.Get("api_key")},
	})
	if err != nil {
		return reservationdomain.Snapshot{}, err
	}

	var booking Booking
	if err := json.Unmarshal(resp.Body, &booking); err != nil {
		return reservationdomain.Snapshot{}, ErrInvalidResponse
	}
	return Normalize(booking)
}

// Normalize maps a PMS booking to the provider-agnostic snapshot shape.
func Normalize(booking Booking) (reservationdomain.Snapshot, error) {
	if strings.TrimSpace(booking.ID) == "" {
		return reservationdomain.Snapshot{}, ErrInvalidResponse
	}
	checkIn, err := parseDate(booking.CheckIn)
	if err != nil {
		return reservationdomain.Snapshot{}, fmt.Errorf("check_in: %w", err)
	}
	checkOut, err := parseDate(booking.CheckOut)
	if err != nil {
		return reservationdomain.Snapshot{}, fmt.Errorf("check_out: %w", err)
	}

	snap := reservationdomain.Snapshot{
		ExternalID: booking.ID,
		GuestName:  booking.Guest.Name,
		GuestPhone: booking.Guest.Phone,
		GuestEmail: booking.Guest.Email,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		AmountPaid: booking.PaidAmount,
		AmountDue:  booking.TotalAmount,
		Currency:   booking.Currency,
		RawStatus:  booking.Status,
	}

	switch strings.ToLower(strings.TrimSpace(booking.Status)) {
	case "confirmed":
		snap.Confirmed = true
	case "checked_in", "in_house":
		snap.Confirmed = true
		snap.CheckedIn = true
	case "checked_out", "departed":
		snap.Confirmed = true
		snap.CheckedIn = true
		snap.CheckedOut = true
	case "cancelled", "no_show":
		snap.Cancelled = true
	}
	return snap, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidResponse
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, ErrInvalidResponse
	}
	return parsed.UTC(), nil
}
