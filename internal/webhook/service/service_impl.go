package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/config"
	"github.com/smallbiznis/hostelway/internal/observability/metrics"
	"github.com/smallbiznis/hostelway/internal/providers/pms"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	"github.com/smallbiznis/hostelway/internal/webhook/domain"
	"github.com/smallbiznis/hostelway/internal/webhook/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ProviderPayment = "payment"
	ProviderPMS     = "pms"

	// referencePrefix matches the reference string minted by the payment
	// link provisioner: PREFIX-<reservationID>-<unix>.
	referencePrefix = "RES"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Cfg     config.Config
	Repo    repository.Repository
	ResRepo reservationdomain.Repository
	ResSvc  reservationdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	repo    repository.Repository
	resRepo reservationdomain.Repository
	resSvc  reservationdomain.Service
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("webhook"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Cfg,
		repo:    p.Repo,
		resRepo: p.ResRepo,
		resSvc:  p.ResSvc,
		metrics: p.Metrics,
	}
}

// envelope is the superset of the fields both providers put on their
// webhook payloads.
type envelope struct {
	Event      string         `json:"event"`
	Reference  string         `json:"reference"`
	ExternalID string         `json:"external_id"`
	AmountPaid int64          `json:"amount_paid"`
	Currency   string         `json:"currency"`
	Refunded   bool           `json:"refunded"`
	Metadata   map[string]any `json:"metadata"`
	Data       struct {
		Metadata map[string]any `json:"metadata"`
	} `json:"data"`
	Reservation *pms.Booking `json:"reservation"`
}

func (s *Service) Ingest(ctx context.Context, provider string, payload []byte) (domain.Result, error) {
	if provider != ProviderPayment && provider != ProviderPMS {
		return domain.Result{}, domain.ErrUnknownProvider
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		result, persistErr := s.persist(ctx, provider, payload, domain.StatusUnresolvable, nil, "malformed json")
		if persistErr != nil {
			return domain.Result{}, persistErr
		}
		return result, nil
	}

	res, via, err := s.resolve(ctx, env)
	if err != nil {
		return domain.Result{}, err
	}
	if res == nil {
		s.log.Warn("webhook did not resolve to a reservation",
			zap.String("provider", provider),
			zap.String("event", env.Event),
			zap.String("reference", env.Reference),
			zap.String("external_id", env.ExternalID),
		)
		return s.persist(ctx, provider, payload, domain.StatusUnresolvable, nil, "no resolution path matched")
	}

	snap, ok := s.normalize(provider, env)
	if !ok {
		return s.persist(ctx, provider, payload, domain.StatusIgnored, &res.ID, "event carries no state")
	}

	if _, err := s.resSvc.Reconcile(ctx, reservationdomain.Ref{ID: res.ID, OrgID: res.OrgID}, snap); err != nil {
		return domain.Result{}, err
	}

	s.log.Info("webhook accepted",
		zap.String("provider", provider),
		zap.String("event", env.Event),
		zap.String("reservation_id", res.ID.String()),
		zap.String("resolved_via", via),
	)
	return s.persist(ctx, provider, payload, domain.StatusAccepted, &res.ID, via)
}

// resolve walks the resolution chain in order: explicit metadata, the
// data.metadata variant, the minted reference string, then the
// provider's external id against stored reservations.
func (s *Service) resolve(ctx context.Context, env envelope) (*reservationdomain.Reservation, string, error) {
	if id, ok := idFromMetadata(env.Metadata); ok {
		res, err := s.resRepo.FindByID(ctx, s.db, id)
		if err != nil || res != nil {
			return res, "metadata", err
		}
	}
	if id, ok := idFromMetadata(env.Data.Metadata); ok {
		res, err := s.resRepo.FindByID(ctx, s.db, id)
		if err != nil || res != nil {
			return res, "data_metadata", err
		}
	}
	if id, ok := parseReference(env.Reference); ok {
		res, err := s.resRepo.FindByID(ctx, s.db, id)
		if err != nil || res != nil {
			return res, "reference", err
		}
	}

	externalID := env.ExternalID
	if externalID == "" && env.Reservation != nil {
		externalID = env.Reservation.ID
	}
	if externalID != "" {
		orgID := s.orgID(env)
		if orgID != 0 {
			res, err := s.resRepo.FindByExternalID(ctx, s.db, orgID, externalID)
			if err != nil || res != nil {
				return res, "external_id", err
			}
		}
	}
	return nil, "", nil
}

func (s *Service) normalize(provider string, env envelope) (reservationdomain.Snapshot, bool) {
	switch provider {
	case ProviderPayment:
		refunded := env.Refunded || strings.Contains(strings.ToLower(env.Event), "refund")
		if env.AmountPaid <= 0 && !refunded {
			return reservationdomain.Snapshot{}, false
		}
		return reservationdomain.Snapshot{
			Source:     reservationdomain.SourceWebhook,
			AmountPaid: env.AmountPaid,
			Refunded:   refunded,
			Currency:   env.Currency,
			RawStatus:  env.Event,
		}, true
	case ProviderPMS:
		if env.Reservation == nil {
			return reservationdomain.Snapshot{}, false
		}
		snap, err := pms.Normalize(*env.Reservation)
		if err != nil {
			return reservationdomain.Snapshot{}, false
		}
		snap.Source = reservationdomain.SourceWebhook
		return snap, true
	default:
		return reservationdomain.Snapshot{}, false
	}
}

func (s *Service) orgID(env envelope) snowflake.ID {
	for _, meta := range []map[string]any{env.Metadata, env.Data.Metadata} {
		if raw := readMetadataString(meta, "organization_id"); raw != "" {
			if id, err := snowflake.ParseString(raw); err == nil {
				return id
			}
		}
	}
	return snowflake.ID(s.cfg.DefaultOrgID)
}

func (s *Service) persist(ctx context.Context, provider string, payload []byte, status domain.EventStatus, reservationID *snowflake.ID, detail string) (domain.Result, error) {
	event := &domain.Event{
		ID:            s.genID.Generate(),
		Provider:      provider,
		Status:        status,
		ReservationID: reservationID,
		Payload:       payload,
		Detail:        detail,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, event); err != nil {
		return domain.Result{}, err
	}

	s.metrics.RecordWebhookIngest(ctx, provider, string(status))

	result := domain.Result{Status: status}
	if reservationID != nil {
		result.ReservationID = *reservationID
	}
	return result, nil
}

func idFromMetadata(meta map[string]any) (snowflake.ID, bool) {
	raw := readMetadataString(meta, "reservation_id")
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// readMetadataString reads a metadata key without assuming the sender's
// value type. Providers emit both `"reservation_id": "482"` and
// `"reservation_id": 482` for the same field.
func readMetadataString(meta map[string]any, key string) string {
	value, ok := meta[key]
	if !ok {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	case json.Number:
		return typed.String()
	case int64:
		return strconv.FormatInt(typed, 10)
	case int:
		return strconv.Itoa(typed)
	default:
		return ""
	}
}

// parseReference extracts the reservation id from PREFIX-<id>-<unix>.
func parseReference(reference string) (snowflake.ID, bool) {
	parts := strings.Split(strings.TrimSpace(reference), "-")
	if len(parts) != 3 || parts[0] != referencePrefix {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	if _, err := strconv.ParseInt(parts[2], 10, 64); err != nil {
		return 0, false
	}
	return snowflake.ID(id), true
}
