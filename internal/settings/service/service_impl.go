package service

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/config"
	"github.com/smallbiznis/hostelway/internal/settings/domain"
	"github.com/smallbiznis/hostelway/internal/settings/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
	Repo  repository.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   repository.Repository
	encKey []byte
}

type encryptedPayload struct {
	Version    int    `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func NewService(p Params) domain.Service {
	secret := strings.TrimSpace(p.Cfg.SettingsEncSecret)
	var key []byte
	if secret != "" {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	}

	return &Service{
		db:     p.DB,
		log:    p.Log.Named("settings"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		encKey: key,
	}
}

func (s *Service) Resolve(ctx context.Context, provider domain.Provider, orgID snowflake.ID, branchID *snowflake.ID) (domain.Credentials, error) {
	if _, ok := domain.ParseProvider(string(provider)); !ok {
		return domain.Credentials{}, domain.ErrInvalidProvider
	}

	merged := map[string]string{}

	orgRecord, err := s.repo.Find(ctx, s.db, orgID, nil, provider)
	if err != nil {
		return domain.Credentials{}, err
	}
	if orgRecord != nil {
		values, err := s.decrypt(orgRecord.Config)
		if err != nil {
			return domain.Credentials{}, err
		}
		for k, v := range values {
			merged[k] = v
		}
	}

	if branchID != nil {
		branchRecord, err := s.repo.Find(ctx, s.db, orgID, branchID, provider)
		if err != nil {
			return domain.Credentials{}, err
		}
		if branchRecord != nil {
			values, err := s.decrypt(branchRecord.Config)
			if err != nil {
				return domain.Credentials{}, err
			}
			// Branch values win per field; blank branch fields keep the
			// organization value instead of masking it.
			for k, v := range values {
				if strings.TrimSpace(v) != "" {
					merged[k] = v
				}
			}
		}
	}

	for _, field := range domain.RequiredFields(provider) {
		if strings.TrimSpace(merged[field]) == "" {
			s.log.Info("provider not configured",
				zap.String("provider", string(provider)),
				zap.String("org_id", orgID.String()),
				zap.String("missing_field", field),
			)
			return domain.Credentials{}, domain.ErrNotConfigured
		}
	}

	return domain.Credentials{Provider: provider, Values: merged}, nil
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) error {
	provider, ok := domain.ParseProvider(string(req.Provider))
	if !ok {
		return domain.ErrInvalidProvider
	}
	if req.OrgID == 0 || len(req.Config) == 0 {
		return domain.ErrInvalidConfig
	}

	blob, err := s.encrypt(req.Config)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	return s.repo.Upsert(ctx, s.db, &domain.SettingRecord{
		ID:        s.genID.Generate(),
		OrgID:     req.OrgID,
		BranchID:  req.BranchID,
		Provider:  provider,
		Config:    blob,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *Service) ListTenants(ctx context.Context, provider domain.Provider) ([]domain.Tenant, error) {
	return s.repo.ListTenants(ctx, s.db, provider)
}

func (s *Service) decrypt(encrypted datatypes.JSON) (map[string]string, error) {
	if len(s.encKey) == 0 {
		return nil, domain.ErrEncryptionKeyMissing
	}
	if len(encrypted) == 0 {
		return nil, domain.ErrInvalidConfig
	}

	var payload encryptedPayload
	if err := json.Unmarshal(encrypted, &payload); err != nil {
		return nil, domain.ErrDecryptFailed
	}
	if payload.Version != 1 {
		return nil, domain.ErrDecryptFailed
	}

	nonce, err := base64.RawStdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return nil, domain.ErrDecryptFailed
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return nil, domain.ErrDecryptFailed
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, domain.ErrDecryptFailed
	}

	var raw map[string]any
	if err := json.Unmarshal(plain, &raw); err != nil {
		return nil, domain.ErrDecryptFailed
	}
	return stringValues(raw), nil
}

func (s *Service) encrypt(values map[string]any) (datatypes.JSON, error) {
	if len(s.encKey) == 0 {
		return nil, domain.ErrEncryptionKeyMissing
	}

	plain, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plain, nil)

	blob, err := json.Marshal(encryptedPayload{
		Version:    1,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(blob), nil
}

func stringValues(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		switch cast := value.(type) {
		case string:
			out[key] = strings.TrimSpace(cast)
		case float64:
			out[key] = strconv.FormatInt(int64(cast), 10)
		case bool:
			out[key] = strconv.FormatBool(cast)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprintf("%v", cast)
		}
	}
	return out
}
