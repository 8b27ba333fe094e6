package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Provider names the four external systems the orchestrator talks to.
type Provider string

const (
	ProviderPMS       Provider = "pms"
	ProviderPayment   Provider = "payment"
	ProviderLock      Provider = "lock"
	ProviderMessaging Provider = "messaging"
)

func ParseProvider(raw string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderPMS:
		return ProviderPMS, true
	case ProviderPayment:
		return ProviderPayment, true
	case ProviderLock:
		return ProviderLock, true
	case ProviderMessaging:
		return ProviderMessaging, true
	default:
		return "", false
	}
}

// RequiredFields lists the fields a provider needs before any call is made.
// Resolution fails with ErrNotConfigured while any of them is missing.
func RequiredFields(p Provider) []string {
	switch p {
	case ProviderPMS:
		return []string{"base_url", "api_key"}
	case ProviderPayment:
		return []string{"base_url", "api_key"}
	case ProviderLock:
		return []string{"base_url", "client_id", "client_secret", "username", "password"}
	case ProviderMessaging:
		return []string{"base_url", "access_token", "phone_number_id"}
	default:
		return nil
	}
}

// SettingRecord stores one encrypted settings blob. BranchID nil means the
// organization-level blob; a branch row shadows it field by field.
type SettingRecord struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID     snowflake.ID   `json:"org_id" gorm:"not null;index"`
	BranchID  *snowflake.ID  `json:"branch_id,omitempty"`
	Provider  Provider       `json:"provider" gorm:"type:text;not null"`
	Config    datatypes.JSON `json:"-" gorm:"type:jsonb;not null"`
	IsActive  bool           `json:"is_active" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"not null"`
}

func (SettingRecord) TableName() string { return "provider_settings" }

// Credentials is the merged, decrypted value object handed to provider
// clients. It is immutable after resolution.
type Credentials struct {
	Provider Provider
	Values   map[string]string
}

func (c Credentials) Get(key string) string {
	return c.Values[key]
}

// Tenant identifies one org (and optionally branch) with an active
// provider configuration; the scheduler iterates these.
type Tenant struct {
	OrgID    snowflake.ID
	BranchID *snowflake.ID
}

var (
	ErrInvalidProvider      = errors.New("invalid_provider")
	ErrInvalidConfig        = errors.New("invalid_config")
	ErrNotConfigured        = errors.New("provider_not_configured")
	ErrDecryptFailed        = errors.New("settings_decrypt_failed")
	ErrEncryptionKeyMissing = errors.New("encryption_key_missing")
)
