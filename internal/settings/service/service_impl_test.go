package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/config"
	"github.com/smallbiznis/hostelway/internal/settings/domain"
	"github.com/smallbiznis/hostelway/internal/settings/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupSettingsService(t *testing.T) (domain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.AutoMigrate(&domain.SettingRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.SystemClock{},
		Cfg:   config.Config{SettingsEncSecret: "test-secret"},
		Repo:  repository.Provide(),
	})
	return svc, node
}

func TestResolveMergesBranchOverOrgPerField(t *testing.T) {
	svc, node := setupSettingsService(t)
	ctx := context.Background()
	orgID := node.Generate()
	branchID := node.Generate()

	require.NoError(t, svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:    orgID,
		Provider: domain.ProviderPMS,
		Config: map[string]any{
			"base_url": "https://pms.example.com",
			"api_key":  "org-key",
		},
	}))
	require.NoError(t, svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:    orgID,
		BranchID: &branchID,
		Provider: domain.ProviderPMS,
		Config: map[string]any{
			"api_key": "branch-key",
		},
	}))

	creds, err := svc.Resolve(ctx, domain.ProviderPMS, orgID, &branchID)
	require.NoError(t, err)
	require.Equal(t, "https://pms.example.com", creds.Get("base_url"))
	require.Equal(t, "branch-key", creds.Get("api_key"))
}

func TestResolveBlankBranchFieldKeepsOrgValue(t *testing.T) {
	svc, node := setupSettingsService(t)
	ctx := context.Background()
	orgID := node.Generate()
	branchID := node.Generate()

	require.NoError(t, svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:    orgID,
		Provider: domain.ProviderPMS,
		Config: map[string]any{
			"base_url": "https://pms.example.com",
			"api_key":  "org-key",
		},
	}))
	require.NoError(t, svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:    orgID,
		BranchID: &branchID,
		Provider: domain.ProviderPMS,
		Config: map[string]any{
			"api_key": "  ",
		},
	}))

	creds, err := svc.Resolve(ctx, domain.ProviderPMS, orgID, &branchID)
	require.NoError(t, err)
	require.Equal(t, "org-key", creds.Get("api_key"))
}

func TestResolveMissingRequiredField(t *testing.T) {
	svc, node := setupSettingsService(t)
	ctx := context.Background()
	orgID := node.Generate()

	require.NoError(t, svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:    orgID,
		Provider: domain.ProviderMessaging,
		Config: map[string]any{
			"base_url":     "https://wa.example.com",
			"access_token": "token",
		},
	}))

	_, err := svc.Resolve(ctx, domain.ProviderMessaging, orgID, nil)
	require.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestResolveNoBlobAtAll(t *testing.T) {
	svc, node := setupSettingsService(t)

	_, err := svc.Resolve(context.Background(), domain.ProviderLock, node.Generate(), nil)
	require.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestUpsertOverwritesExistingBlob(t *testing.T) {
	svc, node := setupSettingsService(t)
	ctx := context.Background()
	orgID := node.Generate()

	require.NoError(t, svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:    orgID,
		Provider: domain.ProviderPayment,
		Config:   map[string]any{"base_url": "https://pay.example.com", "api_key": "v1"},
	}))
	require.NoError(t, svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:    orgID,
		Provider: domain.ProviderPayment,
		Config:   map[string]any{"base_url": "https://pay.example.com", "api_key": "v2"},
	}))

	creds, err := svc.Resolve(ctx, domain.ProviderPayment, orgID, nil)
	require.NoError(t, err)
	require.Equal(t, "v2", creds.Get("api_key"))
}

func TestResolveRejectsUnknownProvider(t *testing.T) {
	svc, node := setupSettingsService(t)

	_, err := svc.Resolve(context.Background(), domain.Provider("crm"), node.Generate(), nil)
	require.ErrorIs(t, err, domain.ErrInvalidProvider)
}

func TestListTenants(t *testing.T) {
	svc, node := setupSettingsService(t)
	ctx := context.Background()
	orgA := node.Generate()
	orgB := node.Generate()

	require.NoError(t, svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:    orgA,
		Provider: domain.ProviderPMS,
		Config:   map[string]any{"base_url": "https://a.example.com", "api_key": "a"},
	}))
	require.NoError(t, svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:    orgB,
		Provider: domain.ProviderPMS,
		Config:   map[string]any{"base_url": "https://b.example.com", "api_key": "b"},
	}))

	tenants, err := svc.ListTenants(ctx, domain.ProviderPMS)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
}
