package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Resolve decrypts and merges branch-level over organization-level
	// settings. ErrNotConfigured is a normal skip condition, not a fault;
	// ErrDecryptFailed means the blob exists but cannot be opened.
	Resolve(ctx context.Context, provider Provider, orgID snowflake.ID, branchID *snowflake.ID) (Credentials, error)

	// Upsert encrypts and stores one settings blob.
	Upsert(ctx context.Context, req UpsertRequest) error

	// ListTenants returns every org/branch with an active blob for the
	// provider, for the poll scheduler.
	ListTenants(ctx context.Context, provider Provider) ([]Tenant, error)
}

type UpsertRequest struct {
	OrgID    snowflake.ID   `json:"org_id"`
	BranchID *snowflake.ID  `json:"branch_id,omitempty"`
	Provider Provider       `json:"provider"`
	Config   map[string]any `json:"config"`
}
