package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
)

type upsertSettingsRequest struct {
	OrgID    string         `json:"org_id"`
	BranchID string         `json:"branch_id"`
	Config   map[string]any `json:"config"`
}

func (s *Server) UpsertSettings(c *gin.Context) {
	provider, ok := settingsdomain.ParseProvider(c.Param("provider"))
	if !ok {
		AbortWithError(c, settingsdomain.ErrInvalidProvider)
		return
	}

	var req upsertSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orgID := snowflake.ID(s.cfg.DefaultOrgID)
	if raw := strings.TrimSpace(req.OrgID); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("org_id", "invalid_org_id", "invalid org_id"))
			return
		}
		orgID = parsed
	}

	var branchID *snowflake.ID
	if raw := strings.TrimSpace(req.BranchID); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("branch_id", "invalid_branch_id", "invalid branch_id"))
			return
		}
		branchID = &parsed
	}

	err := s.settingsSvc.Upsert(c.Request.Context(), settingsdomain.UpsertRequest{
		OrgID:    orgID,
		BranchID: branchID,
		Provider: provider,
		Config:   req.Config,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
