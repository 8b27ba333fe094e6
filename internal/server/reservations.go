package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	reservationdomain "github.com/smallbiznis/hostelway/internal/reservation/domain"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	"github.com/smallbiznis/hostelway/pkg/db/pagination"
)

const historyPageSize = 50

func (s *Server) GetReservation(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid reservation id"))
		return
	}

	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, newValidationError("org_id", "invalid_org_id", "invalid org_id"))
		return
	}

	res, err := s.reservationSvc.Get(c.Request.Context(), orgID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) ListReservations(c *gin.Context) {
	var query struct {
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orgID, err := s.orgID(c)
	if err != nil {
		AbortWithError(c, newValidationError("org_id", "invalid_org_id", "invalid org_id"))
		return
	}

	items, info, err := s.reservationSvc.List(c.Request.Context(), orgID, query.Pagination)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": info})
}

func (s *Server) ListReservationHistory(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid reservation id"))
		return
	}

	entries, err := s.reservationRepo.ListHistory(c.Request.Context(), s.db, id, historyPageSize)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) ListReservationNotifications(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid reservation id"))
		return
	}

	entries, err := s.notificationRepo.ListByReservation(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// ReconcileReservation forces one reconcile pass. With a snapshot body the
// snapshot is applied as-is; without one the current booking is re-fetched
// from the PMS. Either way the pass runs with source manual.
func (s *Server) ReconcileReservation(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid reservation id"))
		return
	}

	var snap reservationdomain.Snapshot
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&snap); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	} else {
		fetched, err := s.fetchFromPMS(c, id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		snap = fetched
	}
	snap.Source = reservationdomain.SourceManual

	res, err := s.reservationSvc.Reconcile(c.Request.Context(), reservationdomain.Ref{ID: id}, snap)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) RegeneratePaymentLink(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid reservation id"))
		return
	}

	result, err := s.paymentLinkSvc.Regenerate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": string(result.Status),
		"url":    result.URL,
		"reason": result.Reason,
	})
}

func (s *Server) fetchFromPMS(c *gin.Context, id snowflake.ID) (reservationdomain.Snapshot, error) {
	ctx := c.Request.Context()

	res, err := s.reservationSvc.Get(ctx, 0, id)
	if err != nil {
		return reservationdomain.Snapshot{}, err
	}
	if res.ExternalID == "" {
		return reservationdomain.Snapshot{}, newValidationError("external_id", "no_external_id", "reservation has no PMS booking id")
	}

	creds, err := s.settingsSvc.Resolve(ctx, settingsdomain.ProviderPMS, res.OrgID, res.BranchID)
	if err != nil {
		return reservationdomain.Snapshot{}, err
	}

	return s.pmsClient.FetchByID(ctx, creds, res.ExternalID)
}

func (s *Server) orgID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Query("org_id"))
	if raw == "" {
		return snowflake.ID(s.cfg.DefaultOrgID), nil
	}
	return snowflake.ParseString(raw)
}
