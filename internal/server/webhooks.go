package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/hostelway/internal/webhook/domain"
)

func (s *Server) HandleWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhookSvc.Ingest(c.Request.Context(), provider, payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Unresolvable payloads are stored for inspection; the provider gets
	// a 2xx so it stops retrying a payload we already keep.
	switch result.Status {
	case webhookdomain.StatusUnresolvable:
		c.JSON(http.StatusAccepted, gin.H{"status": string(result.Status)})
	default:
		c.JSON(http.StatusOK, gin.H{"status": string(result.Status)})
	}
}

func (s *Server) ListUnresolvableWebhooks(c *gin.Context) {
	events, err := s.webhookRepo.ListUnresolvable(c.Request.Context(), s.db, 100)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}
