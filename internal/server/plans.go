package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/resumeforge/resumeforge/internal/usercontext"
)

func (s *Server) ListPlans(c *gin.Context) {
	ctx := c.Request.Context()

	// The catalog is browsable anonymously; a signed-in caller gets the
	// region their billing address resolves to.
	userID, _ := usercontext.UserIDFromContext(ctx)
	if userID == 0 {
		if raw := strings.TrimSpace(c.GetHeader(HeaderUserID)); raw != "" {
			if parsed, err := snowflake.ParseString(raw); err == nil {
				userID = parsed
			}
		}
	}

	resolution := s.regions.Resolve(ctx, userID, c.ClientIP())

	plans, err := s.planSvc.ListActive(ctx, resolution.Region)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": plans,
		"region": gin.H{
			"region":   resolution.Region,
			"currency": resolution.Currency,
			"source":   resolution.Source,
		},
	})
}

func (s *Server) ListPlanFeatures(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	planID, err := snowflake.ParseString(id)
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	features, err := s.planSvc.GetFeatures(c.Request.Context(), planID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": features})
}
