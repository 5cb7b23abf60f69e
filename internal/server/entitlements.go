package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	entitlementdomain "github.com/resumeforge/resumeforge/internal/entitlement/domain"
)

func (s *Server) ListEntitlements(c *gin.Context) {
	entitlements, err := s.entitlementSvc.ResolveAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entitlements})
}

func (s *Server) CheckEntitlement(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		AbortWithError(c, newValidationError("code", "invalid_code", "feature code is required"))
		return
	}

	ent, err := s.entitlementSvc.Check(c.Request.Context(), code)
	if err != nil {
		// A feature the plan does not grant is a definitive answer, not
		// a missing resource.
		if errors.Is(err, entitlementdomain.ErrFeatureNotEntitled) {
			c.JSON(http.StatusOK, gin.H{"data": gin.H{
				"code":    code,
				"allowed": false,
			}})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"code":        ent.Code,
		"allowed":     ent.Allowed(),
		"entitlement": ent,
	}})
}
