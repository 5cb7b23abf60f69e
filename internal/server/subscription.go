package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	subscriptiondomain "github.com/resumeforge/resumeforge/internal/subscription/domain"
)

func (s *Server) GetSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.GetCurrent(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) Subscribe(c *gin.Context) {
	var req subscriptiondomain.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.PlanID == 0 {
		AbortWithError(c, newValidationError("plan_id", "invalid_plan_id", "plan_id is required"))
		return
	}
	req.ClientIP = c.ClientIP()

	resp, err := s.subscriptionSvc.Subscribe(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Paid plans return a checkout to complete; free plans activate now.
	status := http.StatusCreated
	if resp.CheckoutURL != "" {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) UpgradeSubscription(c *gin.Context) {
	var req subscriptiondomain.UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.TargetPlanID == 0 {
		AbortWithError(c, newValidationError("target_plan_id", "invalid_target_plan_id", "target_plan_id is required"))
		return
	}
	req.ClientIP = c.ClientIP()

	resp, err := s.subscriptionSvc.Upgrade(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if !resp.Applied {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) DowngradeSubscription(c *gin.Context) {
	var req subscriptiondomain.DowngradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.TargetPlanID == 0 {
		AbortWithError(c, newValidationError("target_plan_id", "invalid_target_plan_id", "target_plan_id is required"))
		return
	}
	req.ClientIP = c.ClientIP()

	resp, err := s.subscriptionSvc.Downgrade(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.Cancel(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) GetPendingChange(c *gin.Context) {
	change, err := s.subscriptionSvc.GetPendingChange(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": change})
}

func (s *Server) CancelPendingChange(c *gin.Context) {
	sub, err := s.subscriptionSvc.CancelPendingChange(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}
