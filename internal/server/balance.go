package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) EnsureBalance(c *gin.Context) {
	accountID, ok := s.accountIDParam(c)
	if !ok {
		return
	}

	if err := s.balanceSvc.EnsureBalanceExists(c.Request.Context(), accountID); err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.balanceSvc.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

func (s *Server) GetBalance(c *gin.Context) {
	accountID, ok := s.accountIDParam(c)
	if !ok {
		return
	}

	// Reading a balance implicitly provisions the account: a missing
	// row and an all-zero row are indistinguishable to callers.
	if err := s.balanceSvc.EnsureBalanceExists(c.Request.Context(), accountID); err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.balanceSvc.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

type setPlanRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) SetPlan(c *gin.Context) {
	accountID, ok := s.accountIDParam(c)
	if !ok {
		return
	}

	var req setPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Plan) == "" {
		AbortWithError(c, newValidationError("plan", "invalid_plan", "plan is required"))
		return
	}

	if err := s.balanceSvc.EnsureBalanceExists(c.Request.Context(), accountID); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.balanceSvc.SetPlan(c.Request.Context(), accountID, req.Plan); err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.balanceSvc.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}
