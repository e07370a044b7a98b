package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/reviewstack/creditledger/internal/ledger/domain"
)

type debitRequest struct {
	Amount          int64          `json:"amount"`
	IdempotencyKey  string         `json:"idempotency_key"`
	FeatureType     string         `json:"feature_type"`
	FeatureMetadata map[string]any `json:"feature_metadata"`
	Description     string         `json:"description"`
}

func (s *Server) Debit(c *gin.Context) {
	accountID, ok := s.accountIDParam(c)
	if !ok {
		return
	}

	var req debitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	rows, err := s.ledgerSvc.Debit(c.Request.Context(), accountID, req.Amount, ledgerdomain.DebitOptions{
		IdempotencyKey:  req.IdempotencyKey,
		FeatureType:     req.FeatureType,
		FeatureMetadata: req.FeatureMetadata,
		Description:     req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

type creditRequest struct {
	Amount          int64          `json:"amount"`
	IdempotencyKey  string         `json:"idempotency_key"`
	CreditType      string         `json:"credit_type"`
	TransactionType string         `json:"transaction_type"`
	FeatureType     string         `json:"feature_type"`
	FeatureMetadata map[string]any `json:"feature_metadata"`
	Description     string         `json:"description"`
	ExpiresAt       *time.Time     `json:"expires_at"`
	PeriodStart     *time.Time     `json:"period_start"`
}

func (r creditRequest) options() ledgerdomain.CreditOptions {
	return ledgerdomain.CreditOptions{
		IdempotencyKey:  r.IdempotencyKey,
		CreditType:      ledgerdomain.CreditPool(strings.TrimSpace(r.CreditType)),
		TransactionType: ledgerdomain.TransactionType(strings.TrimSpace(r.TransactionType)),
		FeatureType:     r.FeatureType,
		FeatureMetadata: r.FeatureMetadata,
		Description:     r.Description,
		ExpiresAt:       r.ExpiresAt,
		PeriodStart:     r.PeriodStart,
	}
}

func (s *Server) Credit(c *gin.Context) {
	accountID, ok := s.accountIDParam(c)
	if !ok {
		return
	}

	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	rows, err := s.ledgerSvc.Credit(c.Request.Context(), accountID, req.Amount, req.options())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

func (s *Server) Refund(c *gin.Context) {
	accountID, ok := s.accountIDParam(c)
	if !ok {
		return
	}

	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	rows, err := s.ledgerSvc.Refund(c.Request.Context(), accountID, req.Amount, req.options())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

func (s *Server) ListTransactions(c *gin.Context) {
	accountID, ok := s.accountIDParam(c)
	if !ok {
		return
	}

	filter := ledgerdomain.ListFilter{
		TransactionType: ledgerdomain.TransactionType(strings.TrimSpace(c.Query("transaction_type"))),
		FeatureType:     strings.TrimSpace(c.Query("feature_type")),
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			AbortWithError(c, newValidationError("limit", "invalid_request", "limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	rows, err := s.ledgerSvc.ListTransactions(c.Request.Context(), accountID, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

func (s *Server) ReplayBalance(c *gin.Context) {
	accountID, ok := s.accountIDParam(c)
	if !ok {
		return
	}

	repair := strings.EqualFold(strings.TrimSpace(c.Query("repair")), "true")

	result, err := s.ledgerSvc.ReplayBalance(c.Request.Context(), accountID, repair)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
