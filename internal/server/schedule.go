package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/reviewstack/creditledger/internal/actorctx"
	"github.com/reviewstack/creditledger/internal/costing"
	scheduledomain "github.com/reviewstack/creditledger/internal/schedule/domain"
)

func (s *Server) scheduleIDParam(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("id", "invalid_request", "schedule id must be a valid identifier"))
		return 0, false
	}
	return id, true
}

type createIndividualScheduleRequest struct {
	SubjectID string         `json:"subject_id"`
	CheckType string         `json:"check_type"`
	Cadence   string         `json:"cadence"`
	Config    map[string]any `json:"config"`
}

func (s *Server) CreateIndividualSchedule(c *gin.Context) {
	accountID, ok := s.accountIDParam(c)
	if !ok {
		return
	}

	var req createIndividualScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	schedule, err := s.scheduleSvc.CreateIndividual(c.Request.Context(), scheduledomain.CreateIndividualRequest{
		AccountID: accountID,
		SubjectID: req.SubjectID,
		CheckType: req.CheckType,
		Cadence:   req.Cadence,
		Config:    req.Config,
		CreatedBy: actorctx.ActorFromContext(c.Request.Context()),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, schedule)
}

type createConsolidatedScheduleRequest struct {
	SubjectID  string                    `json:"subject_id"`
	Cadence    string                    `json:"cadence"`
	Selections costing.FeatureSelections `json:"selections"`
	Config     map[string]any            `json:"config"`
}

func (s *Server) CreateConsolidatedSchedule(c *gin.Context) {
	accountID, ok := s.accountIDParam(c)
	if !ok {
		return
	}

	var req createConsolidatedScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	resp, err := s.scheduleSvc.CreateConsolidated(c.Request.Context(), scheduledomain.CreateConsolidatedRequest{
		AccountID:  accountID,
		SubjectID:  req.SubjectID,
		Cadence:    req.Cadence,
		Selections: req.Selections,
		Config:     req.Config,
		CreatedBy:  actorctx.ActorFromContext(c.Request.Context()),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetSchedule(c *gin.Context) {
	id, ok := s.scheduleIDParam(c)
	if !ok {
		return
	}

	schedule, err := s.scheduleSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, schedule)
}

func (s *Server) DeleteConsolidatedSchedule(c *gin.Context) {
	id, ok := s.scheduleIDParam(c)
	if !ok {
		return
	}

	if err := s.scheduleSvc.DeleteConsolidated(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) RestorePausedSchedules(c *gin.Context) {
	id, ok := s.scheduleIDParam(c)
	if !ok {
		return
	}

	if err := s.scheduleSvc.RestorePausedSchedulesByConsolidatedID(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"restored": true})
}
