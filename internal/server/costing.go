package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/reviewstack/creditledger/internal/costing"
)

func (s *Server) PreviewCost(c *gin.Context) {
	var sel costing.FeatureSelections
	if err := c.ShouldBindJSON(&sel); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	c.JSON(http.StatusOK, costing.Calculate(sel))
}
