package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/expenseflow/expenseflow-api/internal/service"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
	"github.com/expenseflow/expenseflow-api/pkg/response"
)

// DashboardHandler exposes the company dashboard.
type DashboardHandler struct {
	dashboard *service.DashboardService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Summary godoc
// @Summary Company expense summary
// @Description Aggregated counts and totals, plus the caller's pending-approval count
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.dashboard.Summary(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
