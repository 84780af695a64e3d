package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/expenseflow/expenseflow-api/internal/models"
	"github.com/expenseflow/expenseflow-api/internal/service"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
	"github.com/expenseflow/expenseflow-api/pkg/response"
)

// ApprovalHandler exposes the approver workflow endpoints.
type ApprovalHandler struct {
	approvals *service.ApprovalService
	metrics   *service.MetricsService
}

// NewApprovalHandler constructs ApprovalHandler.
func NewApprovalHandler(approvals *service.ApprovalService, metrics *service.MetricsService) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals, metrics: metrics}
}

// Pending godoc
// @Summary List expenses awaiting the caller's decision
// @Tags Approvals
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /approvals/pending [get]
func (h *ApprovalHandler) Pending(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	expenses, pagination, err := h.approvals.Pending(c.Request.Context(), claims, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, expenses, pagination)
}

// Chain godoc
// @Summary Get the approval chain of an expense
// @Tags Approvals
// @Produce json
// @Param id path string true "Expense ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id}/chain [get]
func (h *ApprovalHandler) Chain(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	chain, err := h.approvals.Chain(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chain, nil)
}

// Decide godoc
// @Summary Approve or reject an expense
// @Description Records the caller's decision on their pending step and advances the workflow
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Expense ID"
// @Param payload body models.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/{id}/decision [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	result, err := h.approvals.Decide(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordDecision(string(req.Decision))
	}
	response.JSON(c, http.StatusOK, result, nil)
}
