package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/expenseflow/expenseflow-api/internal/service"
	appErrors "github.com/expenseflow/expenseflow-api/pkg/errors"
	"github.com/expenseflow/expenseflow-api/pkg/response"
)

// BudgetHandler exposes budget administration endpoints.
type BudgetHandler struct {
	budgets *service.BudgetService
}

// NewBudgetHandler constructs BudgetHandler.
func NewBudgetHandler(budgets *service.BudgetService) *BudgetHandler {
	return &BudgetHandler{budgets: budgets}
}

// List godoc
// @Summary List budgets
// @Tags Budgets
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /budgets [get]
func (h *BudgetHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	budgets, err := h.budgets.List(c.Request.Context(), claims.CompanyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, budgets, nil)
}

// Get godoc
// @Summary Get one budget
// @Tags Budgets
// @Produce json
// @Param id path string true "Budget ID"
// @Success 200 {object} response.Envelope
// @Router /budgets/{id} [get]
func (h *BudgetHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	budget, err := h.budgets.Get(c.Request.Context(), claims.CompanyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, budget, nil)
}

// Create godoc
// @Summary Create a budget
// @Tags Budgets
// @Accept json
// @Produce json
// @Param payload body service.CreateBudgetRequest true "Budget payload"
// @Success 201 {object} response.Envelope
// @Router /budgets [post]
func (h *BudgetHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid budget payload"))
		return
	}
	budget, err := h.budgets.Create(c.Request.Context(), claims.CompanyID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, budget)
}

// Update godoc
// @Summary Update a budget
// @Tags Budgets
// @Accept json
// @Produce json
// @Param id path string true "Budget ID"
// @Param payload body service.CreateBudgetRequest true "Budget payload"
// @Success 200 {object} response.Envelope
// @Router /budgets/{id} [put]
func (h *BudgetHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid budget payload"))
		return
	}
	budget, err := h.budgets.Update(c.Request.Context(), claims.CompanyID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, budget, nil)
}

// Delete godoc
// @Summary Delete a budget
// @Tags Budgets
// @Produce json
// @Param id path string true "Budget ID"
// @Success 204 {object} response.Envelope
// @Router /budgets/{id} [delete]
func (h *BudgetHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.budgets.Delete(c.Request.Context(), claims.CompanyID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
