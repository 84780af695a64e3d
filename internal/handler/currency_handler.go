package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/expenseflow/expenseflow-api/internal/service"
	"github.com/expenseflow/expenseflow-api/pkg/response"
)

// CurrencyHandler exposes the configured conversion rate table.
type CurrencyHandler struct {
	currency *service.CurrencyService
}

// NewCurrencyHandler constructs CurrencyHandler.
func NewCurrencyHandler(currency *service.CurrencyService) *CurrencyHandler {
	return &CurrencyHandler{currency: currency}
}

// Rates godoc
// @Summary List conversion rates relative to a base currency
// @Tags Currency
// @Produce json
// @Param base query string false "Base currency (defaults to the configured base)"
// @Success 200 {object} response.Envelope
// @Router /currency/rates [get]
func (h *CurrencyHandler) Rates(c *gin.Context) {
	base, rates, err := h.currency.Rates(c.Request.Context(), c.Query("base"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"base": base, "rates": rates}, nil)
}
