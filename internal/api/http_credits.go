package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"interior/internal/entity"

	"github.com/gin-gonic/gin"
)

// GetCredits 当前余额与分页流水
func (h *HTTPHandler) GetCredits(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var params entity.CreditTransactionQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}
	params.Type = strings.ToLower(strings.TrimSpace(params.Type))
	if params.Type != "" && !entity.CreditTransactionType(params.Type).Valid() {
		BadRequest(c, ErrCodeInvalidRequest, "unknown transaction type")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp, err := h.services.Credits.Summary(ctx, user.ID, params)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) CreateCreditsCheckout(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req entity.CreditsCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		MissingField(c, "price_id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	resp, err := h.services.Payment.CreateCreditsCheckout(ctx, user.ID, req.PriceID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
