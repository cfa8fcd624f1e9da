package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"interior/internal/entity"
	"interior/internal/payment"
	"interior/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxWebhookBodyBytes = 65536

// StripeWebhook 签名错误返回 400；其它处理失败返回 500 让支付方重试；
// 已处理、重放和忽略的事件都返回 200。
func (h *HTTPHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		InvalidPayload(c)
		return
	}
	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		logrus.WithField("security", true).WithField("client_ip", c.ClientIP()).Warn("payment webhook without signature")
		MissingField(c, "Stripe-Signature")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	result, err := h.services.Payment.HandleWebhook(ctx, payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			ErrorResponse(c, http.StatusBadRequest, ErrCodeInvalidSignature, "invalid signature")
			return
		}
		if errors.Is(err, service.ErrPaymentUnavailable) {
			ErrorResponse(c, http.StatusServiceUnavailable, ErrCodePaymentUnavailable, "payment provider unavailable")
			return
		}
		logrus.WithError(err).Error("payment webhook processing failed")
		InternalError(c, "webhook processing failed")
		return
	}
	c.JSON(http.StatusOK, entity.WebhookAck{Received: true, Status: result.Status})
}
