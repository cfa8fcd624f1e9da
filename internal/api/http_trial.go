package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"interior/internal/entity"

	"github.com/gin-gonic/gin"
)

// TrialGenerate 匿名试用，按客户端 IP 限流。
func (h *HTTPHandler) TrialGenerate(c *gin.Context) {
	var req entity.TrialGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), generationSubmitTimeout)
	defer cancel()

	resp, err := h.services.Trial.Submit(ctx, c.ClientIP(), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *HTTPHandler) TrialStatus(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("requestId"))
	if requestID == "" {
		MissingField(c, "requestId")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 45*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, h.services.Trial.Poll(ctx, requestID))
}
