package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"interior/internal/entity"
	"interior/internal/service"

	"github.com/gin-gonic/gin"
)

// 提交包含上传和服务商调用，超时放宽。
const generationSubmitTimeout = 60 * time.Second

func (h *HTTPHandler) CreateGeneration(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req entity.GenerateDesignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), generationSubmitTimeout)
	defer cancel()

	resp, err := h.services.Generation.GenerateDesign(ctx, user.ID, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *HTTPHandler) ListGenerations(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var params entity.GenerationQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}
	params.Status = strings.ToLower(strings.TrimSpace(params.Status))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp, err := h.services.Generation.ListGenerations(ctx, user.ID, params)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) GetGeneration(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	id, ok := generationIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	gen, err := h.services.Generation.GetGeneration(ctx, user.ID, id)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gen)
}

// GenerationStatus 轮询接口。服务商故障一律返回 processing，只有记录不存在才报错。
func (h *HTTPHandler) GenerationStatus(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	id, ok := generationIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 45*time.Second)
	defer cancel()

	status, err := h.services.Tracking.PollGeneration(ctx, user.ID, id)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *HTTPHandler) CreateHDCheckout(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	id, ok := generationIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	resp, err := h.services.Payment.CreateHDCheckout(ctx, user.ID, id)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) UnlockHD(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	id, ok := generationIDParam(c)
	if !ok {
		return
	}

	var req entity.UnlockHDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		MissingField(c, "session_id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	gen, err := h.services.Payment.UnlockHD(ctx, user.ID, id, req.SessionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generation_id": gen.ID, "hd_unlocked": gen.HDUnlocked})
}

func generationIDParam(c *gin.Context) (uint, bool) {
	id, err := service.ParseGenerationID(c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return 0, false
	}
	return id, true
}
