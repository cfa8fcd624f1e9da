package api

import (
	"net/http"

	"interior/internal/llm"

	"github.com/gin-gonic/gin"
)

func (h *HTTPHandler) ListStyles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"styles":     llm.Styles(),
		"room_types": llm.RoomTypes(),
	})
}
