package api

import (
	"net/http"
	"strings"

	"interior/internal/auth"
	"interior/internal/config"
	"interior/internal/model"
	"interior/internal/service"
	"interior/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services 聚合 HTTP 层依赖的服务。
type Services struct {
	Auth       *service.AuthService
	Generation *service.GenerationService
	Tracking   *service.TrackingService
	Payment    *service.PaymentService
	Credits    *service.CreditService
	Trial      *service.TrialService
}

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg         config.Config
	repo        model.Repository
	authManager *auth.Manager
	services    Services
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, authManager *auth.Manager, services Services) *HTTPHandler {
	return &HTTPHandler{
		cfg:         cfg,
		repo:        repo,
		authManager: authManager,
		services:    services,
	}
}

// Router 组装全部路由。store 为本地存储时挂载静态文件目录。
func (h *HTTPHandler) Router(store storage.Storage) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware())
	r.Use(MetricsMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.GET("/me", h.AuthMiddleware(), h.Me)

	apiGroup.GET("/styles", h.ListStyles)

	trial := apiGroup.Group("/trial")
	trial.POST("/generate", h.TrialGenerate)
	trial.GET("/status/:requestId", h.TrialStatus)

	apiGroup.POST("/webhooks/stripe", h.StripeWebhook)

	protected := apiGroup.Group("")
	protected.Use(h.AuthMiddleware())

	generations := protected.Group("/generations")
	generations.POST("", h.CreateGeneration)
	generations.GET("", h.ListGenerations)
	generations.GET("/:id", h.GetGeneration)
	generations.GET("/:id/status", h.GenerationStatus)
	generations.POST("/:id/hd/checkout", h.CreateHDCheckout)
	generations.POST("/:id/hd/unlock", h.UnlockHD)

	protected.GET("/credits", h.GetCredits)
	protected.POST("/credits/checkout", h.CreateCreditsCheckout)

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		publicPrefix := normalisePublicBase(h.cfg.StoragePublicBaseURL)
		if !strings.HasPrefix(publicPrefix, "http://") && !strings.HasPrefix(publicPrefix, "https://") {
			r.Static(publicPrefix, localProvider.LocalBaseDir())
		}
	}

	return r
}

// normalisePublicBase 规范化公共 URL 基础路径
func normalisePublicBase(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = "/files"
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}
