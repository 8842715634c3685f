package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/garywanggali/think-first/internal/common"
	"github.com/garywanggali/think-first/internal/httpapi/handlers"
	"github.com/garywanggali/think-first/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	cfg := h.Cfg

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(h.Log))
	r.Use(middleware.AccessLog(h.Log.Named("http")))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{"Authorization", "Content-Type", "Idempotency-Key", middleware.RequestIDHeader},
			ExposeHeaders: []string{middleware.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	if prefix := strings.TrimSuffix(cfg.MediaURL, "/"); prefix != "" && cfg.MediaRoot != "" {
		r.Static(prefix, cfg.MediaRoot)
	}

	r.GET("/ping", h.Ping)

	r.POST("/register", h.Register)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	convs := authGroup.Group("/conversations")
	convs.POST("", h.StartConversation)
	convs.GET("", h.ListConversations)
	convs.GET("/:id", h.GetConversation)
	convs.DELETE("/:id", h.DeleteConversation)
	convs.POST("/:id/turns", h.SubmitTurn)
	convs.POST("/:id/turns/async", h.SubmitTurnAsync)
	convs.POST("/:id/retry", h.Retry)
	convs.POST("/:id/rollback", h.Rollback)

	authGroup.GET("/jobs/:job_id", h.GetJob)
	return r
}
