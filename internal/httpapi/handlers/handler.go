package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/garywanggali/think-first/internal/artifact"
	"github.com/garywanggali/think-first/internal/common"
	"github.com/garywanggali/think-first/internal/config"
	"github.com/garywanggali/think-first/internal/dialogue"
	"github.com/garywanggali/think-first/internal/httpapi/middleware"
	"github.com/garywanggali/think-first/internal/media"
)

// Uploader stores an uploaded image and returns where it lives.
type Uploader interface {
	Save(r io.Reader, filename string) (artifact.Image, error)
}

var _ Uploader = (*media.Local)(nil)

// JobPublisher hands a queued turn to the worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Handler struct {
	DB     *gorm.DB
	Cfg    config.Config
	Log    *zap.Logger
	Svc    *dialogue.Service
	Media  Uploader
	Rabbit JobPublisher // nil disables async turns
}

func NewHandler(db *gorm.DB, cfg config.Config, log *zap.Logger, svc *dialogue.Service, m Uploader, rabbit JobPublisher) *Handler {
	return &Handler{DB: db, Cfg: cfg, Log: log, Svc: svc, Media: m, Rabbit: rabbit}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

// failErr maps service errors onto the envelope. what names the missing
// resource in 404 messages.
func (h *Handler) failErr(c *gin.Context, what string, err error) {
	switch {
	case errors.Is(err, dialogue.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40400, what+" not found")
	case errors.Is(err, dialogue.ErrInvalidRequest):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
	case errors.Is(err, media.ErrTooLarge):
		common.Fail(c, http.StatusRequestEntityTooLarge, 10005, "image too large")
	case errors.Is(err, media.ErrUnsupportedType):
		common.Fail(c, http.StatusBadRequest, 10006, "unsupported image type")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		common.Fail(c, http.StatusServiceUnavailable, 50300, "request cancelled")
	default:
		h.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
