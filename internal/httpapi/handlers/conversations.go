package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garywanggali/think-first/internal/common"
	"github.com/garywanggali/think-first/internal/dialogue"
	"github.com/garywanggali/think-first/internal/media"
)

func (h *Handler) StartConversation(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	conv, created, err := h.Svc.StartConversation(c.Request.Context(), uid)
	if err != nil {
		h.failErr(c, "conversation", err)
		return
	}
	common.OK(c, gin.H{"conversation": conv, "created": created})
}

func (h *Handler) ListConversations(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	convs, err := h.Svc.ListConversations(c.Request.Context(), uid, limit)
	if err != nil {
		h.failErr(c, "conversation", err)
		return
	}
	common.OK(c, gin.H{"conversations": convs})
}

func (h *Handler) GetConversation(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	view, err := h.Svc.GetConversation(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.failErr(c, "conversation", err)
		return
	}
	common.OK(c, view)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := h.Svc.DeleteConversation(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.failErr(c, "conversation", err)
		return
	}
	common.OK(c, gin.H{"deleted": true})
}

type turnReq struct {
	Text string `json:"text"`
}

// readTurn accepts JSON {text} or a multipart form with text and image.
func (h *Handler) readTurn(c *gin.Context) (dialogue.TurnInput, bool) {
	if c.ContentType() != "multipart/form-data" {
		var req turnReq
		if err := c.ShouldBindJSON(&req); err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
			return dialogue.TurnInput{}, false
		}
		return dialogue.TurnInput{Text: req.Text}, true
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.MaxUploadBytes+1<<20)
	in := dialogue.TurnInput{Text: c.PostForm("text")}

	fh, err := c.FormFile("image")
	if err == http.ErrMissingFile {
		return in, true
	}
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10008, "invalid multipart form")
		return in, false
	}
	f, err := fh.Open()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10008, "invalid multipart form")
		return in, false
	}
	defer f.Close()

	img, err := h.Media.Save(f, fh.Filename)
	if err != nil {
		h.failErr(c, "image", err)
		return in, false
	}
	in.Image = &img
	return in, true
}

func (h *Handler) SubmitTurn(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	in, ok := h.readTurn(c)
	if !ok {
		return
	}
	out, err := h.Svc.ProcessTurn(c.Request.Context(), uid, c.Param("id"), in)
	if err != nil {
		h.failErr(c, "conversation", err)
		return
	}
	common.OK(c, out)
}

func (h *Handler) SubmitTurnAsync(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async turns disabled")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}

	in, ok := h.readTurn(c)
	if !ok {
		return
	}
	var imageRef string
	if in.Image != nil {
		imageRef = in.Image.Ref
	}

	convID := c.Param("id")
	j, created, err := h.Svc.EnqueueTurn(c.Request.Context(), uid, convID, in.Text, imageRef, idempoKey)
	if err != nil {
		h.failErr(c, "conversation", err)
		return
	}

	// enqueue only when a new job was created
	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
			h.Log.Error("publish turn job",
				zap.Uint64("user_id", uid),
				zap.String("conversation_id", convID),
				zap.String("job_id", j.ID),
				zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}
	common.OK(c, gin.H{"job_id": j.ID, "created": created})
}

func (h *Handler) Retry(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	out, err := h.Svc.Retry(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.failErr(c, "conversation", err)
		return
	}
	common.OK(c, out)
}

type rollbackReq struct {
	InteractionID uint64 `json:"interaction_id" binding:"required"`
}

func (h *Handler) Rollback(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req rollbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "interaction_id required")
		return
	}
	conv, err := h.Svc.Rollback(c.Request.Context(), uid, c.Param("id"), req.InteractionID)
	if err != nil {
		h.failErr(c, "interaction", err)
		return
	}
	common.OK(c, gin.H{"status": "success", "conversation": conv})
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.Svc.GetJob(c.Request.Context(), uid, jobID)
	if err != nil {
		h.failErr(c, "job", err)
		return
	}
	common.OK(c, gin.H{
		"job": gin.H{
			"id":                    j.ID,
			"conversation_id":       j.ConversationID,
			"status":                j.Status,
			"result_interaction_id": j.ResultInteractionID,
			"error":                 j.Error,
			"created_at":            j.CreatedAt,
			"updated_at":            j.UpdatedAt,
		},
	})
}
