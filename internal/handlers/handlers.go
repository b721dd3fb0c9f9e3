package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/face-match/internal/audit"
	"github.com/example/face-match/internal/capture"
	"github.com/example/face-match/internal/locale"
	"github.com/example/face-match/internal/matcher"
	"github.com/example/face-match/internal/presenter"
	"github.com/example/face-match/internal/repository"
	"github.com/example/face-match/internal/session"
)

// AuditReader is the read side of the submission audit.
type AuditReader interface {
	GetSubmission(ctx context.Context, requestID string) (*repository.SubmissionLog, error)
	GetMetricsSummary(ctx context.Context) (*audit.MetricsSummary, error)
}

// Handler serves the capture workflow API.
type Handler struct {
	registry    *session.Registry
	locales     *locale.Store
	audit       AuditReader
	logger      *zap.Logger
	waitTimeout time.Duration
}

// NewHandler wires the HTTP layer. auditReader may be nil when auditing is disabled.
func NewHandler(registry *session.Registry, locales *locale.Store, auditReader AuditReader, waitTimeout time.Duration, logger *zap.Logger) *Handler {
	if waitTimeout <= 0 {
		waitTimeout = 35 * time.Second
	}
	return &Handler{
		registry:    registry,
		locales:     locales,
		audit:       auditReader,
		logger:      logger.Named("handlers"),
		waitTimeout: waitTimeout,
	}
}

type sessionResponse struct {
	SessionID  string              `json:"session_id"`
	Generation uint64              `json:"generation"`
	RequestID  string              `json:"request_id,omitempty"`
	View       presenter.ViewModel `json:"view"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, h *Handler, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.registry.Len()})
	})

	sessions := router.Group("/sessions")
	sessions.POST("", h.createSession)
	sessions.GET("/:id", h.getSession)
	sessions.DELETE("/:id", h.deleteSession)
	sessions.POST("/:id/camera", h.requestCamera)
	sessions.POST("/:id/shutter", h.shutter)
	sessions.POST("/:id/upload", h.upload)
	sessions.POST("/:id/cancel", h.cancel)
	sessions.POST("/:id/reset", h.reset)

	router.GET("/locale", h.getLocale)
	router.PUT("/locale", h.setLocale)
	router.GET("/locale/negotiate", h.negotiateLocale)

	if h.audit != nil {
		operators := router.Group("/", authMiddleware)
		operators.GET("/submissions/:id", h.getSubmission)
		operators.GET("/metrics", h.getMetrics)
	}
}

func (h *Handler) createSession(c *gin.Context) {
	ctrl := h.registry.Create()
	c.JSON(http.StatusCreated, h.render(ctrl, ""))
}

func (h *Handler) getSession(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if c.Query("wait") == "true" && !h.wait(c, ctrl) {
		return
	}
	c.JSON(http.StatusOK, h.render(ctrl, ""))
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.registry.Delete(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) requestCamera(c *gin.Context) {
	h.trigger(c, func(ctrl *capture.Controller) error { return ctrl.RequestCamera() })
}

func (h *Handler) cancel(c *gin.Context) {
	h.trigger(c, func(ctrl *capture.Controller) error { return ctrl.Cancel() })
}

func (h *Handler) reset(c *gin.Context) {
	h.trigger(c, func(ctrl *capture.Controller) error { return ctrl.Reset() })
}

func (h *Handler) upload(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	upload, err := readImage(c, true)
	if err != nil {
		h.writeUploadError(c, err)
		return
	}

	ticket, err := ctrl.SelectFile(upload.data, upload.contentType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respondSubmission(c, ctrl, ticket)
}

func (h *Handler) shutter(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	frame, err := readImage(c, false)
	if err != nil {
		h.writeUploadError(c, err)
		return
	}

	ticket, submitted, err := ctrl.Shutter(capture.FrameFunc(func() ([]byte, string, bool) {
		return frame.data, frame.contentType, len(frame.data) > 0
	}))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !submitted {
		c.JSON(http.StatusOK, h.render(ctrl, ""))
		return
	}
	h.respondSubmission(c, ctrl, ticket)
}

func (h *Handler) respondSubmission(c *gin.Context, ctrl *capture.Controller, ticket capture.Ticket) {
	if c.Query("wait") == "true" {
		if !h.wait(c, ctrl) {
			return
		}
		c.JSON(http.StatusOK, h.render(ctrl, ticket.RequestID))
		return
	}
	c.JSON(http.StatusAccepted, h.render(ctrl, ticket.RequestID))
}

func (h *Handler) trigger(c *gin.Context, fn func(*capture.Controller) error) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := fn(ctrl); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.render(ctrl, ""))
}

func (h *Handler) wait(c *gin.Context, ctrl *capture.Controller) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.waitTimeout)
	defer cancel()
	if err := ctrl.Wait(ctx); err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "submission still in flight", "view": h.render(ctrl, "").View})
		return false
	}
	return true
}

func (h *Handler) lookup(c *gin.Context) (*capture.Controller, bool) {
	ctrl, err := h.registry.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return ctrl, true
}

func (h *Handler) render(ctrl *capture.Controller, requestID string) sessionResponse {
	state, generation := ctrl.Snapshot()
	return sessionResponse{
		SessionID:  ctrl.ID(),
		Generation: generation,
		RequestID:  requestID,
		View:       presenter.Present(state, h.locales.Current(), h.locales.Messages()),
	}
}

func (h *Handler) getLocale(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"locale": h.locales.Current(), "supported": locale.Supported()})
}

type setLocaleRequest struct {
	Locale string `json:"locale" binding:"required"`
}

func (h *Handler) setLocale(c *gin.Context) {
	var req setLocaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "locale is required"})
		return
	}
	loc, err := locale.Parse(req.Locale)
	if err == nil {
		err = h.locales.Set(loc)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "supported": locale.Supported()})
		return
	}
	h.logger.Info("locale changed", zap.Stringer("locale", loc))
	c.JSON(http.StatusOK, gin.H{"locale": loc})
}

func (h *Handler) negotiateLocale(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"locale": locale.Match(c.GetHeader("Accept-Language"))})
}

func (h *Handler) getSubmission(c *gin.Context) {
	log, err := h.audit.GetSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, redis.Nil) {
			c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
			return
		}
		h.logger.Error("submission lookup failed", zap.Error(err), zap.String("request_id", c.Param("id")))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submission lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"request_id":       log.RequestID,
		"session_id":       log.SessionID,
		"generation":       log.Generation,
		"outcome":          log.Outcome,
		"candidate_count":  log.CandidateCount,
		"top_candidate_id": log.TopCandidateID,
		"top_score":        log.TopScore,
		"latency_ms":       log.LatencyMs,
		"details":          log.Details,
		"created_at":       log.CreatedAt,
	})
}

func (h *Handler) getMetrics(c *gin.Context) {
	summary, err := h.audit.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("metrics aggregation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metrics unavailable"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, capture.ErrSubmissionInFlight), errors.Is(err, capture.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, capture.ErrClosed):
		status = http.StatusGone
	case errors.Is(err, matcher.ErrEmptyImage):
		status = http.StatusBadRequest
	default:
		h.logger.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
