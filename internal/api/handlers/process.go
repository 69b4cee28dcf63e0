package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/clipline/internal/config"
	"github.com/your-org/clipline/internal/models"
	"github.com/your-org/clipline/internal/observability"
	"github.com/your-org/clipline/internal/pipeline"
	"github.com/your-org/clipline/internal/storage"
	"github.com/your-org/clipline/pkg/dto"
)

type ProcessPipeline interface {
	Run(ctx context.Context, req models.ProcessRequest) (*pipeline.Result, error)
}

type ObjectStatter interface {
	StatObject(ctx context.Context, key string) (int64, error)
}

type URLSigner interface {
	Sign(key string, expiresIn int, now time.Time) (string, error)
}

type JobPublisher interface {
	PublishJob(ctx context.Context, msg models.QueueMessage) error
}

type ProcessHandler struct {
	pipeline ProcessPipeline
	store    ObjectStatter
	signer   URLSigner
	producer JobPublisher
	cfg      config.PipelineConfig
	now      func() time.Time
}

func NewProcessHandler(p ProcessPipeline, store ObjectStatter, signer URLSigner,
	producer JobPublisher, cfg config.PipelineConfig) *ProcessHandler {
	return &ProcessHandler{
		pipeline: p,
		store:    store,
		signer:   signer,
		producer: producer,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Process runs the full pipeline synchronously and returns its summary.
func (h *ProcessHandler) Process(c *gin.Context) {
	var req models.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.pipeline.Run(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found in storage"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.ProcessResponse{
		JobID:      res.JobID,
		SourceID:   res.SourceID,
		Status:     models.StatusCompleted,
		TotalClips: res.TotalClips,
	})
}

// ProcessAsync validates the source, signs a download URL and enqueues the
// job. It never blocks on processing.
func (h *ProcessHandler) ProcessAsync(c *gin.Context) {
	var req models.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	size, err := h.store.StatObject(c.Request.Context(), req.VideoKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found in storage"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Strictly greater-than: a file of exactly the threshold size takes
	// the non-streaming route.
	useStreaming := size > h.cfg.LargeFileThreshold

	expiry := h.cfg.SignExpirySync
	if useStreaming {
		expiry = h.cfg.SignExpiryStream
	}

	now := h.now()
	videoURL, err := h.signer.Sign(req.VideoKey, expiry, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	msg := models.QueueMessage{
		ProcessRequest: req,
		VideoURL:       videoURL,
		SubmittedAt:    now,
		UseStreaming:   useStreaming,
	}
	if err := h.producer.PublishJob(c.Request.Context(), msg); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable"})
		return
	}
	observability.JobsQueued.Inc()

	c.JSON(http.StatusAccepted, dto.ProcessAsyncResponse{
		Status:       "queued",
		UseStreaming: useStreaming,
		FileSizeMB:   math.Round(float64(size)/(1024*1024)*100) / 100,
	})
}
