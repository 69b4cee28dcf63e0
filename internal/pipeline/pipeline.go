// Package pipeline composes the end-to-end processing flow for one source
// video: resolve and sign the source, invoke the media backend, transcribe,
// upload clips, cluster near-duplicates and report through the webhook.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/clipline/internal/cluster"
	"github.com/your-org/clipline/internal/config"
	"github.com/your-org/clipline/internal/container"
	"github.com/your-org/clipline/internal/models"
	"github.com/your-org/clipline/internal/observability"
	"github.com/your-org/clipline/internal/storage"
	"github.com/your-org/clipline/internal/transcribe"
)

type ObjectStore interface {
	StatObject(ctx context.Context, key string) (int64, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type URLSigner interface {
	Sign(key string, expiresIn int, now time.Time) (string, error)
}

type MediaBackend interface {
	Process(ctx context.Context, params container.ProcessParams, streaming bool) (*models.ContainerResponse, error)
}

type Transcriber interface {
	Configured() bool
	Transcribe(ctx context.Context, audio []byte, filename string) (*models.TranscriptResult, error)
}

type Clusterer interface {
	Detect(ctx context.Context, clips []cluster.ClipText) ([]models.ClipEmbedding, []models.ClipGroup, error)
}

type Notifier interface {
	Notify(ctx context.Context, url string, payload any) bool
}

// Result is the synchronous summary returned by POST /process.
type Result struct {
	JobID      string
	SourceID   string
	TotalClips int
}

type Pipeline struct {
	store       ObjectStore
	signer      URLSigner
	backend     MediaBackend
	transcriber Transcriber
	clusterer   Clusterer // nil when no embedding credential is configured
	notifier    Notifier
	cfg         config.PipelineConfig
	now         func() time.Time
}

func New(store ObjectStore, signer URLSigner, backend MediaBackend, transcriber Transcriber,
	clusterer Clusterer, notifier Notifier, cfg config.PipelineConfig) *Pipeline {
	return &Pipeline{
		store:       store,
		signer:      signer,
		backend:     backend,
		transcriber: transcriber,
		clusterer:   clusterer,
		notifier:    notifier,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Run executes the synchronous path: verify the source object, sign a
// download URL and process. Object-not-found is fatal and reported both
// over the webhook and to the caller.
func (p *Pipeline) Run(ctx context.Context, req models.ProcessRequest) (*Result, error) {
	if _, err := p.store.StatObject(ctx, req.VideoKey); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.Error("source video missing", "source_id", req.SourceID, "video_key", req.VideoKey)
			p.notifyFailure(ctx, req, "video not found in storage")
			return nil, err
		}
		return nil, fmt.Errorf("stat video %s: %w", req.VideoKey, err)
	}

	videoURL, err := p.signer.Sign(req.VideoKey, p.cfg.SignExpirySync, p.now())
	if err != nil {
		return nil, fmt.Errorf("sign video url: %w", err)
	}

	return p.run(ctx, req, videoURL, false)
}

// RunQueued executes the async path for a dequeued message. The URL was
// signed at enqueue time and routing was already decided.
func (p *Pipeline) RunQueued(ctx context.Context, msg models.QueueMessage) error {
	_, err := p.run(ctx, msg.ProcessRequest, msg.VideoURL, msg.UseStreaming)
	return err
}

func (p *Pipeline) run(ctx context.Context, req models.ProcessRequest, videoURL string, streaming bool) (*Result, error) {
	params := container.ProcessParams{
		SourceID:        req.SourceID,
		VideoURL:        videoURL,
		MinClipDuration: orDefault(req.MinClipDuration, p.cfg.MinClipDuration),
		MaxClipDuration: orDefault(req.MaxClipDuration, p.cfg.MaxClipDuration),
		MinSceneLength:  orDefault(req.MinSceneLength, p.cfg.MinSceneLength),
	}

	start := p.now()
	resp, err := p.backend.Process(ctx, params, streaming)
	observability.PipelineStageDuration.WithLabelValues("container").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Error("media backend failed", "source_id", req.SourceID, "stage", "container", "error", err)
		p.notifyFailure(ctx, req, err.Error())
		return nil, fmt.Errorf("process video: %w", err)
	}

	transcript := p.transcribeAudio(ctx, req.SourceID, resp)

	uploaded, texts, sourceThumbURL, err := p.uploadClips(ctx, req.SourceID, resp.Clips, transcript)
	if err != nil {
		p.notifyFailure(ctx, req, err.Error())
		return nil, err
	}

	embeddings, groups := p.clusterClips(ctx, req.SourceID, texts)

	payload := models.WebhookPayload{
		SourceID:           req.SourceID,
		Status:             models.StatusCompleted,
		Clips:              uploaded,
		DurationSeconds:    resp.TotalDuration,
		SourceThumbnailURL: sourceThumbURL,
		Embeddings:         embeddings,
		Groups:             groups,
	}
	// Delivery failure is logged inside the notifier and does not change
	// the pipeline's own outcome.
	p.notifier.Notify(ctx, req.WebhookURL, payload)

	slog.Info("pipeline complete",
		"source_id", req.SourceID,
		"job_id", resp.JobID,
		"clips", len(uploaded),
		"groups", len(groups),
	)
	return &Result{JobID: resp.JobID, SourceID: req.SourceID, TotalClips: len(uploaded)}, nil
}

// transcribeAudio runs the speech-to-text adapter when audio came back and
// a credential is configured. Failure is soft: alignment is skipped, the
// pipeline continues.
func (p *Pipeline) transcribeAudio(ctx context.Context, sourceID string, resp *models.ContainerResponse) *models.TranscriptResult {
	if resp.AudioBase64 == "" || p.transcriber == nil || !p.transcriber.Configured() {
		return nil
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		slog.Warn("decode audio", "source_id", sourceID, "stage", "transcription", "error", err)
		return nil
	}

	start := p.now()
	transcript, err := p.transcriber.Transcribe(ctx, audio, sourceID+".mp3")
	observability.PipelineStageDuration.WithLabelValues("transcription").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("transcription failed, continuing without alignment",
			"source_id", sourceID, "stage", "transcription", "error", err)
		return nil
	}
	return transcript
}

// uploadClips stores every clip (and thumbnail) under the deterministic key
// scheme and aligns each against the global transcript. Uploads run
// sequentially.
func (p *Pipeline) uploadClips(ctx context.Context, sourceID string, clips []models.ContainerClip,
	transcript *models.TranscriptResult) ([]models.UploadedClip, []cluster.ClipText, string, error) {

	detectionMethod := "scene"
	if transcript != nil && len(transcript.Segments) > 0 {
		detectionMethod = "hybrid"
	}

	start := p.now()
	defer func() {
		observability.PipelineStageDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())
	}()

	uploaded := make([]models.UploadedClip, 0, len(clips))
	var texts []cluster.ClipText
	var sourceThumbURL string

	for _, clip := range clips {
		video, err := base64.StdEncoding.DecodeString(clip.VideoBase64)
		if err != nil {
			return nil, nil, "", fmt.Errorf("decode clip %s video: %w", clip.ClipID, err)
		}

		fileKey := fmt.Sprintf("clips/%s/%s.mp4", sourceID, clip.ClipID)
		fileURL, err := p.store.PutObject(ctx, fileKey, video, "video/mp4")
		if err != nil {
			return nil, nil, "", fmt.Errorf("upload clip %s: %w", clip.ClipID, err)
		}

		var thumbURL string
		if clip.ThumbnailBase64 != "" {
			thumb, err := base64.StdEncoding.DecodeString(clip.ThumbnailBase64)
			if err != nil {
				slog.Warn("decode thumbnail", "source_id", sourceID, "clip_id", clip.ClipID, "error", err)
			} else {
				thumbKey := fmt.Sprintf("clips/%s/%s_thumb.jpg", sourceID, clip.ClipID)
				thumbURL, err = p.store.PutObject(ctx, thumbKey, thumb, "image/jpeg")
				if err != nil {
					slog.Warn("upload thumbnail", "source_id", sourceID, "clip_id", clip.ClipID, "error", err)
					thumbURL = ""
				}
			}
		}
		if sourceThumbURL == "" && thumbURL != "" {
			sourceThumbURL = thumbURL
		}

		var segText *string
		if transcript != nil {
			segText = transcribe.Align(transcript.Segments, clip.StartTime, clip.EndTime)
		}
		if segText != nil {
			texts = append(texts, cluster.ClipText{ClipID: clip.ClipID, Text: *segText})
		}

		uploaded = append(uploaded, models.UploadedClip{
			ClipID:            clip.ClipID,
			StartTime:         clip.StartTime,
			EndTime:           clip.EndTime,
			Duration:          clip.Duration,
			FileKey:           fileKey,
			FileURL:           fileURL,
			ThumbnailURL:      thumbURL,
			TranscriptSegment: segText,
			DetectionMethod:   detectionMethod,
		})
	}

	return uploaded, texts, sourceThumbURL, nil
}

// clusterClips runs duplicate detection when an embedding credential is
// configured and at least two clips carry transcript text. Failure is soft.
func (p *Pipeline) clusterClips(ctx context.Context, sourceID string, texts []cluster.ClipText) ([]models.ClipEmbedding, []models.ClipGroup) {
	if p.clusterer == nil || len(texts) < 2 {
		return nil, nil
	}

	start := p.now()
	embeddings, groups, err := p.clusterer.Detect(ctx, texts)
	observability.PipelineStageDuration.WithLabelValues("clustering").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("clustering failed, continuing without groups",
			"source_id", sourceID, "stage", "clustering", "error", err)
		return nil, nil
	}
	return embeddings, groups
}

func (p *Pipeline) notifyFailure(ctx context.Context, req models.ProcessRequest, msg string) {
	p.notifier.Notify(ctx, req.WebhookURL, models.WebhookPayload{
		SourceID:     req.SourceID,
		Status:       models.StatusFailed,
		ErrorMessage: msg,
	})
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
