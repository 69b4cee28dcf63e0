package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/your-org/clipline/internal/cluster"
	"github.com/your-org/clipline/internal/config"
	"github.com/your-org/clipline/internal/container"
	"github.com/your-org/clipline/internal/models"
	"github.com/your-org/clipline/internal/storage"
)

type fakeStore struct {
	sizes map[string]int64
	puts  []string
}

func (f *fakeStore) StatObject(_ context.Context, key string) (int64, error) {
	size, ok := f.sizes[key]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return size, nil
}

func (f *fakeStore) PutObject(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.puts = append(f.puts, key)
	return "https://store.example/bucket/" + key, nil
}

type fakeSigner struct{}

func (fakeSigner) Sign(key string, expiresIn int, _ time.Time) (string, error) {
	return "https://signed.example/" + key, nil
}

type fakeBackend struct {
	resp      *models.ContainerResponse
	err       error
	gotParams container.ProcessParams
	streaming bool
}

func (f *fakeBackend) Process(_ context.Context, params container.ProcessParams, streaming bool) (*models.ContainerResponse, error) {
	f.gotParams = params
	f.streaming = streaming
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeTranscriber struct {
	result *models.TranscriptResult
	err    error
	called bool
}

func (f *fakeTranscriber) Configured() bool { return true }

func (f *fakeTranscriber) Transcribe(context.Context, []byte, string) (*models.TranscriptResult, error) {
	f.called = true
	return f.result, f.err
}

type fakeClusterer struct {
	gotTexts   []cluster.ClipText
	embeddings []models.ClipEmbedding
	groups     []models.ClipGroup
	err        error
}

func (f *fakeClusterer) Detect(_ context.Context, texts []cluster.ClipText) ([]models.ClipEmbedding, []models.ClipGroup, error) {
	f.gotTexts = texts
	return f.embeddings, f.groups, f.err
}

type fakeNotifier struct {
	payloads []models.WebhookPayload
	urls     []string
}

func (f *fakeNotifier) Notify(_ context.Context, url string, payload any) bool {
	f.urls = append(f.urls, url)
	f.payloads = append(f.payloads, payload.(models.WebhookPayload))
	return true
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func twoClipResponse() *models.ContainerResponse {
	return &models.ContainerResponse{
		JobID:         "job-1",
		TotalDuration: 30,
		TotalClips:    2,
		Clips: []models.ContainerClip{
			{ClipID: "c1", StartTime: 0, EndTime: 10, Duration: 10, VideoBase64: b64("v1"), ThumbnailBase64: b64("t1")},
			{ClipID: "c2", StartTime: 10, EndTime: 20, Duration: 10, VideoBase64: b64("v2")},
		},
		AudioBase64: b64("audio"),
	}
}

func testRequest() models.ProcessRequest {
	return models.ProcessRequest{
		SourceID:   "src-1",
		VideoKey:   "videos/src-1.mp4",
		WebhookURL: "https://app.example/webhook",
	}
}

func pipelineCfg() config.PipelineConfig {
	return config.PipelineConfig{
		MinClipDuration:    3,
		MaxClipDuration:    60,
		MinSceneLength:     2,
		LargeFileThreshold: 100 * 1024 * 1024,
		SignExpirySync:     3600,
		SignExpiryStream:   7200,
	}
}

func TestRunHappyPath(t *testing.T) {
	store := &fakeStore{sizes: map[string]int64{"videos/src-1.mp4": 1024}}
	backend := &fakeBackend{resp: twoClipResponse()}
	transcriber := &fakeTranscriber{result: &models.TranscriptResult{
		Text: "hello world again",
		Segments: []models.TranscriptSegment{
			{Text: "hello", Start: 1, End: 5},
			{Text: "world again", Start: 11, End: 18},
		},
	}}
	clusterer := &fakeClusterer{
		embeddings: []models.ClipEmbedding{{ClipID: "c1", Embedding: []float64{1}}},
		groups:     []models.ClipGroup{{GroupID: "g1", GroupType: models.GroupSameTopic, ClipIDs: []string{"c1", "c2"}, RepresentativeClipID: "c1"}},
	}
	notifier := &fakeNotifier{}

	p := New(store, fakeSigner{}, backend, transcriber, clusterer, notifier, pipelineCfg())

	res, err := p.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.JobID != "job-1" || res.TotalClips != 2 {
		t.Errorf("result = %+v", res)
	}

	if backend.streaming {
		t.Error("sync path used streaming route")
	}
	if !strings.HasPrefix(backend.gotParams.VideoURL, "https://signed.example/") {
		t.Errorf("backend got unsigned url %s", backend.gotParams.VideoURL)
	}

	wantKeys := []string{
		"clips/src-1/c1.mp4",
		"clips/src-1/c1_thumb.jpg",
		"clips/src-1/c2.mp4",
	}
	if len(store.puts) != len(wantKeys) {
		t.Fatalf("uploaded keys %v, want %v", store.puts, wantKeys)
	}
	for i, key := range wantKeys {
		if store.puts[i] != key {
			t.Errorf("upload %d = %s, want %s", i, store.puts[i], key)
		}
	}

	if len(clusterer.gotTexts) != 2 {
		t.Fatalf("clusterer got %d texts, want 2", len(clusterer.gotTexts))
	}

	if len(notifier.payloads) != 1 {
		t.Fatalf("got %d webhook calls, want 1", len(notifier.payloads))
	}
	payload := notifier.payloads[0]
	if payload.Status != models.StatusCompleted {
		t.Errorf("webhook status = %s", payload.Status)
	}
	if len(payload.Clips) != 2 || len(payload.Groups) != 1 || len(payload.Embeddings) != 1 {
		t.Errorf("payload clips=%d groups=%d embeddings=%d", len(payload.Clips), len(payload.Groups), len(payload.Embeddings))
	}
	if payload.SourceThumbnailURL == "" {
		t.Error("source thumbnail not derived from first clip thumbnail")
	}
	if payload.Clips[0].DetectionMethod != "hybrid" {
		t.Errorf("detection method = %s, want hybrid", payload.Clips[0].DetectionMethod)
	}
	if payload.Clips[0].TranscriptSegment == nil || *payload.Clips[0].TranscriptSegment != "hello" {
		t.Errorf("clip 1 transcript = %v", payload.Clips[0].TranscriptSegment)
	}
}

func TestRunVideoNotFound(t *testing.T) {
	store := &fakeStore{sizes: map[string]int64{}}
	backend := &fakeBackend{}
	notifier := &fakeNotifier{}

	p := New(store, fakeSigner{}, backend, &fakeTranscriber{}, nil, notifier, pipelineCfg())

	_, err := p.Run(context.Background(), testRequest())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if len(notifier.payloads) != 1 || notifier.payloads[0].Status != models.StatusFailed {
		t.Errorf("missing failure webhook: %+v", notifier.payloads)
	}
	if notifier.payloads[0].ErrorMessage == "" {
		t.Error("failure webhook missing error message")
	}
}

func TestRunBackendFailureNotifiesWebhook(t *testing.T) {
	store := &fakeStore{sizes: map[string]int64{"videos/src-1.mp4": 1024}}
	backend := &fakeBackend{err: errors.New("container unavailable")}
	notifier := &fakeNotifier{}

	p := New(store, fakeSigner{}, backend, &fakeTranscriber{}, nil, notifier, pipelineCfg())

	if _, err := p.Run(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error from backend failure")
	}
	if len(notifier.payloads) != 1 || notifier.payloads[0].Status != models.StatusFailed {
		t.Errorf("missing failure webhook: %+v", notifier.payloads)
	}
}

func TestRunTranscriptionFailureIsSoft(t *testing.T) {
	store := &fakeStore{sizes: map[string]int64{"videos/src-1.mp4": 1024}}
	backend := &fakeBackend{resp: twoClipResponse()}
	transcriber := &fakeTranscriber{err: errors.New("stt down")}
	notifier := &fakeNotifier{}

	p := New(store, fakeSigner{}, backend, transcriber, nil, notifier, pipelineCfg())

	res, err := p.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalClips != 2 {
		t.Errorf("clips = %d, want 2 despite transcription failure", res.TotalClips)
	}
	if !transcriber.called {
		t.Error("transcriber never invoked")
	}

	payload := notifier.payloads[0]
	if payload.Status != models.StatusCompleted {
		t.Errorf("webhook status = %s, want completed", payload.Status)
	}
	if payload.Clips[0].DetectionMethod != "scene" {
		t.Errorf("detection method = %s, want scene without transcript", payload.Clips[0].DetectionMethod)
	}
	if payload.Clips[0].TranscriptSegment != nil {
		t.Error("transcript segment set despite failed transcription")
	}
}

func TestRunClusteringSkippedBelowTwoTexts(t *testing.T) {
	resp := twoClipResponse()
	resp.Clips = resp.Clips[:1]
	store := &fakeStore{sizes: map[string]int64{"videos/src-1.mp4": 1024}}
	backend := &fakeBackend{resp: resp}
	transcriber := &fakeTranscriber{result: &models.TranscriptResult{
		Segments: []models.TranscriptSegment{{Text: "hello", Start: 1, End: 5}},
	}}
	clusterer := &fakeClusterer{}
	notifier := &fakeNotifier{}

	p := New(store, fakeSigner{}, backend, transcriber, clusterer, notifier, pipelineCfg())

	if _, err := p.Run(context.Background(), testRequest()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if clusterer.gotTexts != nil {
		t.Errorf("clusterer invoked with %v, want skip below 2 texts", clusterer.gotTexts)
	}
}

func TestRunClusteringFailureIsSoft(t *testing.T) {
	store := &fakeStore{sizes: map[string]int64{"videos/src-1.mp4": 1024}}
	backend := &fakeBackend{resp: twoClipResponse()}
	transcriber := &fakeTranscriber{result: &models.TranscriptResult{
		Segments: []models.TranscriptSegment{
			{Text: "hello", Start: 1, End: 5},
			{Text: "world", Start: 11, End: 18},
		},
	}}
	clusterer := &fakeClusterer{err: errors.New("embeddings down")}
	notifier := &fakeNotifier{}

	p := New(store, fakeSigner{}, backend, transcriber, clusterer, notifier, pipelineCfg())

	if _, err := p.Run(context.Background(), testRequest()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	payload := notifier.payloads[0]
	if payload.Status != models.StatusCompleted || payload.Groups != nil {
		t.Errorf("payload status=%s groups=%v, want completed without groups", payload.Status, payload.Groups)
	}
}

func TestRunQueuedUsesPresignedURLAndRouting(t *testing.T) {
	store := &fakeStore{sizes: map[string]int64{}}
	backend := &fakeBackend{resp: twoClipResponse()}
	notifier := &fakeNotifier{}

	p := New(store, fakeSigner{}, backend, &fakeTranscriber{}, nil, notifier, pipelineCfg())

	msg := models.QueueMessage{
		ProcessRequest: testRequest(),
		VideoURL:       "https://already-signed.example/videos/src-1.mp4",
		SubmittedAt:    time.Now(),
		UseStreaming:   true,
	}
	if err := p.RunQueued(context.Background(), msg); err != nil {
		t.Fatalf("RunQueued: %v", err)
	}
	if backend.gotParams.VideoURL != msg.VideoURL {
		t.Errorf("backend url = %s, want presigned url from message", backend.gotParams.VideoURL)
	}
	if !backend.streaming {
		t.Error("streaming flag not honored from queue message")
	}
}
