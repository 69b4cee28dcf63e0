// Package transcribe calls the speech-to-text service and aligns the
// resulting timed segments to clip windows.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/your-org/clipline/internal/config"
	"github.com/your-org/clipline/internal/models"
)

type Client struct {
	apiKey   string
	model    string
	baseURL  string
	httpClnt *http.Client
}

func NewClient(cfg config.OpenAIConfig) *Client {
	return &Client{
		apiKey:   cfg.APIKey,
		model:    cfg.TranscriptionModel,
		baseURL:  cfg.BaseURL,
		httpClnt: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Configured reports whether a transcription credential is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Transcribe sends audio bytes to the speech-to-text endpoint and
// normalizes the verbose response into timed segments.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (*models.TranscriptResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	_ = w.WriteField("model", c.model)
	_ = w.WriteField("response_format", "verbose_json")
	_ = w.WriteField("timestamp_granularities[]", "segment")
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClnt.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call transcription api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("transcription api status %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		Duration float64 `json:"duration"`
		Segments []struct {
			Text  string  `json:"text"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}

	result := &models.TranscriptResult{
		Text:     parsed.Text,
		Language: parsed.Language,
		Duration: parsed.Duration,
		Segments: make([]models.TranscriptSegment, 0, len(parsed.Segments)),
	}
	for _, seg := range parsed.Segments {
		result.Segments = append(result.Segments, models.TranscriptSegment{
			Text:  seg.Text,
			Start: seg.Start,
			End:   seg.End,
		})
	}

	slog.Info("transcription complete",
		"segments", len(result.Segments),
		"duration", result.Duration,
		"language", result.Language,
	)
	return result, nil
}
