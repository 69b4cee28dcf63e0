// Package container manages the backing media-processing process: cold
// start, readiness polling, and request forwarding. One actor goroutine
// owns all state per instance key, so concurrent callers are serialized
// and a cold start can never be issued twice.
package container

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/your-org/clipline/internal/config"
	"github.com/your-org/clipline/internal/models"
	"github.com/your-org/clipline/internal/observability"
)

// ErrUnavailable is returned when the container cannot be started,
// never becomes ready, or keeps failing after bounded forward retries.
// Handlers surface it as 503.
var ErrUnavailable = errors.New("container unavailable")

type State int

const (
	StateNotStarted State = iota
	StateStarting
	StatePollingReady
	StateReady
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StatePollingReady:
		return "polling_ready"
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Launcher starts the backing process and reports whether it is running.
type Launcher interface {
	Start(ctx context.Context) error
	Running() bool
}

// Response is a fully buffered reply from the backing process.
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// ProcessParams is the body sent to /process-url and /process-streaming.
type ProcessParams struct {
	SourceID        string  `json:"source_id"`
	VideoURL        string  `json:"video_url"`
	MinClipDuration float64 `json:"min_clip_duration,omitempty"`
	MaxClipDuration float64 `json:"max_clip_duration,omitempty"`
	MinSceneLength  float64 `json:"min_scene_length,omitempty"`
}

type request struct {
	ctx         context.Context
	method      string
	path        string
	body        []byte
	contentType string
	done        chan result
}

type result struct {
	resp *Response
	err  error
}

// Manager routes requests to per-key instances.
type Manager struct {
	cfg        config.ContainerConfig
	launcherFn func(key string) Launcher

	mu        sync.Mutex
	instances map[string]*instance
}

func NewManager(cfg config.ContainerConfig, launcherFn func(key string) Launcher) *Manager {
	return &Manager{
		cfg:        cfg,
		launcherFn: launcherFn,
		instances:  make(map[string]*instance),
	}
}

// Forward sends a request through the configured default instance.
func (m *Manager) Forward(ctx context.Context, method, path string, body []byte, contentType string) (*Response, error) {
	return m.ForwardTo(ctx, m.cfg.InstanceKey, method, path, body, contentType)
}

// ForwardTo sends a request through the actor for the given instance key.
func (m *Manager) ForwardTo(ctx context.Context, key, method, path string, body []byte, contentType string) (*Response, error) {
	inst := m.instance(key)

	req := &request{
		ctx:         ctx,
		method:      method,
		path:        path,
		body:        body,
		contentType: contentType,
		done:        make(chan result, 1),
	}

	select {
	case inst.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.done:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Process invokes the media backend for one source video, picking the
// streaming route for large files.
func (m *Manager) Process(ctx context.Context, params ProcessParams, streaming bool) (*models.ContainerResponse, error) {
	path := "/process-url"
	if streaming {
		path = "/process-streaming"
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal process params: %w", err)
	}

	resp, err := m.Forward(ctx, http.MethodPost, path, body, "application/json")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("container %s returned status %d: %s", path, resp.StatusCode, resp.Body)
	}

	var out models.ContainerResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode container response: %w", err)
	}
	return &out, nil
}

func (m *Manager) instance(key string) *instance {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[key]
	if !ok {
		inst = &instance{
			key:      key,
			cfg:      m.cfg,
			launcher: m.launcherFn(key),
			client:   &http.Client{Timeout: m.cfg.RequestTimeout},
			requests: make(chan *request),
		}
		go inst.run()
		m.instances[key] = inst
	}
	return inst
}

// instance is the actor. Only its run goroutine touches state.
type instance struct {
	key      string
	cfg      config.ContainerConfig
	launcher Launcher
	client   *http.Client
	requests chan *request
	state    State
}

func (i *instance) run() {
	for req := range i.requests {
		res := i.handle(req)
		req.done <- res
	}
}

func (i *instance) handle(req *request) result {
	if i.state != StateReady {
		if err := i.ensureReady(req.ctx); err != nil {
			return result{err: err}
		}
	}

	resp, err := i.forward(req)
	return result{resp: resp, err: err}
}

// ensureReady drives NotStarted → Starting → PollingReady → Ready.
// An Unavailable instance is given a fresh cold-start attempt on the next
// request rather than being wedged forever.
func (i *instance) ensureReady(ctx context.Context) error {
	if !i.launcher.Running() {
		i.state = StateStarting
		slog.Info("starting container", "key", i.key)
		if err := i.launcher.Start(ctx); err != nil {
			i.state = StateUnavailable
			return fmt.Errorf("start container %s: %v: %w", i.key, err, ErrUnavailable)
		}
		observability.ContainerStarts.Inc()
	}

	i.state = StatePollingReady
	for attempt := 1; attempt <= i.cfg.ReadyAttempts; attempt++ {
		if i.probeReady(ctx) {
			i.state = StateReady
			slog.Info("container ready", "key", i.key, "attempts", attempt)
			return nil
		}
		select {
		case <-ctx.Done():
			i.state = StateUnavailable
			return ctx.Err()
		case <-time.After(i.cfg.ReadyInterval):
		}
	}

	i.state = StateUnavailable
	slog.Error("container never became ready", "key", i.key, "attempts", i.cfg.ReadyAttempts)
	return fmt.Errorf("container %s not ready after %d probes: %w", i.key, i.cfg.ReadyAttempts, ErrUnavailable)
}

func (i *instance) probeReady(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, i.cfg.BaseURL+"/ready", nil)
	if err != nil {
		return false
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// forward relays one request, retrying transport failures up to the
// configured bound. HTTP error statuses are the backend's answer and are
// returned as-is.
func (i *instance) forward(req *request) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= i.cfg.ForwardAttempts; attempt++ {
		if attempt > 1 {
			observability.ContainerForwardRetries.Inc()
			slog.Warn("retrying container forward",
				"key", i.key, "path", req.path, "attempt", attempt, "error", lastErr)
			select {
			case <-req.ctx.Done():
				return nil, req.ctx.Err()
			case <-time.After(i.cfg.ForwardDelay):
			}
		}

		httpReq, err := http.NewRequestWithContext(req.ctx, req.method,
			i.cfg.BaseURL+req.path, bytes.NewReader(req.body))
		if err != nil {
			return nil, fmt.Errorf("build forward request: %w", err)
		}
		if req.contentType != "" {
			httpReq.Header.Set("Content-Type", req.contentType)
		}

		resp, err := i.client.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		return &Response{
			StatusCode:  resp.StatusCode,
			Body:        body,
			ContentType: resp.Header.Get("Content-Type"),
		}, nil
	}

	return nil, fmt.Errorf("forward %s %s after %d attempts: %v: %w",
		req.method, req.path, i.cfg.ForwardAttempts, lastErr, ErrUnavailable)
}
