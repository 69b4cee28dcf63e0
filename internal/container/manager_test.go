package container

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/your-org/clipline/internal/config"
)

type fakeLauncher struct {
	mu      sync.Mutex
	starts  int
	running bool
}

func (f *fakeLauncher) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.running = true
	return nil
}

func (f *fakeLauncher) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeLauncher) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func testConfig(baseURL string) config.ContainerConfig {
	return config.ContainerConfig{
		BaseURL:         baseURL,
		InstanceKey:     "test",
		ReadyAttempts:   3,
		ReadyInterval:   time.Millisecond,
		ForwardAttempts: 3,
		ForwardDelay:    time.Millisecond,
		RequestTimeout:  5 * time.Second,
	}
}

func TestConcurrentColdStartLaunchesOnce(t *testing.T) {
	var readyCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" {
			readyCalls.Add(1)
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	launcher := &fakeLauncher{}
	mgr := NewManager(testConfig(srv.URL), func(string) Launcher { return launcher })

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = mgr.Forward(context.Background(), http.MethodGet, "/health", nil, "")
		}(n)
	}
	wg.Wait()

	for n, err := range errs {
		if err != nil {
			t.Errorf("request %d: %v", n, err)
		}
	}
	if got := launcher.startCount(); got != 1 {
		t.Errorf("launcher started %d times under concurrent cold start, want 1", got)
	}
	if readyCalls.Load() != 1 {
		t.Errorf("readiness probed %d times, want 1 (ready on first probe)", readyCalls.Load())
	}
}

func TestReadinessExhaustionSurfacesUnavailable(t *testing.T) {
	var readyCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" {
			readyCalls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	launcher := &fakeLauncher{}
	mgr := NewManager(testConfig(srv.URL), func(string) Launcher { return launcher })

	_, err := mgr.Forward(context.Background(), http.MethodGet, "/health", nil, "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if readyCalls.Load() != 3 {
		t.Errorf("readiness probed %d times, want 3 (configured bound)", readyCalls.Load())
	}
}

func TestForwardRetriesAreBounded(t *testing.T) {
	var forwardAttempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" {
			w.WriteHeader(http.StatusOK)
			return
		}
		forwardAttempts.Add(1)
		// Kill the connection so the client sees a transport error.
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	launcher := &fakeLauncher{}
	mgr := NewManager(testConfig(srv.URL), func(string) Launcher { return launcher })

	_, err := mgr.Forward(context.Background(), http.MethodPost, "/process-url", []byte(`{}`), "application/json")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if forwardAttempts.Load() != 3 {
		t.Errorf("forwarded %d times, want 3 (configured bound)", forwardAttempts.Load())
	}
}

func TestForwardPassesThroughBackendStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"job not found"}`))
	}))
	defer srv.Close()

	launcher := &fakeLauncher{}
	mgr := NewManager(testConfig(srv.URL), func(string) Launcher { return launcher })

	resp, err := mgr.Forward(context.Background(), http.MethodGet, "/jobs/missing", nil, "")
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 passed through", resp.StatusCode)
	}
	if string(resp.Body) != `{"detail":"job not found"}` {
		t.Errorf("body = %s", resp.Body)
	}
}

func TestUnavailableInstanceRecoversOnNextRequest(t *testing.T) {
	var ready atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" {
			if ready.Load() {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	launcher := &fakeLauncher{}
	mgr := NewManager(testConfig(srv.URL), func(string) Launcher { return launcher })

	if _, err := mgr.Forward(context.Background(), http.MethodGet, "/health", nil, ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("first request: err = %v, want ErrUnavailable", err)
	}

	ready.Store(true)
	if _, err := mgr.Forward(context.Background(), http.MethodGet, "/health", nil, ""); err != nil {
		t.Fatalf("second request after recovery: %v", err)
	}
}

func TestProcessDecodesContainerResponse(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" {
			w.WriteHeader(http.StatusOK)
			return
		}
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_id":"job-1","total_duration":12.5,"total_clips":1,"clips":[{"clip_id":"c1","start_time":0,"end_time":5,"duration":5,"video_base64":"QUJD"}]}`))
	}))
	defer srv.Close()

	launcher := &fakeLauncher{}
	mgr := NewManager(testConfig(srv.URL), func(string) Launcher { return launcher })

	resp, err := mgr.Process(context.Background(), ProcessParams{
		SourceID: "src-1",
		VideoURL: "https://signed.example/video",
	}, true)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if gotPath != "/process-streaming" {
		t.Errorf("path = %s, want /process-streaming for streaming jobs", gotPath)
	}
	if resp.JobID != "job-1" || resp.TotalClips != 1 || len(resp.Clips) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}
