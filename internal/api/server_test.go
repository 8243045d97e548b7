package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"assetflow/internal/api"
	"assetflow/internal/asset"
	"assetflow/internal/confirm"
	"assetflow/internal/metrics"
	"assetflow/internal/pipeline"
	"assetflow/internal/scene"
	"assetflow/internal/stage"
)

type stubPipeline struct {
	active  *pipeline.SessionStatus
	queued  int
	lastErr error
	rate    float64
}

func (s *stubPipeline) Active() (pipeline.SessionStatus, bool) {
	if s.active == nil {
		return pipeline.SessionStatus{}, false
	}
	return *s.active, true
}
func (s *stubPipeline) Queued() int      { return s.queued }
func (s *stubPipeline) LastError() error { return s.lastErr }
func (s *stubPipeline) Rate() float64    { return s.rate }

type stubGate struct {
	pending  *confirm.Prompt
	approved int
	declined int
}

func (g *stubGate) Pending() (confirm.Prompt, bool) {
	if g.pending == nil {
		return confirm.Prompt{}, false
	}
	return *g.pending, true
}

func (g *stubGate) Approve() bool {
	if g.pending == nil {
		return false
	}
	g.pending = nil
	g.approved++
	return true
}

func (g *stubGate) Decline() bool {
	if g.pending == nil {
		return false
	}
	g.pending = nil
	g.declined++
	return true
}

type stubScenes struct{ status scene.Status }

func (s stubScenes) Status() scene.Status { return s.status }

func newServer(t *testing.T, opts api.Options) http.Handler {
	t.Helper()
	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:0"
	}
	srv := api.New(opts)
	if srv == nil {
		t.Fatal("expected server")
	}
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewWithoutBindReturnsNil(t *testing.T) {
	if api.New(api.Options{Pipeline: &stubPipeline{}}) != nil {
		t.Fatal("expected nil server without a bind address")
	}
	var srv *api.Server
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil server: %v", err)
	}
	srv.Stop()
}

func TestStatusReportsSessionGateAndScene(t *testing.T) {
	p := &stubPipeline{
		queued: 1,
		rate:   2 * 1024 * 1024,
		active: &pipeline.SessionStatus{
			ID:    "abc",
			Stage: stage.Download,
			Sample: asset.Sample{
				Name:            "hero.bundle",
				CumulativeBytes: 1024 * 1024,
				TotalBytes:      4 * 1024 * 1024,
				Index:           1,
				Count:           2,
			},
			Paths:   2,
			Started: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	gate := &stubGate{pending: &confirm.Prompt{EstimatedBytes: 52428800, MB: "50.00"}}
	scenes := stubScenes{status: scene.Status{State: scene.LoadingBundle, Current: "menu", Next: "forest", Progress: 0.5}}
	h := newServer(t, api.Options{Pipeline: p, Gate: gate, Scenes: scenes})

	rec := do(t, h, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp api.StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Pipeline.Running || resp.Pipeline.Session == nil {
		t.Fatalf("expected running session, got %+v", resp.Pipeline)
	}
	if resp.Pipeline.Session.Message != "1.00/4.00M(1/2) 2.00M/S" {
		t.Fatalf("unexpected progress message %q", resp.Pipeline.Session.Message)
	}
	if resp.Pipeline.Session.Percent != 25 {
		t.Fatalf("unexpected percent %v", resp.Pipeline.Session.Percent)
	}
	if !resp.Confirm.Pending || resp.Confirm.MB != "50.00" {
		t.Fatalf("unexpected confirm status %+v", resp.Confirm)
	}
	if resp.Scene == nil || resp.Scene.State != "loading_bundle" || resp.Scene.Next != "forest" {
		t.Fatalf("unexpected scene status %+v", resp.Scene)
	}
}

func TestStatusIdleIncludesLastError(t *testing.T) {
	h := newServer(t, api.Options{Pipeline: &stubPipeline{lastErr: errors.New("boom")}})
	rec := do(t, h, http.MethodGet, "/api/status", "")
	var resp api.StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pipeline.Running || resp.Pipeline.LastError != "boom" {
		t.Fatalf("unexpected pipeline status %+v", resp.Pipeline)
	}
}

func TestConfirmEndpoints(t *testing.T) {
	gate := &stubGate{pending: &confirm.Prompt{EstimatedBytes: 10, MB: "0.00"}}
	h := newServer(t, api.Options{Pipeline: &stubPipeline{}, Gate: gate})

	if rec := do(t, h, http.MethodPost, "/api/confirm/approve", ""); rec.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", rec.Code)
	}
	if gate.approved != 1 {
		t.Fatalf("expected one approval, got %d", gate.approved)
	}
	if rec := do(t, h, http.MethodPost, "/api/confirm/decline", ""); rec.Code != http.StatusConflict {
		t.Fatalf("decline without prompt: expected 409, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/confirm/approve", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET approve: expected 405, got %d", rec.Code)
	}
}

func TestConfirmWithoutGateIsNotFound(t *testing.T) {
	h := newServer(t, api.Options{Pipeline: &stubPipeline{}})
	if rec := do(t, h, http.MethodPost, "/api/confirm/approve", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTokenRequired(t *testing.T) {
	h := newServer(t, api.Options{Pipeline: &stubPipeline{}, Token: "secret"})
	if rec := do(t, h, http.MethodGet, "/api/status", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/status", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/status", "secret"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz should not require a token, got %d", rec.Code)
	}
}

func TestHealthzReportsUnready(t *testing.T) {
	h := newServer(t, api.Options{
		Pipeline: &stubPipeline{},
		Health: func(context.Context) []stage.Health {
			return []stage.Health{stage.Healthy("netclass"), stage.Unhealthy("assetstore", "disk full")}
		},
	})
	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "disk full") {
		t.Fatalf("expected detail in body: %s", rec.Body.String())
	}
}

func TestMetricsMounted(t *testing.T) {
	m := metrics.New()
	h := newServer(t, api.Options{
		Pipeline: &stubPipeline{rate: 512},
		Scenes:   stubScenes{status: scene.Status{PendingLoaders: 2}},
		Metrics:  m,
	})
	do(t, h, http.MethodGet, "/api/status", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"assetflow_scene_loaders_pending 2", "assetflow_throughput_bytes_per_second 512", "assetflow_api_requests_total 1"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestStartServesOnListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := api.New(api.Options{Bind: "127.0.0.1:0", Pipeline: &stubPipeline{}})
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
