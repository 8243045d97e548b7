package boot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"assetflow/internal/asset"
	"assetflow/internal/boot"
	"assetflow/internal/pipeline"
	"assetflow/internal/scene"
	"assetflow/internal/services"
)

type stubPipeline struct {
	err  error
	reqs []pipeline.Request
}

func (p *stubPipeline) RunPipeline(_ context.Context, req pipeline.Request) error {
	p.reqs = append(p.reqs, req)
	return p.err
}

type stubScenes struct {
	accept   bool
	result   error
	hold     bool
	requests []scene.Request
	canceled bool
}

func (s *stubScenes) RequestTransition(req scene.Request) bool {
	s.requests = append(s.requests, req)
	if !s.accept {
		return false
	}
	if !s.hold {
		go req.OnComplete(s.result)
	}
	return true
}

func (s *stubScenes) CancelTransition() bool {
	s.canceled = true
	return true
}

func TestRunLoadsThenEntersDefaultScene(t *testing.T) {
	p := &stubPipeline{}
	s := &stubScenes{accept: true}
	err := boot.Run(context.Background(), boot.Options{
		Pipeline:       p,
		Scenes:         s,
		Paths:          []asset.Path{asset.NewPath("ui.bundle")},
		RemoteBase:     "https://cdn.example.com/linux/en",
		DefaultScene:   "menu",
		WaitForLoaders: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(p.reqs) != 1 || p.reqs[0].RemoteBase != "https://cdn.example.com/linux/en" {
		t.Fatalf("unexpected pipeline requests %+v", p.reqs)
	}
	if len(s.requests) != 1 || s.requests[0].Target != "menu" || !s.requests[0].WaitForLoaders {
		t.Fatalf("unexpected scene requests %+v", s.requests)
	}
}

func TestRunStopsOnPipelineFailure(t *testing.T) {
	failure := services.Wrap(services.ErrNetwork, "download", "get", "cdn down", nil)
	s := &stubScenes{accept: true}
	err := boot.Run(context.Background(), boot.Options{Pipeline: &stubPipeline{err: failure}, Scenes: s, DefaultScene: "menu"})
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if len(s.requests) != 0 {
		t.Fatal("scene should not be requested after a failed load")
	}
}

func TestRunReturnsTransitionError(t *testing.T) {
	s := &stubScenes{accept: true, result: services.Wrap(services.ErrBundleLoad, "scene", "load", "menu", nil)}
	err := boot.Run(context.Background(), boot.Options{Pipeline: &stubPipeline{}, Scenes: s, DefaultScene: "menu"})
	if !errors.Is(err, services.ErrBundleLoad) {
		t.Fatalf("expected ErrBundleLoad, got %v", err)
	}
}

func TestRunWithoutDefaultSceneSkipsTransition(t *testing.T) {
	s := &stubScenes{accept: true}
	if err := boot.Run(context.Background(), boot.Options{Pipeline: &stubPipeline{}, Scenes: s}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.requests) != 0 {
		t.Fatal("no transition expected")
	}
}

func TestRunAlreadyActiveScene(t *testing.T) {
	s := &stubScenes{accept: false}
	if err := boot.Run(context.Background(), boot.Options{Pipeline: &stubPipeline{}, Scenes: s, DefaultScene: "menu"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunCancelsTransitionOnContextEnd(t *testing.T) {
	s := &stubScenes{accept: true, hold: true}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := boot.Run(ctx, boot.Options{Pipeline: &stubPipeline{}, Scenes: s, DefaultScene: "menu"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !s.canceled {
		t.Fatal("expected the transition to be canceled")
	}
}

func TestRunRequiresPipeline(t *testing.T) {
	if err := boot.Run(context.Background(), boot.Options{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
