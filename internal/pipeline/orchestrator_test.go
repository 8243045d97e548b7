package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"assetflow/internal/asset"
	"assetflow/internal/confirm"
	"assetflow/internal/pipeline"
	"assetflow/internal/services"
	"assetflow/internal/stage"
)

type fakeBundle struct{ name string }

func (b fakeBundle) Name() string                 { return b.name }
func (b fakeBundle) Open() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(b.name)), nil }
func (b fakeBundle) Size() int64                  { return int64(len(b.name)) }

type fakeStore struct {
	mu        sync.Mutex
	calls     []string
	infos     map[string]asset.Info
	artifacts map[string][]byte
	closed    []string
	sources   []asset.Source

	unzipSamples []asset.Sample
	unzipErr     error
	unzipGate    chan struct{}
	unzipEntered chan struct{}
	fetchTotal   uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		infos:     map[string]asset.Info{},
		artifacts: map[string][]byte{},
	}
}

func (f *fakeStore) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStore) Verify(_ context.Context, report asset.VerifyFunc) error {
	f.record("verify")
	report("core.pak", 1, 1)
	return nil
}

func (f *fakeStore) RegisterFolder(_ context.Context, folder string) error {
	f.record("register:" + folder)
	return nil
}

func (f *fakeStore) MaterializeLocal(ctx context.Context, sources []asset.Source, progress asset.ProgressFunc) error {
	f.record("materialize")
	f.mu.Lock()
	f.sources = sources
	f.mu.Unlock()
	if f.unzipEntered != nil {
		f.unzipEntered <- struct{}{}
	}
	if f.unzipGate != nil {
		select {
		case <-f.unzipGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, sample := range f.unzipSamples {
		progress(sample)
	}
	return f.unzipErr
}

func (f *fakeStore) FetchRemote(ctx context.Context, sources []asset.Source, confirmFn asset.ConfirmFunc, progress asset.ProgressFunc) error {
	f.record("fetch")
	if err := confirmFn(ctx, f.fetchTotal); err != nil {
		return err
	}
	chunk := f.fetchTotal / 4
	var sent uint64
	for i := range 4 {
		n := chunk
		if i == 3 {
			n = f.fetchTotal - sent
		}
		sent += n
		progress(asset.Sample{
			Name:            sources[0].Name,
			Fraction:        float64(sent) / float64(f.fetchTotal),
			BytesThisTick:   n,
			CumulativeBytes: sent,
			TotalBytes:      f.fetchTotal,
			Index:           1,
			Count:           len(sources),
		})
	}
	return nil
}

func (f *fakeStore) Recompress(_ context.Context, progress asset.ProgressFunc) error {
	f.record("recompress")
	progress(asset.Sample{Name: "core.pak", Fraction: 1, CumulativeBytes: 10, TotalBytes: 10, Index: 1, Count: 1})
	return nil
}

func (f *fakeStore) Info(_ context.Context, name string) (asset.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.infos[name]
	if !ok {
		return asset.Info{}, services.Wrap(services.ErrNotFound, "store", "info", name, nil)
	}
	return info, nil
}

func (f *fakeStore) OpenBundle(_ context.Context, name string) (asset.Bundle, error) {
	f.record("open:" + name)
	return fakeBundle{name: name}, nil
}

func (f *fakeStore) CloseBundle(bundle asset.Bundle) error {
	f.record("close:" + bundle.Name())
	return nil
}

func (f *fakeStore) WriteCachedArtifact(ctx context.Context, name string, produce pipeline.Producer) error {
	f.record("write:" + name)
	data, err := produce(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.artifacts[name] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) HasCachedArtifact(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.artifacts[name]
	return ok, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(format string, args ...any) {
	e.mu.Lock()
	e.events = append(e.events, fmt.Sprintf(format, args...))
	e.mu.Unlock()
}

func (e *eventLog) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *eventLog) hooks() pipeline.Hooks {
	return pipeline.Hooks{
		OnSessionStart:    func(string) { e.add("session_start") },
		OnSessionEnd:      func(string) { e.add("session_end") },
		OnSessionFinished: func(_ string, err error) { e.add("session_finished:%s", services.Kind(err)) },
		OnStageStart:      func(name stage.Name) { e.add("start:%s", name) },
		OnStageEnd:        func(name stage.Name, err error) { e.add("end:%s:%s", name, services.Kind(err)) },
	}
}

type staticNetwork bool

func (s staticNetwork) Metered() bool { return bool(s) }

func assertEvents(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected events:\n got  %v\n want %v", got, want)
	}
}

func TestLocalOnlySessionSkipsConfirmAndDownload(t *testing.T) {
	store := newFakeStore()
	store.unzipSamples = []asset.Sample{{Name: "core.pak", CumulativeBytes: 5, TotalBytes: 10}, {Name: "core.pak", CumulativeBytes: 10, TotalBytes: 10}}
	events := &eventLog{}
	orch := pipeline.New(store, confirm.New(staticNetwork(true), nil), pipeline.WithHooks(events.hooks()), pipeline.WithBundledRoot("/bundled"))

	err := orch.RunPipeline(context.Background(), pipeline.Request{Paths: []asset.Path{asset.NewPath("core.pak")}})
	if err != nil {
		t.Fatalf("RunPipeline returned error: %v", err)
	}
	assertEvents(t, store.Calls(), []string{"materialize", "recompress"})
	assertEvents(t, events.list(), []string{
		"session_start",
		"start:unzip", "end:unzip:ok",
		"session_end",
		"start:recompress", "end:recompress:ok",
		"session_finished:ok",
	})
	if store.sources[0].Location != "/bundled/core.pak" {
		t.Fatalf("unexpected unzip source %+v", store.sources[0])
	}
}

func TestVerifyRunsFirstAndLifecycleEventsAlwaysFire(t *testing.T) {
	store := newFakeStore()
	events := &eventLog{}
	var verified []string
	hooks := events.hooks()
	hooks.OnVerify = func(name string, index, count int) {
		verified = append(verified, name+" "+pipeline.FormatVerify(index, count))
	}
	orch := pipeline.New(store, nil, pipeline.WithHooks(hooks))

	req := pipeline.Request{Paths: []asset.Path{asset.NewPath("maps/town.pak")}, Verify: true}
	if err := orch.RunPipeline(context.Background(), req); err != nil {
		t.Fatalf("RunPipeline returned error: %v", err)
	}
	assertEvents(t, store.Calls(), []string{"verify", "register:maps", "materialize", "recompress"})
	assertEvents(t, events.list(), []string{
		"start:verify", "end:verify:ok",
		"session_start",
		"start:unzip", "end:unzip:ok",
		"session_end",
		"start:recompress", "end:recompress:ok",
		"session_finished:ok",
	})
	if len(verified) != 1 || verified[0] != "core.pak 1/1" {
		t.Fatalf("unexpected verify reports %v", verified)
	}
}

func TestWriteRestrictedSkipsVerify(t *testing.T) {
	store := newFakeStore()
	orch := pipeline.New(store, nil, pipeline.WithWriteRestricted(true))
	if err := orch.RunPipeline(context.Background(), pipeline.Request{Verify: true}); err != nil {
		t.Fatalf("RunPipeline returned error: %v", err)
	}
	for _, call := range store.Calls() {
		if call == "verify" {
			t.Fatal("verify must not run on write-restricted targets")
		}
	}
}

func TestMeteredDownloadWaitsForApproval(t *testing.T) {
	store := newFakeStore()
	store.fetchTotal = 52428800
	prompts := make(chan confirm.Prompt, 1)
	gate := confirm.New(staticNetwork(true), confirm.PrompterFunc(func(_ context.Context, p confirm.Prompt) error {
		prompts <- p
		return nil
	}))
	events := &eventLog{}
	var (
		mu      sync.Mutex
		samples []asset.Sample
	)
	hooks := events.hooks()
	hooks.OnProgress = func(name stage.Name, sample asset.Sample, _ float64) {
		if name == stage.Download {
			mu.Lock()
			samples = append(samples, sample)
			mu.Unlock()
		}
	}
	orch := pipeline.New(store, gate, pipeline.WithHooks(hooks))

	done := make(chan error, 1)
	go func() {
		done <- orch.RunPipeline(context.Background(), pipeline.Request{
			Paths:      []asset.Path{asset.NewPath("core.pak")},
			RemoteBase: "https://cdn/x",
		})
	}()

	select {
	case p := <-prompts:
		if p.MB != "50.00" {
			t.Fatalf("expected 50.00 MB prompt, got %q", p.MB)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation prompt never shown")
	}
	if status, ok := orch.Active(); !ok || status.Stage != stage.Confirm {
		t.Fatalf("expected session blocked in confirm, got %+v ok=%v", status, ok)
	}
	mu.Lock()
	if len(samples) != 0 {
		t.Fatalf("download progressed before approval: %d samples", len(samples))
	}
	mu.Unlock()

	gate.Approve()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunPipeline returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not finish after approval")
	}

	last := samples[len(samples)-1]
	if last.CumulativeBytes != last.TotalBytes || last.TotalBytes != 52428800 {
		t.Fatalf("expected download to complete, got %+v", last)
	}
	assertEvents(t, events.list(), []string{
		"session_start",
		"start:unzip", "end:unzip:ok",
		"start:confirm", "end:confirm:ok",
		"start:download", "end:download:ok",
		"session_end",
		"start:recompress", "end:recompress:ok",
		"session_finished:ok",
	})
}

func TestDeclineAbortsSession(t *testing.T) {
	store := newFakeStore()
	store.fetchTotal = 1024
	var gate *confirm.Gate
	gate = confirm.New(staticNetwork(true), confirm.PrompterFunc(func(context.Context, confirm.Prompt) error {
		go gate.Decline()
		return nil
	}))
	events := &eventLog{}
	orch := pipeline.New(store, gate, pipeline.WithHooks(events.hooks()))

	err := orch.RunPipeline(context.Background(), pipeline.Request{Paths: []asset.Path{asset.NewPath("a.pak")}, RemoteBase: "https://cdn/x"})
	if !errors.Is(err, services.ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	for _, call := range store.Calls() {
		if call == "recompress" {
			t.Fatal("recompress must not run after a failed stage")
		}
	}
	got := events.list()
	if got[len(got)-1] != "session_finished:declined" {
		t.Fatalf("unexpected final event %v", got)
	}
	for _, e := range got {
		if strings.HasPrefix(e, "start:download") {
			t.Fatal("download stage must not start after decline")
		}
	}
}

func TestStageFailureAbortsRemainingStages(t *testing.T) {
	store := newFakeStore()
	store.unzipErr = errors.New("disk full")
	orch := pipeline.New(store, nil)
	err := orch.RunPipeline(context.Background(), pipeline.Request{Paths: []asset.Path{asset.NewPath("core.pak")}})
	if !errors.Is(err, services.ErrLocalIO) {
		t.Fatalf("expected ErrLocalIO, got %v", err)
	}
	assertEvents(t, store.Calls(), []string{"materialize"})
	if orch.LastError() == nil {
		t.Fatal("expected LastError to record the failure")
	}
}

func TestProgressNeverDecreasesWithinStage(t *testing.T) {
	store := newFakeStore()
	store.unzipSamples = []asset.Sample{
		{Name: "a", CumulativeBytes: 100, TotalBytes: 300},
		{Name: "b", CumulativeBytes: 40, TotalBytes: 300},
		{Name: "b", CumulativeBytes: 300, TotalBytes: 300},
	}
	var seen []uint64
	orch := pipeline.New(store, nil, pipeline.WithHooks(pipeline.Hooks{
		OnProgress: func(name stage.Name, sample asset.Sample, _ float64) {
			if name == stage.Unzip {
				seen = append(seen, sample.CumulativeBytes)
			}
		},
	}))
	if err := orch.RunPipeline(context.Background(), pipeline.Request{}); err != nil {
		t.Fatalf("RunPipeline returned error: %v", err)
	}
	want := []uint64{100, 100, 300}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Fatalf("unexpected cumulative sequence %v, want %v", seen, want)
	}
}

func TestPostSteps(t *testing.T) {
	store := newFakeStore()
	store.infos["runtime.pak"] = asset.Info{Name: "runtime.pak", Runtime: true}
	store.infos["packed.pak"] = asset.Info{Name: "packed.pak", Codec: "zstd"}
	store.infos["done.pak"] = asset.Info{Name: "done.pak", Codec: "zstd"}
	store.artifacts["done.pak"] = []byte("old")

	var mu sync.Mutex
	bundles := map[string]bool{}
	step := func(name string) pipeline.UnzipStep {
		return pipeline.StepFunc{Name: name, Fn: func(_ context.Context, b asset.Bundle, _ asset.ProgressFunc) ([]byte, error) {
			mu.Lock()
			bundles[name] = b != nil
			mu.Unlock()
			return []byte("derived:" + name), nil
		}}
	}
	orch := pipeline.New(store, nil)
	req := pipeline.Request{Steps: []pipeline.UnzipStep{step(""), step("missing.pak"), step("runtime.pak"), step("packed.pak"), step("done.pak")}}
	if err := orch.RunPipeline(context.Background(), req); err != nil {
		t.Fatalf("RunPipeline returned error: %v", err)
	}

	for _, name := range []string{"", "missing.pak", "runtime.pak"} {
		if withBundle, ran := bundles[name]; !ran || withBundle {
			t.Fatalf("step %q should run directly without a bundle (ran=%v bundle=%v)", name, ran, withBundle)
		}
	}
	if !bundles["packed.pak"] {
		t.Fatal("packed.pak step should receive an opened bundle")
	}
	if _, ran := bundles["done.pak"]; ran {
		t.Fatal("step with a cached artifact must not run again")
	}
	if string(store.artifacts["packed.pak"]) != "derived:packed.pak" {
		t.Fatalf("unexpected artifact %q", store.artifacts["packed.pak"])
	}
	assertEvents(t, store.Calls(), []string{"materialize", "open:packed.pak", "write:packed.pak", "close:packed.pak", "recompress"})
}

func TestOnLoadedRunsBeforeRecompress(t *testing.T) {
	store := newFakeStore()
	orch := pipeline.New(store, nil)
	var callsAtLoad []string
	err := orch.RunPipeline(context.Background(), pipeline.Request{OnLoaded: func() { callsAtLoad = store.Calls() }})
	if err != nil {
		t.Fatalf("RunPipeline returned error: %v", err)
	}
	assertEvents(t, callsAtLoad, []string{"materialize"})
}

func TestSessionsRunInSubmissionOrder(t *testing.T) {
	store := newFakeStore()
	store.unzipGate = make(chan struct{})
	store.unzipEntered = make(chan struct{}, 4)
	orch := pipeline.New(store, nil)

	var (
		mu    sync.Mutex
		order []int
	)
	results := make(chan error, 3)
	for i := range 3 {
		idx := i
		orch.LoadAssets(context.Background(), pipeline.Request{OnLoaded: func() {
			mu.Lock()
			order = append(order, idx)
			mu.Unlock()
		}}, func(err error) { results <- err })
	}

	for i := range 3 {
		select {
		case <-store.unzipEntered:
		case <-time.After(2 * time.Second):
			t.Fatalf("session %d never started", i)
		}
		select {
		case <-store.unzipEntered:
			t.Fatal("two sessions ran concurrently")
		default:
		}
		store.unzipGate <- struct{}{}
	}
	for range 3 {
		if err := <-results; err != nil {
			t.Fatalf("session failed: %v", err)
		}
	}
	if fmt.Sprint(order) != "[0 1 2]" {
		t.Fatalf("sessions ran out of order: %v", order)
	}
}

func TestCancelSessionAbortsInFlightOnly(t *testing.T) {
	store := newFakeStore()
	store.unzipGate = make(chan struct{})
	store.unzipEntered = make(chan struct{}, 4)
	orch := pipeline.New(store, nil)

	first := make(chan error, 1)
	second := make(chan error, 1)
	orch.LoadAssets(context.Background(), pipeline.Request{}, func(err error) { first <- err })
	orch.LoadAssets(context.Background(), pipeline.Request{}, func(err error) { second <- err })

	<-store.unzipEntered
	if orch.Queued() != 1 {
		t.Fatalf("expected one queued session, got %d", orch.Queued())
	}
	if !orch.CancelSession() {
		t.Fatal("expected an active session to cancel")
	}
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	<-store.unzipEntered
	store.unzipGate <- struct{}{}
	if err := <-second; err != nil {
		t.Fatalf("queued session should still run: %v", err)
	}
	if orch.CancelSession() {
		t.Fatal("expected nothing to cancel once idle")
	}
}

func TestFormatProgress(t *testing.T) {
	sample := asset.Sample{CumulativeBytes: 1572864, TotalBytes: 52428800, Index: 2, Count: 5}
	if got := pipeline.FormatProgress(stage.Unzip, sample, 0); got != "1.50/50.00M(2/5)" {
		t.Fatalf("unexpected unzip format %q", got)
	}
	if got := pipeline.FormatProgress(stage.Download, sample, 2097152); got != "1.50/50.00M(2/5) 2.00M/S" {
		t.Fatalf("unexpected download format %q", got)
	}
}
