package scene

import (
	"context"
	"runtime"
	"sync"
)

// HeadlessEngine is an Engine without a renderer: scenes load synchronously
// once their bundle is resident, and teardown only forgets them. The CLI
// drives transitions through it.
type HeadlessEngine struct {
	valid func(name string) bool

	mu     sync.Mutex
	loaded map[string]bool
}

// NewHeadlessEngine returns an engine that accepts the scenes valid reports.
// A nil valid accepts every name.
func NewHeadlessEngine(valid func(name string) bool) *HeadlessEngine {
	return &HeadlessEngine{valid: valid, loaded: make(map[string]bool)}
}

func (e *HeadlessEngine) SceneValid(name string) bool {
	if e.valid == nil {
		return name != ""
	}
	return e.valid(name)
}

func (e *HeadlessEngine) SceneLoaded(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded[name]
}

func (e *HeadlessEngine) DestroyRoots(_ context.Context, name string) error {
	e.mu.Lock()
	delete(e.loaded, name)
	e.mu.Unlock()
	return nil
}

func (e *HeadlessEngine) PurgeUnused(context.Context) error { return nil }

func (e *HeadlessEngine) Collect() { runtime.GC() }

// LoadScene marks name loaded and completes synchronously.
func (e *HeadlessEngine) LoadScene(_ context.Context, name string) (LoadOperation, error) {
	e.mu.Lock()
	e.loaded[name] = true
	e.mu.Unlock()
	return nil, nil
}

// Loaded returns the names of loaded scenes.
func (e *HeadlessEngine) Loaded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.loaded))
	for name := range e.loaded {
		names = append(names, name)
	}
	return names
}
