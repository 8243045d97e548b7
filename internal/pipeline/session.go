package pipeline

import (
	"sync"
	"time"

	"assetflow/internal/asset"
	"assetflow/internal/stage"
)

type session struct {
	id      string
	req     Request
	started time.Time

	mu      sync.Mutex
	stage   stage.Name
	samples map[stage.Name]asset.Sample
}

func newSession(id string, req Request) *session {
	return &session{
		id:      id,
		req:     req,
		started: time.Now(),
		samples: make(map[stage.Name]asset.Sample, len(stage.Order)),
	}
}

func (s *session) enter(name stage.Name) {
	s.mu.Lock()
	s.stage = name
	s.mu.Unlock()
}

func (s *session) currentStage() stage.Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *session) record(name stage.Name, sample asset.Sample) {
	s.mu.Lock()
	s.samples[name] = sample
	s.mu.Unlock()
}

func (s *session) bytes(name stage.Name) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples[name].CumulativeBytes
}

func (s *session) status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStatus{
		ID:         s.id,
		Stage:      s.stage,
		Sample:     s.samples[s.stage],
		Paths:      len(s.req.Paths),
		RemoteBase: s.req.RemoteBase,
		Started:    s.started,
	}
}
