package pipeline

import (
	"time"

	"assetflow/internal/asset"
	"assetflow/internal/stage"
)

// Hooks receive lifecycle and progress events. Nil fields are skipped. Hooks
// run on the session goroutine and must not block.
type Hooks struct {
	// OnSessionStart fires before unzip, whether or not verify ran.
	OnSessionStart func(sessionID string)
	// OnSessionEnd fires after post-steps.
	OnSessionEnd func(sessionID string)
	// OnSessionFinished fires once per session with its terminal result.
	OnSessionFinished func(sessionID string, err error)
	OnStageStart      func(name stage.Name)
	OnStageEnd        func(name stage.Name, err error)
	OnProgress        func(name stage.Name, sample asset.Sample, rate float64)
	OnVerify          func(name string, index, count int)
}

func (h Hooks) sessionStart(id string) {
	if h.OnSessionStart != nil {
		h.OnSessionStart(id)
	}
}

func (h Hooks) sessionEnd(id string) {
	if h.OnSessionEnd != nil {
		h.OnSessionEnd(id)
	}
}

func (h Hooks) sessionFinished(id string, err error) {
	if h.OnSessionFinished != nil {
		h.OnSessionFinished(id, err)
	}
}

func (h Hooks) stageStart(name stage.Name) {
	if h.OnStageStart != nil {
		h.OnStageStart(name)
	}
}

func (h Hooks) stageEnd(name stage.Name, err error) {
	if h.OnStageEnd != nil {
		h.OnStageEnd(name, err)
	}
}

func (h Hooks) progress(name stage.Name, sample asset.Sample, rate float64) {
	if h.OnProgress != nil {
		h.OnProgress(name, sample, rate)
	}
}

func (h Hooks) verify(name string, index, count int) {
	if h.OnVerify != nil {
		h.OnVerify(name, index, count)
	}
}

// Recorder receives session and stage measurements for metrics.
type Recorder interface {
	SessionFinished(result string, duration time.Duration)
	StageFinished(name string, result string, duration time.Duration, bytes uint64)
	Throughput(bytesPerSecond float64)
}
