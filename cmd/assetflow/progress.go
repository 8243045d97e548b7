package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"assetflow/internal/asset"
	"assetflow/internal/pipeline"
	"assetflow/internal/stage"
)

// progressView renders pipeline stages and scene transitions as terminal
// progress bars. A disabled view renders nothing; sampled log lines cover
// non-interactive runs.
type progressView struct {
	out     io.Writer
	enabled bool

	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	scene uint64
}

func newProgressView(out io.Writer, enabled bool) *progressView {
	return &progressView{out: out, enabled: enabled}
}

func (v *progressView) hooks() pipeline.Hooks {
	if !v.enabled {
		return pipeline.Hooks{}
	}
	return pipeline.Hooks{
		OnStageStart: v.stageStart,
		OnStageEnd:   v.stageEnd,
		OnProgress:   v.progress,
		OnVerify:     v.verify,
	}
}

func (v *progressView) newBar(max int64, description string, bytes bool) *progressbar.ProgressBar {
	return progressbar.NewOptions64(max,
		progressbar.OptionSetWriter(v.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(bytes),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (v *progressView) stageStart(name stage.Name) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.finishLocked()
	switch {
	case name.Transfers():
		v.bar = v.newBar(-1, string(name), true)
	case name == stage.Verify:
		v.bar = v.newBar(-1, string(name), false)
	}
}

func (v *progressView) stageEnd(name stage.Name, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.finishLocked()
	if err != nil {
		fmt.Fprintf(v.out, "%s failed: %v\n", name, err)
	}
}

func (v *progressView) progress(name stage.Name, sample asset.Sample, rate float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bar == nil {
		return
	}
	if sample.TotalBytes > 0 {
		v.bar.ChangeMax64(int64(sample.TotalBytes))
	}
	v.bar.Describe(fmt.Sprintf("%s %s", name, pipeline.FormatProgress(name, sample, rate)))
	_ = v.bar.Set64(int64(sample.CumulativeBytes))
}

func (v *progressView) verify(name string, index, count int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bar == nil {
		return
	}
	v.bar.ChangeMax64(int64(count))
	v.bar.Describe(fmt.Sprintf("verify %s", pipeline.FormatVerify(index, count)))
	_ = v.bar.Set(index)
}

// clear hides the active bar so a prompt can use the terminal.
func (v *progressView) clear() {
	if !v.enabled {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bar != nil {
		_ = v.bar.Clear()
	}
}

func (v *progressView) finishLocked() {
	if v.bar == nil {
		return
	}
	_ = v.bar.Finish()
	v.bar = nil
}

// Show starts a scene transition bar.
func (v *progressView) Show(index uint64, target string) {
	if !v.enabled {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.finishLocked()
	v.scene = index
	v.bar = v.newBar(100, "scene "+target, false)
}

// Update advances the transition bar.
func (v *progressView) Update(index uint64, p float64) {
	if !v.enabled {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bar == nil || v.scene != index {
		return
	}
	_ = v.bar.Set(int(p * 100))
}

// Clear removes the transition bar.
func (v *progressView) Clear(index uint64) {
	if !v.enabled {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.scene != index {
		return
	}
	v.finishLocked()
	v.scene = 0
}
