package assetstore

import "assetflow/internal/asset"

// progressTicker turns byte counts into samples every tick bytes. The
// reported cumulative counter never decreases, even when an entry restarts.
type progressTicker struct {
	progress asset.ProgressFunc
	tick     uint64
	total    uint64
	count    int

	name      string
	index     int
	entrySize uint64
	entryDone uint64
	base      uint64
	reported  uint64
}

func newProgressTicker(progress asset.ProgressFunc, tick, total uint64, count int) *progressTicker {
	return &progressTicker{progress: progress, tick: tick, total: total, count: count}
}

func (t *progressTicker) begin(name string, index int, size uint64) {
	t.name = name
	t.index = index
	t.entrySize = size
	t.entryDone = 0
}

func (t *progressTicker) add(n int) {
	t.entryDone += uint64(n)
	cumulative := t.base + t.entryDone
	if cumulative > t.reported && cumulative-t.reported >= t.tick {
		t.emit()
	}
}

// restart rewinds the current entry for a retry.
func (t *progressTicker) restart() {
	t.entryDone = 0
}

func (t *progressTicker) finish() {
	if t.entryDone < t.entrySize {
		t.entryDone = t.entrySize
	}
	t.emit()
	t.base += t.entryDone
	t.entryDone = 0
}

// skip accounts for an entry that needs no work.
func (t *progressTicker) skip(name string, index int, size uint64) {
	t.begin(name, index, size)
	t.finish()
}

func (t *progressTicker) emit() {
	cumulative := t.base + t.entryDone
	if cumulative < t.reported || t.progress == nil {
		return
	}
	// A zero total stays zero so consumers can tell an unknown size apart.
	total := t.total
	if total > 0 && cumulative > total {
		total = cumulative
	}
	fraction := 1.0
	if t.entrySize > 0 {
		fraction = min(float64(t.entryDone)/float64(t.entrySize), 1)
	}
	t.progress(asset.Sample{
		Name:            t.name,
		Fraction:        fraction,
		BytesThisTick:   cumulative - t.reported,
		CumulativeBytes: cumulative,
		TotalBytes:      total,
		Index:           t.index,
		Count:           t.count,
	})
	t.reported = cumulative
}
