package asset

import (
	"context"
	"io"
)

// Sample is one progress tick reported by a store stage.
type Sample struct {
	Name            string
	Fraction        float64
	BytesThisTick   uint64
	CumulativeBytes uint64
	TotalBytes      uint64
	Index           int
	Count           int
}

// Ratio returns CumulativeBytes/TotalBytes, or 0 when the total is unknown.
func (s Sample) Ratio() float64 {
	if s.TotalBytes == 0 {
		return 0
	}
	return float64(s.CumulativeBytes) / float64(s.TotalBytes)
}

// ProgressFunc receives samples as a stage advances.
type ProgressFunc func(Sample)

// VerifyFunc receives per-entry verify progress.
type VerifyFunc func(name string, index, count int)

// ConfirmFunc is called by a store before the first byte of a fetch with the
// number of bytes it expects to transfer. A non-nil error aborts the fetch.
type ConfirmFunc func(ctx context.Context, estimatedBytes uint64) error

// Info is the store's view of a single entry.
type Info struct {
	Name  string
	Size  int64
	Codec string
	// Runtime reports that the entry is already stored in the encoding the
	// engine loads directly.
	Runtime bool
}

// Bundle is an opened content package.
type Bundle interface {
	Name() string
	Open() (io.ReadCloser, error)
	Size() int64
}
