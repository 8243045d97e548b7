package logging

import "strings"

// DefaultUnknownStride is how many bytes a transfer of unknown size moves
// between sampled log lines.
const DefaultUnknownStride = 16 << 20

// ProgressSampler thins per-tick byte progress into a handful of log lines
// per stage: one on entering a stage, one per percent bucket crossed, and for
// transfers whose total is unknown one per stride of bytes.
type ProgressSampler struct {
	bucketSize float64
	stride     uint64
	lastStage  string
	lastBucket int
	lastBytes  uint64
}

// NewProgressSampler constructs a sampler with percent buckets of bucketSize
// (default 5) and the default unknown-size stride.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, stride: DefaultUnknownStride, lastBucket: -1}
}

// WithStride sets the unknown-size stride and returns s.
func (s *ProgressSampler) WithStride(bytes uint64) *ProgressSampler {
	if s != nil && bytes > 0 {
		s.stride = bytes
	}
	return s
}

// ShouldLog reports whether a sample of stage at cumulative of total bytes
// deserves a log line. A zero total means the size is unknown.
func (s *ProgressSampler) ShouldLog(stage string, cumulative, total uint64) bool {
	if s == nil {
		return true
	}
	stage = strings.TrimSpace(stage)
	if stage != s.lastStage {
		s.lastStage = stage
		s.lastBucket = bucketOf(cumulative, total, s.bucketSize)
		s.lastBytes = cumulative
		return true
	}
	if total == 0 {
		if cumulative >= s.lastBytes+s.stride {
			s.lastBytes = cumulative
			return true
		}
		return false
	}
	if bucket := bucketOf(cumulative, total, s.bucketSize); bucket > s.lastBucket {
		s.lastBucket = bucket
		s.lastBytes = cumulative
		return true
	}
	return false
}

// Reset forgets the last stage so the next session logs from its start.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastStage = ""
	s.lastBucket = -1
	s.lastBytes = 0
}

func bucketOf(cumulative, total uint64, size float64) int {
	if total == 0 {
		return -1
	}
	percent := float64(cumulative) / float64(total) * 100
	if percent > 100 {
		percent = 100
	}
	return int(percent / size)
}
