package utils

import (
	"sort"
	"sync"
	"time"
)

// RunSample is one completed pipeline run.
type RunSample struct {
	RunID    string        `json:"runId"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Outcome  string        `json:"outcome"`
}

// RunHistory keeps the most recent run samples and reports duration percentiles.
type RunHistory struct {
	mu      sync.RWMutex
	samples []RunSample
	maxSize int
}

// NewRunHistory creates a history holding up to maxSize samples.
func NewRunHistory(maxSize int) *RunHistory {
	if maxSize <= 0 {
		maxSize = 64
	}
	return &RunHistory{maxSize: maxSize}
}

// Record appends a sample, evicting the oldest once full.
func (h *RunHistory) Record(s RunSample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples = append(h.samples, s)
	if len(h.samples) > h.maxSize {
		copy(h.samples, h.samples[1:])
		h.samples = h.samples[:h.maxSize]
	}
}

// Recent returns a copy of the samples, newest last.
func (h *RunHistory) Recent() []RunSample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]RunSample(nil), h.samples...)
}

// Last returns the newest sample.
func (h *RunHistory) Last() (RunSample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.samples) == 0 {
		return RunSample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// Count returns the number of stored samples.
func (h *RunHistory) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}

// Percentile returns the nearest-rank duration for p in [0, 100]; zero when empty.
func (h *RunHistory) Percentile(p float64) time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(h.samples))
	for i, s := range h.samples {
		sorted[i] = s.Duration
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[int((p/100.0)*float64(len(sorted)-1))]
}
