package observer

import (
	"sync"
	"time"
)

// Observer tracks completed model runs and aggregates timing metrics
type Observer struct {
	stalledThreshold time.Duration

	completions []completion
	mu          sync.RWMutex
}

type completion struct {
	Root        string
	Duration    time.Duration
	Failed      bool
	CompletedAt time.Time
}

// Metrics holds aggregated metrics
type Metrics struct {
	TotalCompleted int
	TotalFailed    int
	AvgDuration    time.Duration
}

// New creates a new Observer. stalledThreshold is how long a running model
// may go without any diag activity before IsStalled reports it.
func New(stalledThreshold time.Duration) *Observer {
	return &Observer{
		stalledThreshold: stalledThreshold,
	}
}

// IsStalled returns true if a model last touched its diagnostics longer ago
// than the stalled threshold
func (o *Observer) IsStalled(lastActivity time.Time) bool {
	if lastActivity.IsZero() {
		return false
	}
	return time.Since(lastActivity) > o.stalledThreshold
}

// RecordCompletion records a finished model run
func (o *Observer) RecordCompletion(root string, duration time.Duration, failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.completions = append(o.completions, completion{
		Root:        root,
		Duration:    duration,
		Failed:      failed,
		CompletedAt: time.Now(),
	})
}

// GetMetrics returns aggregated metrics
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var metrics Metrics
	var totalDuration time.Duration

	for _, c := range o.completions {
		metrics.TotalCompleted++
		if c.Failed {
			metrics.TotalFailed++
		}
		totalDuration += c.Duration
	}

	if metrics.TotalCompleted > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(metrics.TotalCompleted)
	}

	return metrics
}

// GetRecentCompletions returns the roots of models completed within the last
// duration
func (o *Observer) GetRecentCompletions(since time.Duration) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := time.Now().Add(-since)
	var result []string

	for _, c := range o.completions {
		if c.CompletedAt.After(cutoff) {
			result = append(result, c.Root)
		}
	}

	return result
}
