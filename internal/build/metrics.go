package build

import (
	"sync"
	"time"
)

// PipelineStats accumulates the runs of one pipeline.
type PipelineStats struct {
	Runs          int64         `json:"runs"`
	FailedRuns    int64         `json:"failed_runs"`
	FilesWritten  int64         `json:"files_written"`
	FilesSkipped  int64         `json:"files_skipped"`
	FilesFailed   int64         `json:"files_failed"`
	LastDuration  time.Duration `json:"last_duration"`
	TotalDuration time.Duration `json:"total_duration"`
	LastRun       time.Time     `json:"last_run"`
}

// AverageDuration is the mean wall time of a run.
func (s PipelineStats) AverageDuration() time.Duration {
	if s.Runs == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Runs)
}

// Metrics records pipeline runs. It is safe for concurrent use and a nil
// *Metrics records nothing.
type Metrics struct {
	mutex     sync.RWMutex
	pipelines map[string]*PipelineStats
}

// NewMetrics creates an empty recorder.
func NewMetrics() *Metrics {
	return &Metrics{pipelines: make(map[string]*PipelineStats)}
}

// Record adds one finished run.
func (m *Metrics) Record(res Result, duration time.Duration) {
	if m == nil {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	stats, ok := m.pipelines[res.Pipeline]
	if !ok {
		stats = &PipelineStats{}
		m.pipelines[res.Pipeline] = stats
	}
	stats.Runs++
	if !res.OK() {
		stats.FailedRuns++
	}
	stats.FilesWritten += int64(len(res.Written))
	stats.FilesSkipped += int64(res.Skipped)
	stats.FilesFailed += int64(res.Failed)
	stats.LastDuration = duration
	stats.TotalDuration += duration
	stats.LastRun = time.Now()
}

// Snapshot returns a copy of the stats per pipeline name.
func (m *Metrics) Snapshot() map[string]PipelineStats {
	out := make(map[string]PipelineStats)
	if m == nil {
		return out
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for name, stats := range m.pipelines {
		out[name] = *stats
	}
	return out
}

// Reset forgets every recorded run.
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.pipelines = make(map[string]*PipelineStats)
}
