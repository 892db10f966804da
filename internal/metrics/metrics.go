package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMaxLatencySamples = 1000

// Metrics はジョブのメトリクスを収集する
type Metrics struct {
	submitted      atomic.Uint64
	rejected       atomic.Uint64
	completed      atomic.Uint64
	failed         atomic.Uint64
	totalLatencyNs atomic.Uint64

	mu                sync.RWMutex
	startTime         time.Time
	latencies         []time.Duration
	maxLatencySamples int
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return &Metrics{
		startTime:         time.Now(),
		latencies:         make([]time.Duration, 0, defaultMaxLatencySamples),
		maxLatencySamples: defaultMaxLatencySamples,
	}
}

// RecordSubmitted はキューに受理されたジョブを記録する
func (m *Metrics) RecordSubmitted() {
	m.submitted.Add(1)
}

// RecordRejected は受理されなかったジョブを記録する
func (m *Metrics) RecordRejected() {
	m.rejected.Add(1)
}

// RecordCompleted は正常終了したジョブを記録する
func (m *Metrics) RecordCompleted(latency time.Duration) {
	m.completed.Add(1)
	m.recordLatency(latency)
}

// RecordFailed は panic で終了したジョブを記録する
func (m *Metrics) RecordFailed(latency time.Duration) {
	m.failed.Add(1)
	m.recordLatency(latency)
}

func (m *Metrics) recordLatency(latency time.Duration) {
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	if len(m.latencies) < m.maxLatencySamples {
		m.latencies = append(m.latencies, latency)
	}
	m.mu.Unlock()
}

// Submitted は受け付けたジョブ数を返す
func (m *Metrics) Submitted() uint64 { return m.submitted.Load() }

// Rejected は拒否されたジョブ数を返す
func (m *Metrics) Rejected() uint64 { return m.rejected.Load() }

// Completed は正常に完了したジョブ数を返す
func (m *Metrics) Completed() uint64 { return m.completed.Load() }

// Failed はパニックしたジョブ数を返す
func (m *Metrics) Failed() uint64 { return m.failed.Load() }

// Pending は受理済みでまだ終了していないジョブ数を返す
func (m *Metrics) Pending() uint64 {
	done := m.completed.Load() + m.failed.Load()
	submitted := m.submitted.Load()
	if done >= submitted {
		return 0
	}
	return submitted - done
}

// AverageLatency は平均実行時間を返す
func (m *Metrics) AverageLatency() time.Duration {
	total := m.completed.Load() + m.failed.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNs.Load() / total)
}

// P99Latency はP99実行時間を返す（サンプルベース）
func (m *Metrics) P99Latency() time.Duration {
	m.mu.RLock()
	sorted := slices.Clone(m.latencies)
	m.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Throughput は開始からの平均完了ジョブ数/秒を返す
func (m *Metrics) Throughput() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.completed.Load()) / elapsed
}

// Reset はレイテンシのサンプルを破棄する
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = m.latencies[:0]
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	Submitted      uint64        `json:"submitted"`
	Rejected       uint64        `json:"rejected"`
	Completed      uint64        `json:"completed"`
	Failed         uint64        `json:"failed"`
	Pending        uint64        `json:"pending"`
	Throughput     float64       `json:"throughput"`
	AverageLatency time.Duration `json:"average_latency_ns"`
	P99Latency     time.Duration `json:"p99_latency_ns"`
	Elapsed        time.Duration `json:"elapsed_ns"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Submitted:      m.Submitted(),
		Rejected:       m.Rejected(),
		Completed:      m.Completed(),
		Failed:         m.Failed(),
		Pending:        m.Pending(),
		Throughput:     m.Throughput(),
		AverageLatency: m.AverageLatency(),
		P99Latency:     m.P99Latency(),
		Elapsed:        time.Since(m.startTime),
	}
}
