// Package metrics collects job counters and execution latency for a worker
// pool.
//
// Counters are atomic; latency samples are kept in a bounded window used for
// the P99 estimate.
//
//	m := metrics.New()
//	m.RecordSubmitted()
//	start := time.Now()
//	// ... run the job ...
//	m.RecordCompleted(time.Since(start))
//
//	snap := m.Snapshot()
//	fmt.Printf("completed=%d p99=%v\n", snap.Completed, snap.P99Latency)
package metrics
