// Package worker provides a fixed-size goroutine pool for concurrent job
// execution.
//
// The Pool owns a fixed set of Workers that consume jobs from one shared,
// unbounded queue. Submission never blocks; each accepted job runs exactly
// once on exactly one worker.
//
// # Basic Usage
//
//	pool := worker.New(4) // 4 workers; New(0) panics
//	defer pool.Stop()
//
//	for i := 0; i < 100; i++ {
//	    if err := pool.Execute(func() {
//	        // do work
//	    }); err != nil {
//	        // pool is stopping or stopped
//	    }
//	}
//
// # Configuration
//
// Use NewWithConfig to attach a logger, metrics, or an event bus:
//
//	pool := worker.NewWithConfig(worker.PoolConfig{
//	    Size:    8,
//	    Logger:  logger.New(os.Stderr, logger.LevelDebug),
//	    Metrics: metrics.New(),
//	    Events:  events.NewBus(),
//	})
//
// # Shutdown
//
// Stop closes the queue and joins every worker in id order. Jobs already
// queued are still drained and run before the workers exit. Go has no
// scope-exit destructor: callers must call Stop, normally via defer,
// otherwise the worker goroutines leak.
//
// Stop must not be called from inside a job. It waits for the worker that
// is running the job, which never finishes, so the call never returns. A
// job that needs to shut the pool down should start a new goroutine that
// calls Stop and return.
//
// A job that panics takes its worker down with it. The panic is reported
// as that worker's exit error when Stop joins it; the other workers keep
// running.
package worker
