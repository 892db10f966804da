package worker

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"threadpool/internal/events"
	"threadpool/internal/logger"
	"threadpool/internal/metrics"
)

// syncBuffer はゴルーチン間で共有できる bytes.Buffer
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietPool(size int) *Pool {
	return NewWithConfig(PoolConfig{Size: size, Logger: logger.New(io.Discard, logger.LevelError)})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewPool(t *testing.T) {
	for _, size := range []int{1, 2, 4, 16} {
		pool := quietPool(size)

		if pool.Size() != size {
			t.Errorf("expected %d workers, got %d", size, pool.Size())
		}
		if pool.ActiveWorkers() != size {
			t.Errorf("expected %d live workers when New returns, got %d", size, pool.ActiveWorkers())
		}
		for i, w := range pool.workers {
			if w.ID() != i {
				t.Errorf("expected worker id %d, got %d", i, w.ID())
			}
		}

		pool.Stop()
	}
}

func TestNewPoolZeroSizePanics(t *testing.T) {
	for _, size := range []int{0, -1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("expected New(%d) to panic", size)
				}
			}()
			New(size)
		}()
	}
}

func TestPoolExecuteRunsEveryJob(t *testing.T) {
	pool := quietPool(2)

	var counter atomic.Int32
	for range 4 {
		if err := pool.Execute(func() { counter.Add(1) }); err != nil {
			t.Fatalf("unexpected execute error: %v", err)
		}
	}

	pool.Stop()

	if counter.Load() != 4 {
		t.Errorf("expected counter 4 after stop, got %d", counter.Load())
	}
}

func TestPoolExecuteExactlyOnce(t *testing.T) {
	pool := quietPool(4)

	const jobs = 1000
	runs := make([]atomic.Int32, jobs)

	for i := range jobs {
		if err := pool.Execute(func() { runs[i].Add(1) }); err != nil {
			t.Fatalf("unexpected execute error: %v", err)
		}
	}

	pool.Stop()

	for i := range runs {
		if n := runs[i].Load(); n != 1 {
			t.Fatalf("job %d ran %d times", i, n)
		}
	}
	if got := pool.Metrics().Completed(); got != jobs {
		t.Errorf("expected %d completed jobs in metrics, got %d", jobs, got)
	}
}

func TestPoolStopDrainsQueuedJobs(t *testing.T) {
	pool := quietPool(1)

	var slowDone atomic.Bool
	var counter atomic.Int32

	start := time.Now()
	_ = pool.Execute(func() {
		time.Sleep(50 * time.Millisecond)
		slowDone.Store(true)
	})
	_ = pool.Execute(func() { counter.Add(1) })

	pool.Stop()

	if !slowDone.Load() {
		t.Error("expected slow job to complete before Stop returned")
	}
	if counter.Load() != 1 {
		t.Errorf("expected queued job to run before Stop returned, got %d", counter.Load())
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Stop returned after %v, before the slow job could finish", elapsed)
	}
}

func TestPoolStopJoinsAllWorkers(t *testing.T) {
	pool := quietPool(8)

	for range 100 {
		_ = pool.Execute(func() { time.Sleep(time.Millisecond) })
	}

	pool.Stop()

	if pool.ActiveWorkers() != 0 {
		t.Errorf("expected 0 live workers after Stop, got %d", pool.ActiveWorkers())
	}
	for _, w := range pool.workers {
		if w.take() != nil {
			t.Errorf("worker %d handle should have been taken", w.ID())
		}
	}
}

func TestPoolExecuteAfterStop(t *testing.T) {
	pool := quietPool(3)
	pool.Stop()

	var ran atomic.Bool
	err := pool.Execute(func() { ran.Store(true) })
	if !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if ran.Load() {
		t.Error("job submitted after Stop must never run")
	}
	if !pool.IsStopped() {
		t.Error("expected IsStopped to be true")
	}
	if pool.Metrics().Rejected() != 1 {
		t.Errorf("expected 1 rejected job, got %d", pool.Metrics().Rejected())
	}
}

func TestPoolDoubleStop(t *testing.T) {
	pool := quietPool(2)

	pool.Stop()
	pool.Stop()

	if pool.ActiveWorkers() != 0 {
		t.Errorf("expected 0 live workers, got %d", pool.ActiveWorkers())
	}
}

func TestPoolConcurrentStop(t *testing.T) {
	pool := quietPool(4)

	var counter atomic.Int32
	for range 20 {
		_ = pool.Execute(func() {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		})
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Stop()
			if pool.ActiveWorkers() != 0 {
				t.Error("Stop returned while workers were still live")
			}
		}()
	}
	wg.Wait()

	if counter.Load() != 20 {
		t.Errorf("expected 20 jobs, got %d", counter.Load())
	}
}

func TestPoolExecuteNilJob(t *testing.T) {
	pool := quietPool(1)
	defer pool.Stop()

	if err := pool.Execute(nil); !errors.Is(err, ErrNilJob) {
		t.Errorf("expected ErrNilJob, got %v", err)
	}
}

func TestPoolExecuteDoesNotBlock(t *testing.T) {
	pool := quietPool(1)

	blocker := make(chan struct{})
	picked := make(chan struct{})
	_ = pool.Execute(func() {
		close(picked)
		<-blocker
	})
	<-picked

	done := make(chan struct{})
	go func() {
		for range 1000 {
			_ = pool.Execute(func() {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Execute blocked while the only worker was busy")
	}

	if pool.QueueLength() != 1000 {
		t.Errorf("expected 1000 queued jobs, got %d", pool.QueueLength())
	}

	close(blocker)
	pool.Stop()

	if pool.QueueLength() != 0 {
		t.Errorf("expected empty queue after Stop, got %d", pool.QueueLength())
	}
}

func TestPoolConcurrentSubmit(t *testing.T) {
	pool := quietPool(4)

	var counter atomic.Int32
	const numGoroutines = 10
	const jobsPerGoroutine = 100

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobsPerGoroutine {
				if err := pool.Execute(func() { counter.Add(1) }); err != nil {
					t.Errorf("unexpected execute error: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	pool.Stop()

	expected := int32(numGoroutines * jobsPerGoroutine)
	if counter.Load() != expected {
		t.Errorf("expected %d jobs completed, got %d", expected, counter.Load())
	}
}

func TestPoolPanickingJobReducesCapacity(t *testing.T) {
	out := &syncBuffer{}
	m := metrics.New()
	pool := NewWithConfig(PoolConfig{
		Size:    2,
		Logger:  logger.New(out, logger.LevelInfo),
		Metrics: m,
	})

	_ = pool.Execute(func() { panic("boom") })
	waitFor(t, func() bool { return pool.ActiveWorkers() == 1 })

	var counter atomic.Int32
	for range 10 {
		if err := pool.Execute(func() { counter.Add(1) }); err != nil {
			t.Fatalf("pool should keep accepting jobs, got %v", err)
		}
	}

	pool.Stop()

	if counter.Load() != 10 {
		t.Errorf("expected remaining worker to run 10 jobs, got %d", counter.Load())
	}
	if m.Failed() != 1 {
		t.Errorf("expected 1 failed job, got %d", m.Failed())
	}

	output := out.String()
	if !strings.Contains(output, "Error shutting down worker") {
		t.Errorf("expected join failure to be logged, got:\n%s", output)
	}
	if !strings.Contains(output, "boom") {
		t.Errorf("expected panic value in log, got:\n%s", output)
	}
}

func TestPoolEvents(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe()

	pool := NewWithConfig(PoolConfig{
		Size:   3,
		Logger: logger.New(io.Discard, logger.LevelError),
		Events: bus,
	})
	_ = pool.Execute(func() {})
	pool.Stop()

	counts := make(map[events.EventType]int)
	var last events.Event
	for len(ch) > 0 {
		last = <-ch
		counts[last.Type]++
	}

	if counts[events.EventWorkerStarted] != 3 {
		t.Errorf("expected 3 worker_started events, got %d", counts[events.EventWorkerStarted])
	}
	if counts[events.EventJobPicked] != 1 {
		t.Errorf("expected 1 job_picked event, got %d", counts[events.EventJobPicked])
	}
	if counts[events.EventWorkerStopped] != 3 {
		t.Errorf("expected 3 worker_stopped events, got %d", counts[events.EventWorkerStopped])
	}
	if last.Type != events.EventPoolStopped {
		t.Errorf("expected last event %s, got %s", events.EventPoolStopped, last.Type)
	}
}

func TestPoolLogsShutdown(t *testing.T) {
	out := &syncBuffer{}
	pool := NewWithConfig(PoolConfig{Size: 2, Logger: logger.New(out, logger.LevelDebug)})

	_ = pool.Execute(func() {})
	pool.Stop()

	output := out.String()
	for _, want := range []string{
		"WorkerPool started with 2 workers",
		"got a job; executing.",
		"Shutting down worker 0",
		"Shutting down worker 1",
		"No more jobs; shutting down.",
		"WorkerPool stopped",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in log output", want)
		}
	}
}

func TestPoolStopTriggeredByJob(t *testing.T) {
	pool := quietPool(2)

	var ran atomic.Int32
	stopped := make(chan struct{})
	// ジョブ内から直接 Stop せず、別ゴルーチンに委ねる
	err := pool.Execute(func() {
		ran.Add(1)
		go func() {
			pool.Stop()
			close(stopped)
		}()
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop started from a job did not return")
	}

	if ran.Load() != 1 {
		t.Errorf("expected job to run once, got %d", ran.Load())
	}
	if n := pool.ActiveWorkers(); n != 0 {
		t.Errorf("expected 0 active workers after Stop, got %d", n)
	}
	if err := pool.Execute(func() {}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPoolSkipsPickupLogAboveDebug(t *testing.T) {
	out := &syncBuffer{}
	pool := NewWithConfig(PoolConfig{Size: 1, Logger: logger.New(out, logger.LevelInfo)})

	_ = pool.Execute(func() {})
	pool.Stop()

	output := out.String()
	if strings.Contains(output, "got a job; executing.") {
		t.Error("pickup line should not be written at info level")
	}
	if !strings.Contains(output, "No more jobs; shutting down.") {
		t.Error("expected shutdown line at info level")
	}
}
