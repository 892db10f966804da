package worker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"threadpool/internal/events"
	"threadpool/internal/logger"
	"threadpool/internal/metrics"
	"threadpool/internal/queue"
)

var (
	// ErrPoolStopped はプール停止後の Execute で返される
	ErrPoolStopped = errors.New("worker: pool is stopped")
	// ErrNilJob は nil のジョブが渡された場合に返される
	ErrNilJob = errors.New("worker: job is nil")
)

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	Size    int              // ワーカー数（正の数のみ）
	Logger  *logger.Logger   // nil で logger.Default
	Metrics *metrics.Metrics // nil で新規作成
	Events  *events.Bus      // nil でイベントを発行しない
}

// Pool は固定数のワーカーと共有キューを管理する
type Pool struct {
	workers []*Worker
	queue   *queue.Queue[Job]
	sender  atomic.Pointer[queue.Queue[Job]]
	env     *workerEnv

	stopMu sync.Mutex
}

// New は size 個のワーカーを持つプールを作成する
// size が 0 以下の場合は panic する
func New(size int) *Pool {
	return NewWithConfig(PoolConfig{Size: size})
}

// NewWithConfig は設定を指定してプールを作成する
// 全ワーカーが稼働状態になってから返る
func NewWithConfig(config PoolConfig) *Pool {
	if config.Size <= 0 {
		panic(fmt.Sprintf("worker: pool size must be positive, got %d", config.Size))
	}

	env := &workerEnv{
		log:     config.Logger,
		metrics: config.Metrics,
		bus:     config.Events,
	}
	if env.log == nil {
		env.log = logger.Default
	}
	if env.metrics == nil {
		env.metrics = metrics.New()
	}

	q := queue.New[Job]()
	p := &Pool{
		workers: make([]*Worker, 0, config.Size),
		queue:   q,
		env:     env,
	}
	p.sender.Store(q)

	var ready sync.WaitGroup
	ready.Add(config.Size)
	for id := range config.Size {
		p.workers = append(p.workers, newWorker(id, q, env, &ready))
	}
	ready.Wait()

	env.log.Info("pool", "WorkerPool started with %d workers", config.Size)

	return p
}

// Execute はジョブをキューに送信する。ブロックしない
// 停止処理の開始後は ErrPoolStopped を返し、ジョブは実行されない
func (p *Pool) Execute(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	q := p.sender.Load()
	if q == nil {
		p.env.metrics.RecordRejected()
		return ErrPoolStopped
	}

	if err := q.Send(job); err != nil {
		p.env.metrics.RecordRejected()
		return fmt.Errorf("%w: could not send job to worker: %w", ErrPoolStopped, err)
	}

	p.env.metrics.RecordSubmitted()
	return nil
}

// Stop はキューをクローズし、全ワーカーの終了を待つ
// キューに残っているジョブは終了前に実行される
// 2回目以降の呼び出しは何もしない
// ジョブの中から呼んではならない。実行中のワーカー自身を待つため戻らない
func (p *Pool) Stop() {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()

	q := p.sender.Swap(nil)
	if q == nil {
		return
	}
	q.Close()

	for _, w := range p.workers {
		p.env.log.Info("pool", "Shutting down worker %d", w.id)

		h := w.take()
		if h == nil {
			continue
		}
		if err := h.join(); err != nil {
			p.env.log.Error("pool", "Error shutting down worker %d: %v", w.id, err)
		}
	}

	p.env.bus.Publish(events.NewPoolStoppedEvent())
	p.env.log.Info("pool", "WorkerPool stopped")
}

// Size はワーカー数を返す
func (p *Pool) Size() int {
	return len(p.workers)
}

// ActiveWorkers は稼働中のワーカー数を返す
func (p *Pool) ActiveWorkers() int {
	return int(p.env.active.Load())
}

// QueueLength はまだワーカーに渡されていないジョブ数を返す
func (p *Pool) QueueLength() int {
	return p.queue.Len()
}

// IsStopped は停止処理が開始されたかどうかを返す
func (p *Pool) IsStopped() bool {
	return p.sender.Load() == nil
}

// Metrics はプールのメトリクスを返す
func (p *Pool) Metrics() *metrics.Metrics {
	return p.env.metrics
}
