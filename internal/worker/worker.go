package worker

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"threadpool/internal/events"
	"threadpool/internal/logger"
	"threadpool/internal/metrics"
	"threadpool/internal/queue"
)

// Job はワーカーが実行するジョブを表す
type Job func()

// Receiver はジョブキューの消費側
// *queue.Queue[Job] がこれを満たす
type Receiver interface {
	Recv() (Job, error)
}

// PanicError はジョブの panic によってワーカーが終了したことを表す
type PanicError struct {
	WorkerID int
	Value    any
	Stack    []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker %d: job panicked: %v", e.WorkerID, e.Value)
}

// workerEnv はプール内の全ワーカーで共有される観測用の依存
type workerEnv struct {
	log     *logger.Logger
	metrics *metrics.Metrics
	bus     *events.Bus
	active  atomic.Int32
}

// handle はワーカーのゴルーチンへのハンドル
type handle struct {
	done chan struct{}
	err  error
}

// join はゴルーチンの終了を待ち、終了エラーを返す
func (h *handle) join() error {
	<-h.done
	return h.err
}

// Worker はキューからジョブを取り出して実行する
type Worker struct {
	id     int
	thread atomic.Pointer[handle]
}

// newWorker はワーカーを作成し、ゴルーチンを起動する
// ready はゴルーチンが稼働状態になった時点で Done される
func newWorker(id int, rx Receiver, env *workerEnv, ready *sync.WaitGroup) *Worker {
	w := &Worker{id: id}
	h := &handle{done: make(chan struct{})}
	w.thread.Store(h)

	go w.run(rx, env, h, ready)

	return w
}

// ID はワーカーIDを返す
func (w *Worker) ID() int {
	return w.id
}

func (w *Worker) source() string {
	return fmt.Sprintf("worker-%d", w.id)
}

// take はハンドルを一度だけ取り出す。2回目以降は nil
func (w *Worker) take() *handle {
	return w.thread.Swap(nil)
}

func (w *Worker) run(rx Receiver, env *workerEnv, h *handle, ready *sync.WaitGroup) {
	var start time.Time

	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{WorkerID: w.id, Value: r, Stack: debug.Stack()}
			h.err = err
			env.metrics.RecordFailed(time.Since(start))
			env.log.Error(w.source(), "job panicked; worker exiting: %v", r)
			env.bus.Publish(events.NewWorkerFailedEvent(w.id, err))
		}
		env.active.Add(-1)
		close(h.done)
	}()

	env.active.Add(1)
	env.bus.Publish(events.NewWorkerStartedEvent(w.id))
	ready.Done()

	for {
		job, err := rx.Recv()
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				env.log.Info(w.source(), "No more jobs; shutting down.")
				env.bus.Publish(events.NewWorkerStoppedEvent(w.id, events.ReasonQueueClosed, nil))
			} else {
				env.log.Warn(w.source(), "Failed to receive job from queue; shutting down: %v", err)
				env.bus.Publish(events.NewWorkerStoppedEvent(w.id, events.ReasonRecvFailed, err))
			}
			return
		}

		if env.log.Enabled(logger.LevelDebug) {
			env.log.Debug(w.source(), "Worker %d got a job; executing.", w.id)
		}
		env.bus.Publish(events.NewJobPickedEvent(w.id))

		start = time.Now()
		job()
		env.metrics.RecordCompleted(time.Since(start))
	}
}
