package queue

import (
	"errors"
	"sync"

	"github.com/gammazero/deque"
)

// ErrClosed はクローズ済みキューへの送信、またはクローズ済みかつ空のキューからの受信で返される
var ErrClosed = errors.New("queue: queue is closed")

// Queue は上限のない MPMC キュー
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  deque.Deque[T]
	closed bool
}

// New は空のオープンなキューを作成する
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send はアイテムをキューに追加する。ブロックしない
func (q *Queue[T]) Send(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.items.PushBack(item)
	q.cond.Signal()
	return nil
}

// Recv はアイテムが届くまでブロックする
// クローズ済みかつ空になった場合はゼロ値と ErrClosed を返す
func (q *Queue[T]) Recv() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.items.Len() == 0 {
		var zero T
		return zero, ErrClosed
	}

	item := q.items.PopFront()
	return item, nil
}

// Close は以降の送信を無効にし、待機中の受信者を全て起こす
// 2回目以降の呼び出しは何もしない
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Len はキューに残っているアイテム数を返す
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Closed はキューがクローズ済みかどうかを返す
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
