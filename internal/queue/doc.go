// Package queue provides an unbounded multi-producer/multi-consumer queue
// with a one-way closed state.
//
// Any number of goroutines may Send and Recv concurrently. Each item that
// Send accepts is delivered to exactly one Recv caller. Once Close is
// called, Send fails with ErrClosed, and consumers keep receiving the items
// that were already queued until the queue is drained, after which Recv
// returns ErrClosed.
//
// # Basic Usage
//
//	q := queue.New[string]()
//
//	go func() {
//	    for {
//	        item, err := q.Recv()
//	        if errors.Is(err, queue.ErrClosed) {
//	            return
//	        }
//	        fmt.Println(item)
//	    }
//	}()
//
//	_ = q.Send("hello")
//	q.Close()
package queue
