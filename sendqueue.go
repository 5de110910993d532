package acsp

import (
	"context"
	"sync"
)

type sendReq struct {
	buf []byte
	res chan error
}

// sendQueue serializes writes to the socket: one write in flight at a time,
// in submission order. The queue is unbounded.
type sendQueue struct {
	write func([]byte) error

	lk     sync.Mutex
	q      []*sendReq
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newSendQueue(write func([]byte) error) *sendQueue {
	q := &sendQueue{
		write: write,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue schedules buf to be written. The returned channel receives the
// result of the write (nil on success) exactly once.
func (q *sendQueue) Enqueue(buf []byte) <-chan error {
	req := &sendReq{buf: buf, res: make(chan error, 1)}

	q.lk.Lock()
	if q.closed {
		q.lk.Unlock()
		req.res <- ErrClosed
		return req.res
	}
	q.q = append(q.q, req)
	q.lk.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return req.res
}

// Send enqueues buf and waits for it to be written. If ctx is done first the
// write stays queued and ctx.Err() is returned.
func (q *sendQueue) Send(ctx context.Context, buf []byte) error {
	select {
	case err := <-q.Enqueue(buf):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *sendQueue) pop() (*sendReq, bool) {
	q.lk.Lock()
	defer q.lk.Unlock()

	if len(q.q) == 0 {
		return nil, q.closed
	}
	req := q.q[0]
	q.q[0] = nil
	q.q = q.q[1:]
	return req, false
}

func (q *sendQueue) run() {
	defer close(q.done)

	for {
		req, closed := q.pop()
		if closed {
			return
		}
		if req == nil {
			<-q.wake
			continue
		}
		// a failed write does not affect the ones queued after it
		req.res <- q.write(req.buf)
	}
}

// Close rejects writes still in the queue with ErrClosed and stops the
// writer goroutine once the current write, if any, completes.
func (q *sendQueue) Close() {
	q.lk.Lock()
	if q.closed {
		q.lk.Unlock()
		return
	}
	q.closed = true
	pending := q.q
	q.q = nil
	q.lk.Unlock()

	for _, req := range pending {
		req.res <- ErrClosed
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}
