package acsp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWriter records writes and checks no two overlap.
type recordingWriter struct {
	lk       sync.Mutex
	order    []string
	inFlight int
	overlap  bool
	delay    time.Duration
	fail     map[string]bool
}

func (w *recordingWriter) write(buf []byte) error {
	w.lk.Lock()
	w.inFlight++
	if w.inFlight > 1 {
		w.overlap = true
	}
	w.lk.Unlock()

	time.Sleep(w.delay)

	w.lk.Lock()
	defer w.lk.Unlock()
	w.inFlight--
	w.order = append(w.order, string(buf))
	if w.fail[string(buf)] {
		return errors.New("write failed")
	}
	return nil
}

func TestSendQueueFIFO(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{delay: time.Millisecond}
	q := newSendQueue(w.write)
	defer q.Close()

	a := q.Enqueue([]byte("A"))
	b := q.Enqueue([]byte("B"))
	c := q.Enqueue([]byte("C"))

	for _, ch := range []<-chan error{a, b, c} {
		require.NoError(t, <-ch)
	}

	w.lk.Lock()
	defer w.lk.Unlock()
	require.Equal(t, []string{"A", "B", "C"}, w.order)
	require.False(t, w.overlap)
}

func TestSendQueueSerialized(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	q := newSendQueue(w.write)
	defer q.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.Send(context.Background(), []byte{byte(i)}))
		}()
	}
	wg.Wait()

	w.lk.Lock()
	defer w.lk.Unlock()
	require.Len(t, w.order, 50)
	require.False(t, w.overlap)
}

func TestSendQueueFailureDoesNotBlock(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{fail: map[string]bool{"B": true}}
	q := newSendQueue(w.write)
	defer q.Close()

	a := q.Enqueue([]byte("A"))
	b := q.Enqueue([]byte("B"))
	c := q.Enqueue([]byte("C"))

	require.NoError(t, <-a)
	require.Error(t, <-b)
	require.NoError(t, <-c)
}

func TestSendQueueClose(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := newSendQueue(func(buf []byte) error {
		started <- struct{}{}
		<-release
		return nil
	})

	first := q.Enqueue([]byte("A"))
	<-started
	second := q.Enqueue([]byte("B"))

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	q.Close()

	require.NoError(t, <-first)
	require.ErrorIs(t, <-second, ErrClosed)
	require.ErrorIs(t, <-q.Enqueue([]byte("C")), ErrClosed)

	// idempotent
	q.Close()
}

func TestSendQueueSendContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	q := newSendQueue(func(buf []byte) error {
		<-release
		return nil
	})
	defer q.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Send(ctx, []byte("A")), context.DeadlineExceeded)
}
