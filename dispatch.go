package acsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/KarpelesLab/emitter"
)

const (
	// emitTimeout bounds how long a slow Events subscriber can hold the hub
	// goroutine for a single event.
	emitTimeout = time.Second

	// hubQueueSize is the number of events waiting for the hub goroutine
	// before new ones are dropped.
	hubQueueSize = 1024
)

type hubEvent struct {
	t  EventType
	ev Event
}

type listener struct {
	fn func(Event)
}

// dispatcher routes decoded packets to typed listeners and to the topics of
// the public event hub.
type dispatcher struct {
	log  *slog.Logger
	hub  *emitter.Hub
	diag io.Writer

	handleLk sync.Mutex // one datagram at a time

	subs   [eventTypeCount][]*listener
	subsLk sync.RWMutex

	hubq    chan hubEvent
	hubDone chan struct{}
}

func newDispatcher(log *slog.Logger, hub *emitter.Hub, diag io.Writer) *dispatcher {
	if diag == nil {
		diag = io.Discard
	}
	return &dispatcher{log: log, hub: hub, diag: diag}
}

// startHub starts the goroutine forwarding events to the hub. Hub
// subscribers are served in order, but never hold up typed listeners.
func (d *dispatcher) startHub(ctx context.Context) {
	if d.hub == nil {
		return
	}
	d.hubq = make(chan hubEvent, hubQueueSize)
	d.hubDone = make(chan struct{})
	go d.runHub(ctx)
}

// waitHub waits for the hub goroutine to exit once ctx is done.
func (d *dispatcher) waitHub() {
	if d.hubDone != nil {
		<-d.hubDone
	}
}

func (d *dispatcher) runHub(ctx context.Context) {
	defer close(d.hubDone)

	for {
		select {
		case <-ctx.Done():
			return
		case he := <-d.hubq:
			d.emitHub(ctx, he)
		}
	}
}

func (d *dispatcher) emitHub(ctx context.Context, he hubEvent) {
	ctx, cancel := context.WithTimeout(ctx, emitTimeout)
	defer cancel()

	err := d.hub.Emit(ctx, he.t.String(), he.ev)
	switch {
	case err == nil, errors.Is(err, emitter.ErrNoSuchTopic), errors.Is(err, context.Canceled):
	default:
		d.log.Debug(fmt.Sprintf("[acsp] failed to emit %s: %s", he.t, err), "event", "acsp:dispatch:emit_fail")
	}
}

// subscribe registers fn for events of type t. The returned function removes
// the registration, it is safe to call more than once.
func (d *dispatcher) subscribe(t EventType, fn func(Event)) func() {
	l := &listener{fn: fn}

	d.subsLk.Lock()
	d.subs[t] = append(d.subs[t], l)
	d.subsLk.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.subsLk.Lock()
			defer d.subsLk.Unlock()
			d.subs[t] = slices.DeleteFunc(d.subs[t], func(v *listener) bool { return v == l })
		})
	}
}

// listeners returns the number of listeners currently registered for t.
func (d *dispatcher) listeners(t EventType) int {
	d.subsLk.RLock()
	defer d.subsLk.RUnlock()
	return len(d.subs[t])
}

// reset drops all registered listeners.
func (d *dispatcher) reset() {
	d.subsLk.Lock()
	defer d.subsLk.Unlock()
	for i := range d.subs {
		d.subs[i] = nil
	}
}

// handleDatagram decodes buf and dispatches the result. Decoding failures
// are logged and reported on the diagnostics channel, never returned.
func (d *dispatcher) handleDatagram(ctx context.Context, buf []byte) {
	d.handleLk.Lock()
	defer d.handleLk.Unlock()

	ev, err := Decode(buf)
	if err != nil {
		d.log.Warn(fmt.Sprintf("[acsp] dropping packet: %s", err), "event", "acsp:dispatch:malformed", "acsp.len", len(buf))
		d.diagf("drop len=%d: %s", len(buf), err)
		return
	}
	d.dispatch(ctx, ev)
}

// post dispatches an event that did not come from a datagram.
func (d *dispatcher) post(ctx context.Context, ev Event) {
	d.handleLk.Lock()
	defer d.handleLk.Unlock()
	d.dispatch(ctx, ev)
}

// emitIf emits ev on t unless ctx is done by the time the dispatcher is
// free. Callers cancelling ctx from a listener are guaranteed ev is not
// emitted afterwards.
func (d *dispatcher) emitIf(ctx context.Context, t EventType, ev Event) bool {
	d.handleLk.Lock()
	defer d.handleLk.Unlock()
	if ctx.Err() != nil {
		return false
	}
	d.emit(ctx, t, ev)
	return true
}

// dispatch emits ev on its canonical channel, plus the derived channels for
// new sessions and collisions.
func (d *dispatcher) dispatch(ctx context.Context, ev Event) {
	switch v := ev.(type) {
	case *SessionInfo:
		d.emit(ctx, EventSessionInfo, v)
		if v.Fresh {
			d.emit(ctx, EventNewSession, v)
		}
	case *EndSession:
		d.emit(ctx, EventEndSession, v)
	case *Connection:
		if v.Closed {
			d.emit(ctx, EventConnectionClosed, v)
		} else {
			d.emit(ctx, EventNewConnection, v)
		}
	case *CarUpdate:
		d.emit(ctx, EventCarUpdate, v)
	case *CarInfo:
		d.emit(ctx, EventCarInfo, v)
	case *Version:
		d.emit(ctx, EventVersion, v)
	case *Chat:
		d.emit(ctx, EventChat, v)
	case *ClientLoaded:
		d.emit(ctx, EventClientLoaded, v)
	case *ServerError:
		// the protocol gives no way to attribute this to a pending request
		d.log.Warn(fmt.Sprintf("[acsp] server reported error: %s", v.Message), "event", "acsp:dispatch:server_error")
		d.emit(ctx, EventError, v)
	case *LapCompleted:
		d.emit(ctx, EventLapCompleted, v)
	case *ClientEvent:
		d.emit(ctx, EventClientEvent, v)
		switch v.Type {
		case CollisionWithCar:
			d.emit(ctx, EventCollideCar, v)
		case CollisionWithEnv:
			d.emit(ctx, EventCollideEnv, v)
		default:
			d.log.Debug(fmt.Sprintf("[acsp] unknown client event type %d", v.Type), "event", "acsp:dispatch:unknown_client_event")
		}
	case *UnknownPacket:
		d.log.Warn(fmt.Sprintf("[acsp] unknown packet received 0x%02x", uint8(v.Type)), "event", "acsp:dispatch:unknown_packet")
		d.diagf("unknown kind=%d len=%d", uint8(v.Type), len(v.Data)+1)
		d.emit(ctx, EventUnknown, v)
	case *SocketError:
		d.emit(ctx, EventSocketError, v)
	}
}

func (d *dispatcher) emit(ctx context.Context, t EventType, ev Event) {
	d.subsLk.RLock()
	subs := slices.Clone(d.subs[t])
	d.subsLk.RUnlock()

	for _, l := range subs {
		d.call(t, l, ev)
	}

	if d.hubq == nil || ctx.Err() != nil {
		return
	}
	select {
	case d.hubq <- hubEvent{t: t, ev: ev}:
	default:
		d.log.Warn(fmt.Sprintf("[acsp] hub queue full, dropping %s event", t), "event", "acsp:dispatch:hub_full")
		d.diagf("hub drop %s", t)
	}
}

func (d *dispatcher) call(t EventType, l *listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error(fmt.Sprintf("[acsp] Panic in %s listener: %s", t, r), "event", "acsp:dispatch:panic", "category", "go.panic")
		}
	}()
	l.fn(ev)
}

func (d *dispatcher) diagf(format string, args ...any) {
	fmt.Fprintf(d.diag, "%s %s\n", time.Now().UTC().Format(time.RFC3339Nano), fmt.Sprintf(format, args...))
}
