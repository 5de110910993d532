package acsp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KarpelesLab/rchan"
)

// request sends buf and waits for the first event of type t accepted by
// match. It fails with ErrTimeout after the client request timeout, or with
// the cause of ctx if ctx is done first.
//
// A failed write does not fail the request: the protocol has no
// acknowledgement, so only the timeout decides. Error packets from the
// server are not matched against pending requests either.
func (c *Client) request(ctx context.Context, buf []byte, t EventType, match func(Event) bool) (Event, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeoutCause(ctx, c.reqTimeout, ErrTimeout)
	defer cancel()

	// build response pipe
	id, res := rchan.New()
	defer id.Release()

	// register before sending so a fast response can't be missed
	var once sync.Once
	unsub := c.disp.subscribe(t, func(ev Event) {
		if ctx.Err() != nil || !match(ev) {
			return
		}
		once.Do(func() { deliver(id, ev) })
	})
	defer unsub()

	sent := c.queue.Enqueue(buf)

	for {
		select {
		case err := <-sent:
			sent = nil
			if err != nil {
				c.log.Warn(fmt.Sprintf("[acsp] failed sending %s request, waiting for timeout: %s", PacketKind(buf[0]), err), "event", "acsp:request:sendfail")
			}
		case v := <-res:
			if ev, ok := v.(Event); ok {
				return ev, nil
			}
		case <-c.ctx.Done():
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}
}

// deliver passes a matching response to the waiting request without
// blocking the dispatcher.
func deliver(id rchan.Id, ev Event) {
	c := id.C()
	if c == nil {
		// request already gone
		return
	}

	select {
	case c <- ev:
		return
	default:
	}

	go func() {
		t := time.NewTimer(time.Second)
		defer t.Stop()

		select {
		case c <- ev:
		case <-t.C:
			// timeout
		}
	}()
}

// GetCarInfo asks the server for information on the given car. Responses for
// other cars are ignored, concurrent lookups for different cars resolve
// independently.
func (c *Client) GetCarInfo(ctx context.Context, carID uint8) (*CarInfo, error) {
	ev, err := c.request(ctx, EncodeGetCarInfo(carID), EventCarInfo, func(ev Event) bool {
		info, ok := ev.(*CarInfo)
		return ok && info.CarID == carID
	})
	if err != nil {
		return nil, err
	}
	return ev.(*CarInfo), nil
}

// GetSessionInfo asks the server for information on the session at the
// given index, or on the current session if sessionIndex is CurrentSession.
func (c *Client) GetSessionInfo(ctx context.Context, sessionIndex int) (*SessionInfo, error) {
	buf, err := EncodeGetSessionInfo(sessionIndex)
	if err != nil {
		return nil, err
	}
	ev, err := c.request(ctx, buf, EventSessionInfo, func(ev Event) bool {
		s, ok := ev.(*SessionInfo)
		return ok && matchSession(sessionIndex, s)
	})
	if err != nil {
		return nil, err
	}
	return ev.(*SessionInfo), nil
}

func matchSession(requested int, s *SessionInfo) bool {
	if requested == CurrentSession {
		return s.SessionIndex == s.CurrentSessionIndex
	}
	return int(s.SessionIndex) == requested
}

// GetVersion returns the protocol version of the server, as reported in the
// current session info.
func (c *Client) GetVersion(ctx context.Context) (uint8, error) {
	s, err := c.GetSessionInfo(ctx, CurrentSession)
	if err != nil {
		return 0, err
	}
	return s.Version, nil
}

// pendingRequests returns the number of listeners waiting for events of
// type t.
func (c *Client) pendingRequests(t EventType) int {
	return c.disp.listeners(t)
}
