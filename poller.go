package acsp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type connPoll struct {
	cancel context.CancelFunc
}

// startPoller hooks the connection poller on new_connection and
// connection_closed. Both events cancel any poll running for the same car,
// new_connection then starts a fresh one.
func (c *Client) startPoller() {
	c.disp.subscribe(EventNewConnection, func(ev Event) {
		if cn, ok := ev.(*Connection); ok {
			c.watchConnection(cn.CarID)
		}
	})
	c.disp.subscribe(EventConnectionClosed, func(ev Event) {
		if cn, ok := ev.(*Connection); ok {
			c.cancelPoll(cn.CarID)
		}
	})
}

// watchConnection starts polling car info for carID until the car reports
// as connected.
func (c *Client) watchConnection(carID uint8) {
	ctx, cancel := context.WithCancel(c.ctx)
	p := &connPoll{cancel: cancel}

	c.pollsLk.Lock()
	defer c.pollsLk.Unlock()

	// Close cancels c.ctx before stopPoller takes pollsLk, so no poll can be
	// added once Close waits on wg
	if c.ctx.Err() != nil {
		cancel()
		return
	}
	if old, ok := c.polls[carID]; ok {
		old.cancel()
	}
	c.polls[carID] = p

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pollConnection(ctx, carID, p)
	}()
}

// cancelPoll stops the poll for carID, if any. Once it returns no
// car_connected event will be emitted by that poll.
func (c *Client) cancelPoll(carID uint8) {
	c.pollsLk.Lock()
	defer c.pollsLk.Unlock()

	if p, ok := c.polls[carID]; ok {
		p.cancel()
		delete(c.polls, carID)
	}
}

func (c *Client) endPoll(carID uint8, p *connPoll) {
	c.pollsLk.Lock()
	defer c.pollsLk.Unlock()

	p.cancel()
	if c.polls[carID] == p {
		delete(c.polls, carID)
	}
}

func (c *Client) stopPoller() {
	c.pollsLk.Lock()
	defer c.pollsLk.Unlock()

	for id, p := range c.polls {
		p.cancel()
		delete(c.polls, id)
	}
}

func (c *Client) pollConnection(ctx context.Context, carID uint8, p *connPoll) {
	defer c.endPoll(carID, p)

	for attempt := 1; ; attempt++ {
		info, err := c.GetCarInfo(ctx, carID)
		switch {
		case err == nil && info.IsConnected:
			if c.disp.emitIf(ctx, EventCarConnected, info) {
				c.log.Debug(fmt.Sprintf("[acsp] car %d confirmed connected after %d attempts", carID, attempt), "event", "acsp:poller:connected")
			}
			return
		case err != nil && !errors.Is(err, ErrTimeout):
			if ctx.Err() == nil {
				c.log.Debug(fmt.Sprintf("[acsp] car %d poll failed: %s", carID, err), "event", "acsp:poller:fail")
			}
		}

		t := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			c.log.Debug(fmt.Sprintf("[acsp] car %d poll cancelled", carID), "event", "acsp:poller:cancel")
			return
		case <-t.C:
		}
	}
}

// polling returns true if a poll is running for carID.
func (c *Client) polling(carID uint8) bool {
	c.pollsLk.Lock()
	defer c.pollsLk.Unlock()
	_, ok := c.polls[carID]
	return ok
}
