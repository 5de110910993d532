package acsp

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

// collector records the event types seen by a dispatcher.
type collector struct {
	lk   sync.Mutex
	seen []EventType
	evs  []Event
}

func (c *collector) listen(d *dispatcher) {
	for _, t := range EventTypes() {
		d.subscribe(t, func(ev Event) {
			c.lk.Lock()
			defer c.lk.Unlock()
			c.seen = append(c.seen, t)
			c.evs = append(c.evs, ev)
		})
	}
}

func (c *collector) types() []EventType {
	c.lk.Lock()
	defer c.lk.Unlock()
	return append([]EventType(nil), c.seen...)
}

func newTestDispatcher(t *testing.T) (*dispatcher, *collector, *bytes.Buffer) {
	diag := &bytes.Buffer{}
	d := newDispatcher(slogt.New(t, slogt.Text()), nil, diag)
	col := &collector{}
	col.listen(d)
	return d, col, diag
}

func TestDispatchRouting(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		buf  []byte
		want []EventType
	}{
		{"new session", sessionInfoPacket(PacketNewSession, 0, 0), []EventType{EventSessionInfo, EventNewSession}},
		{"session info", sessionInfoPacket(PacketSessionInfo, 0, 0), []EventType{EventSessionInfo}},
		{"end session", newPkt(PacketEndSession).wide("x.json").bytes(), []EventType{EventEndSession}},
		{"new connection", connectionPacket(PacketNewConnection, 1), []EventType{EventNewConnection}},
		{"connection closed", connectionPacket(PacketConnectionClosed, 1), []EventType{EventConnectionClosed}},
		{"car info", carInfoPacket(1, true), []EventType{EventCarInfo}},
		{"version", []byte{byte(PacketVersion), 4}, []EventType{EventVersion}},
		{"chat", newPkt(PacketChat).u8(1).wide("hi").bytes(), []EventType{EventChat}},
		{"client loaded", []byte{byte(PacketClientLoaded), 1}, []EventType{EventClientLoaded}},
		{"error", newPkt(PacketError).wide("oops").bytes(), []EventType{EventError}},
		{
			"collide car",
			newPkt(PacketClientEvent).u8(uint8(CollisionWithCar)).u8(1).u8(2).f32(1).vec(0, 0, 0).vec(0, 0, 0).bytes(),
			[]EventType{EventClientEvent, EventCollideCar},
		},
		{
			"collide env",
			newPkt(PacketClientEvent).u8(uint8(CollisionWithEnv)).u8(1).f32(1).vec(0, 0, 0).vec(0, 0, 0).bytes(),
			[]EventType{EventClientEvent, EventCollideEnv},
		},
		{
			"other client event",
			newPkt(PacketClientEvent).u8(99).u8(1).f32(1).vec(0, 0, 0).vec(0, 0, 0).bytes(),
			[]EventType{EventClientEvent},
		},
		{"unknown", []byte{42, 1}, []EventType{EventUnknown}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d, col, _ := newTestDispatcher(t)
			d.handleDatagram(context.Background(), tc.buf)
			require.Equal(t, tc.want, col.types())
		})
	}
}

func TestDispatchSameEvent(t *testing.T) {
	t.Parallel()

	d, col, _ := newTestDispatcher(t)
	d.handleDatagram(context.Background(), newPkt(PacketClientEvent).u8(uint8(CollisionWithCar)).u8(1).u8(2).f32(1).vec(0, 0, 0).vec(0, 0, 0).bytes())

	col.lk.Lock()
	defer col.lk.Unlock()
	require.Len(t, col.evs, 2)
	require.Same(t, col.evs[0], col.evs[1])
}

func TestDispatchMalformed(t *testing.T) {
	t.Parallel()

	d, col, diag := newTestDispatcher(t)

	// none of these may panic or emit anything
	d.handleDatagram(context.Background(), nil)
	d.handleDatagram(context.Background(), []byte{byte(PacketCarUpdate), 1, 2})
	d.handleDatagram(context.Background(), []byte{byte(PacketCarInfo), 1, 1, 0, 200})
	require.Empty(t, col.types())

	lines := strings.Split(strings.TrimSpace(diag.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "malformed CarUpdate packet")
}

func TestDispatchUnknownDiagnostics(t *testing.T) {
	t.Parallel()

	d, _, diag := newTestDispatcher(t)
	d.handleDatagram(context.Background(), []byte{77, 1, 2, 3})
	require.Contains(t, diag.String(), "unknown kind=77 len=4")
}

func TestDispatchOrder(t *testing.T) {
	t.Parallel()

	d, col, _ := newTestDispatcher(t)
	for i := 0; i < 10; i++ {
		d.handleDatagram(context.Background(), []byte{byte(PacketClientLoaded), byte(i)})
	}

	col.lk.Lock()
	defer col.lk.Unlock()
	for i, ev := range col.evs {
		require.Equal(t, uint8(i), ev.(*ClientLoaded).CarID)
	}
}

func TestDispatchListenerPanic(t *testing.T) {
	t.Parallel()

	d, col, _ := newTestDispatcher(t)
	d.subscribe(EventVersion, func(Event) { panic("boom") })

	d.handleDatagram(context.Background(), []byte{byte(PacketVersion), 4})
	d.handleDatagram(context.Background(), []byte{byte(PacketVersion), 5})
	require.Equal(t, []EventType{EventVersion, EventVersion}, col.types())
}

func TestDispatchUnsubscribe(t *testing.T) {
	t.Parallel()

	d := newDispatcher(slogt.New(t, slogt.Text()), nil, nil)
	n := 0
	cancel := d.subscribe(EventVersion, func(Event) { n++ })
	require.Equal(t, 1, d.listeners(EventVersion))

	d.handleDatagram(context.Background(), []byte{byte(PacketVersion), 4})
	cancel()
	cancel()
	require.Zero(t, d.listeners(EventVersion))

	d.handleDatagram(context.Background(), []byte{byte(PacketVersion), 4})
	require.Equal(t, 1, n)
}

func TestEventTypeNames(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for _, et := range EventTypes() {
		name := et.String()
		require.NotEmpty(t, name)
		require.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
	require.Equal(t, "collide_car", EventCollideCar.String())
	require.Equal(t, "car_update", EventCarUpdate.String())
}
