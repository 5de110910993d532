package acsp

import (
	"bytes"
	"encoding/binary"
	"math"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

// memTransport is an in-memory Transport. Datagrams given to inject are
// returned by ReadFrom, writes are recorded.
type memTransport struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	lk      sync.Mutex
	writes  [][]byte
	written chan []byte
	fail    func([]byte) error
}

func newMemTransport() *memTransport {
	return &memTransport{
		in:      make(chan []byte, 64),
		closed:  make(chan struct{}),
		written: make(chan []byte, 256),
	}
}

var memAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultPort}

func (m *memTransport) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case b := <-m.in:
		return copy(p, b), memAddr, nil
	case <-m.closed:
		return 0, nil, net.ErrClosed
	}
}

func (m *memTransport) WriteTo(p []byte, addr net.Addr) (int, error) {
	m.lk.Lock()
	fail := m.fail
	m.lk.Unlock()
	if fail != nil {
		if err := fail(p); err != nil {
			return 0, err
		}
	}

	b := bytes.Clone(p)
	m.lk.Lock()
	m.writes = append(m.writes, b)
	m.lk.Unlock()

	select {
	case m.written <- b:
	default:
	}
	return len(p), nil
}

func (m *memTransport) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *memTransport) inject(b []byte) {
	m.in <- b
}

func (m *memTransport) setFail(f func([]byte) error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.fail = f
}

func (m *memTransport) allWrites() [][]byte {
	m.lk.Lock()
	defer m.lk.Unlock()
	return slices.Clone(m.writes)
}

// nextWrite waits for the next packet written by the client.
func (m *memTransport) nextWrite(t *testing.T) []byte {
	t.Helper()
	select {
	case b := <-m.written:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a packet to be written")
		return nil
	}
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *memTransport) {
	t.Helper()
	m := newMemTransport()
	opts = append([]Option{
		WithTransport(m),
		WithLogger(slogt.New(t, slogt.Text())),
		Host("127.0.0.1"),
	}, opts...)
	c, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, m
}

// pkt builds datagrams for tests.
type pkt struct {
	buf []byte
}

func newPkt(k PacketKind) *pkt {
	return &pkt{buf: []byte{byte(k)}}
}

func (p *pkt) u8(v uint8) *pkt {
	p.buf = append(p.buf, v)
	return p
}

func (p *pkt) u16(v uint16) *pkt {
	p.buf = binary.LittleEndian.AppendUint16(p.buf, v)
	return p
}

func (p *pkt) u32(v uint32) *pkt {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
	return p
}

func (p *pkt) f32(v float32) *pkt {
	return p.u32(math.Float32bits(v))
}

func (p *pkt) vec(x, y, z float32) *pkt {
	return p.f32(x).f32(y).f32(z)
}

func (p *pkt) wide(s string) *pkt {
	p.buf = appendWide(p.buf, s)
	return p
}

func (p *pkt) narrow(s string) *pkt {
	p.buf = appendNarrow(p.buf, s)
	return p
}

func (p *pkt) bytes() []byte {
	return p.buf
}

func carInfoPacket(carID uint8, connected bool) []byte {
	c := uint8(0)
	if connected {
		c = 1
	}
	return newPkt(PacketCarInfo).u8(carID).u8(c).u8(0).
		wide("Car1").wide("skin1").wide("Driver").wide("Team").wide("GUID").bytes()
}

func sessionInfoPacket(k PacketKind, index, current uint8) []byte {
	return newPkt(k).
		u8(4).u8(index).u8(current).u8(3).
		wide("Test Server").narrow("monza").narrow("").narrow("Qualify").
		u8(2).u16(15).u16(0).u16(60).u8(22).u8(30).narrow("3_clear").
		u32(12345).bytes()
}

func connectionPacket(k PacketKind, carID uint8) []byte {
	return newPkt(k).wide("Driver").wide("76561198000000000").u8(carID).narrow("ks_ferrari").narrow("red").bytes()
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	lk  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lk.Lock()
	defer b.lk.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.lk.Lock()
	defer b.lk.Unlock()
	return bytes.Clone(b.buf.Bytes())
}
