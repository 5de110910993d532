package acsp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/KarpelesLab/emitter"
	"github.com/KarpelesLab/ringbuf"
)

// Transport is the datagram socket used by the client. *net.UDPConn and any
// other net.PacketConn satisfy it.
type Transport interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	Close() error
}

// Client talks to a single server over the UDP plugin protocol. Decoded
// packets are published on Events (topic = EventType.String(), the event is
// the first argument) and to listeners registered with Subscribe. Commands
// are written to the socket one at a time, in call order.
type Client struct {
	// Events is the hub subscribers can listen to, topics are the canonical
	// event names ("car_update", "collide_car", ...)
	Events *emitter.Hub

	// Configuration
	host         string
	port         int
	localPort    int
	network      string
	reqTimeout   time.Duration
	pollInterval time.Duration
	poll         bool

	log     *slog.Logger
	diag    *ringbuf.Writer
	diagOut io.Writer
	recOut  io.Writer
	rec     *Recorder

	// Network
	conn   Transport
	remote net.Addr
	queue  *sendQueue
	disp   *dispatcher

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	readDone  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup // pollers and asynchronous posts

	// Connection poller, by car id
	polls   map[uint8]*connPoll
	pollsLk sync.Mutex
}

// New creates a client, binds its socket (unless WithTransport was given)
// and starts reading packets.
func New(opts ...Option) (*Client, error) {
	c := spawn()
	for _, o := range opts {
		o.apply(c)
	}
	if err := c.start(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// spawn returns a client with default settings.
func spawn() *Client {
	return &Client{
		host:         DefaultHost,
		port:         DefaultPort,
		localPort:    DefaultLocalPort,
		network:      DefaultNetwork,
		reqTimeout:   time.Second,
		pollInterval: time.Second,
		polls:        make(map[uint8]*connPoll),
	}
}

func (c *Client) start() error {
	if c.log == nil {
		c.log = slog.Default()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	remote, err := net.ResolveUDPAddr(c.network, net.JoinHostPort(c.host, strconv.Itoa(c.port)))
	if err != nil {
		return fmt.Errorf("failed to resolve server address: %w", err)
	}
	c.remote = remote

	if c.conn == nil {
		conn, err := net.ListenUDP(c.network, &net.UDPAddr{Port: c.localPort})
		if err != nil {
			return &SocketError{Op: "listen", Err: err}
		}
		c.conn = conn
	}

	if c.recOut != nil {
		c.rec, err = NewRecorder(c.recOut, remote.String())
		if err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
	}

	c.Events = emitter.New()
	c.Events.Cap = eventsChanCap
	c.disp = newDispatcher(c.log, c.Events, c.initDiag())
	c.disp.startHub(c.ctx)
	c.queue = newSendQueue(c.writePacket)

	if c.poll {
		c.startPoller()
	}

	c.readDone = make(chan struct{})
	go c.readLoop()

	c.log.Debug(fmt.Sprintf("[acsp] client started, server at %s", remote), "event", "acsp:client:start")
	return nil
}

func (c *Client) readLoop() {
	defer close(c.readDone)

	buf := make([]byte, 65536)
	for {
		n, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || c.ctx.Err() != nil {
				return
			}
			c.log.Warn(fmt.Sprintf("[acsp] failed to read from socket: %s", err), "event", "acsp:client:read_fail")
			c.disp.post(c.ctx, &SocketError{Op: "read", Err: err})

			// avoid spinning on a broken socket
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if n == 0 {
			continue
		}
		pkt := bytes.Clone(buf[:n])
		if c.rec != nil {
			if err := c.rec.Record(pkt); err != nil {
				c.log.Warn(fmt.Sprintf("[acsp] failed to record packet: %s", err), "event", "acsp:client:record_fail")
			}
		}
		c.disp.handleDatagram(c.ctx, pkt)
	}
}

// writePacket is called by the send queue, one packet at a time.
func (c *Client) writePacket(buf []byte) error {
	_, err := c.conn.WriteTo(buf, c.remote)
	if err == nil {
		return nil
	}
	serr := &SocketError{Op: "write", Err: err}
	c.log.Warn(fmt.Sprintf("[acsp] failed to send %s packet: %s", PacketKind(buf[0]), err), "event", "acsp:client:write_fail")
	// listeners may issue commands, do not block the writer on them
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.disp.post(c.ctx, serr)
	}()
	return serr
}

func (c *Client) checkOpen() error {
	if c == nil || c.ctx == nil || c.ctx.Err() != nil {
		return ErrClosed
	}
	return nil
}

// send writes buf and waits for the write to complete.
func (c *Client) send(ctx context.Context, buf []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.queue.Send(ctx, buf)
}

// Subscribe registers fn to be called for every event of type t. fn runs on
// the packet reading goroutine and must not block. The returned function
// cancels the subscription.
func (c *Client) Subscribe(t EventType, fn func(Event)) (cancel func()) {
	if c.checkOpen() != nil {
		return func() {}
	}
	return c.disp.subscribe(t, fn)
}

// LocalAddr returns the address the client receives events on, if the
// transport exposes it.
func (c *Client) LocalAddr() net.Addr {
	if la, ok := c.conn.(interface{ LocalAddr() net.Addr }); ok {
		return la.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the address commands are sent to.
func (c *Client) RemoteAddr() net.Addr {
	return c.remote
}

// SendChat sends a chat message to a single car. Messages longer than 255
// characters are truncated.
func (c *Client) SendChat(ctx context.Context, carID uint8, text string) error {
	return c.send(ctx, EncodeSendChat(carID, text))
}

// BroadcastChat sends a chat message to every car.
func (c *Client) BroadcastChat(ctx context.Context, text string) error {
	return c.send(ctx, EncodeBroadcastChat(text))
}

// EnableRealtimeReport asks the server to send car_update events for every
// car at the given interval (millisecond precision). Zero disables them.
func (c *Client) EnableRealtimeReport(ctx context.Context, interval time.Duration) error {
	return c.send(ctx, EncodeRealtimePosInterval(interval))
}

// KickUser removes the driver of the given car from the server.
func (c *Client) KickUser(ctx context.Context, carID uint8) error {
	return c.send(ctx, EncodeKickUser(carID))
}

// SetSessionInfo changes the configuration of a session.
func (c *Client) SetSessionInfo(ctx context.Context, cfg *SessionConfig) error {
	if cfg == nil {
		return errors.New("acsp: nil session config")
	}
	return c.send(ctx, EncodeSetSessionInfo(cfg))
}

// Close releases the socket and drops every subscription. It is safe to
// call more than once, and on a client that failed to start, but not from
// within a listener.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.stopPoller()
		if c.queue != nil {
			c.queue.Close()
		}
		if c.conn != nil {
			err = c.conn.Close()
		}
		if c.readDone != nil {
			<-c.readDone
		}
		c.wg.Wait()
		if c.disp != nil {
			c.disp.waitHub()
			// wait for any in-flight dispatch before closing the hub
			c.disp.handleLk.Lock()
			c.disp.reset()
			if c.Events != nil {
				c.Events.Close()
			}
			c.disp.handleLk.Unlock()
		}
		c.shutdownDiag()
	})
	return err
}
