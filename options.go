package acsp

import (
	"io"
	"log/slog"
	"time"
)

// Option configures a Client, see New.
type Option interface {
	apply(*Client)
}

// Host is the address of the server.
type Host string

func (h Host) apply(c *Client) {
	c.host = string(h)
}

// Port is the UDP port the server receives commands on (UDP_PLUGIN_LOCAL_PORT).
type Port int

func (p Port) apply(c *Client) {
	c.port = int(p)
}

// LocalPort is the UDP port the server sends events to (the port part of
// UDP_PLUGIN_ADDRESS).
type LocalPort int

func (p LocalPort) apply(c *Client) {
	c.localPort = int(p)
}

// Network is the socket family, "udp4", "udp6" or "udp".
type Network string

func (n Network) apply(c *Client) {
	c.network = string(n)
}

// RequestTimeout is how long GetCarInfo and GetSessionInfo wait for a
// matching response.
type RequestTimeout time.Duration

func (t RequestTimeout) apply(c *Client) {
	c.reqTimeout = time.Duration(t)
}

// PollInterval is the delay between two car info lookups of the connection
// poller.
type PollInterval time.Duration

func (t PollInterval) apply(c *Client) {
	c.pollInterval = time.Duration(t)
}

// PollConnections enables the connection poller: after each new_connection
// event the car is looked up until it reports as connected, at which point
// a car_connected event is emitted.
type PollConnections bool

func (p PollConnections) apply(c *Client) {
	c.poll = bool(p)
}

type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) {
	f(c)
}

// WithLogger sets the logger used by the client, slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Client) {
		c.log = l
	})
}

// WithTransport makes the client use t instead of binding its own UDP
// socket. The client takes ownership of t and closes it on Close.
func WithTransport(t Transport) Option {
	return optionFunc(func(c *Client) {
		c.conn = t
	})
}

// RecordTo records every received datagram to w, see NewRecorder.
func RecordTo(w io.Writer) Option {
	return optionFunc(func(c *Client) {
		c.recOut = w
	})
}

// DiagnosticsTo copies diagnostics lines (dropped and unknown packets) to w
// in addition to the internal ring buffer.
func DiagnosticsTo(w io.Writer) Option {
	return optionFunc(func(c *Client) {
		c.diagOut = w
	})
}
