// Command acsp-monitor connects to a server's plugin port and logs every
// event it receives. It can record the received datagrams to a capture file,
// or replay a capture without any server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/KarpelesLab/acsp"
	"github.com/KarpelesLab/emitter"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		host      string
		port      int
		localPort int
		network   string
		realtime  time.Duration
		record    string
		replay    string
		speed     float64
		poll      bool
		verbose   bool
	)

	flagSet := pflag.NewFlagSet("acsp-monitor", pflag.ContinueOnError)
	flagSet.StringVar(&host, "host", acsp.DefaultHost, "server address")
	flagSet.IntVar(&port, "port", acsp.DefaultPort, "server plugin port (UDP_PLUGIN_LOCAL_PORT)")
	flagSet.IntVar(&localPort, "local-port", acsp.DefaultLocalPort, "local port the server sends events to (UDP_PLUGIN_ADDRESS)")
	flagSet.StringVar(&network, "network", acsp.DefaultNetwork, "socket family: udp4, udp6 or udp")
	flagSet.DurationVar(&realtime, "realtime", time.Second, "realtime position report interval, 0 to disable")
	flagSet.StringVar(&record, "record", "", "record received datagrams to this capture file")
	flagSet.StringVar(&replay, "replay", "", "replay this capture file instead of listening")
	flagSet.Float64Var(&speed, "speed", 1, "replay speed, 0 for as fast as possible")
	flagSet.BoolVar(&poll, "poll-connections", false, "poll car info after each new connection")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []acsp.Option{
		acsp.Host(host),
		acsp.Port(port),
		acsp.LocalPort(localPort),
		acsp.Network(network),
		acsp.PollConnections(poll),
		acsp.WithLogger(logger),
	}

	if replay != "" {
		opts = append(opts, acsp.WithTransport(newIdleTransport()))
	}
	if record != "" {
		f, err := os.Create(record)
		if err != nil {
			return err
		}
		defer f.Close()
		opts = append(opts, acsp.RecordTo(f))
	}

	client, err := acsp.New(opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, t := range acsp.EventTypes() {
		go logEvents(logger, client.Events.On(t.String()), t)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if replay != "" {
		f, err := os.Open(replay)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := client.Replay(ctx, f, speed)
		logger.Info(fmt.Sprintf("replayed %d datagrams", n))
		return err
	}

	if err := client.EnableRealtimeReport(ctx, realtime); err != nil {
		return err
	}
	if v, err := client.GetVersion(ctx); err == nil {
		logger.Info("connected", "server", client.RemoteAddr(), "protocol_version", v)
	} else {
		logger.Warn("server did not answer session info request", "err", err)
	}

	<-ctx.Done()
	return nil
}

func logEvents(logger *slog.Logger, ch <-chan *emitter.Event, t acsp.EventType) {
	for ev := range ch {
		logger.Info(t.String(), "event", ev.Arg(0))
	}
}

// idleTransport is used when replaying: nothing is ever received and
// writes are discarded.
type idleTransport struct {
	closed chan struct{}
}

func newIdleTransport() *idleTransport {
	return &idleTransport{closed: make(chan struct{})}
}

func (t *idleTransport) ReadFrom(p []byte) (int, net.Addr, error) {
	<-t.closed
	return 0, nil, net.ErrClosed
}

func (t *idleTransport) WriteTo(p []byte, addr net.Addr) (int, error) {
	return len(p), nil
}

func (t *idleTransport) Close() error {
	close(t.closed)
	return nil
}
