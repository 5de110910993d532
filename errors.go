// Package acsp implements a client for the UDP plugin protocol spoken by
// racing simulation dedicated servers.
package acsp

import (
	"errors"
	"fmt"
)

// Error constants used throughout the acsp library.
var (
	// ErrMalformedPacket is returned when a datagram is shorter than the
	// fields its kind demands, or a string runs past the end of the buffer.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrUnknownPacket is reported (never returned to callers) when a
	// datagram starts with a kind byte this library doesn't know.
	ErrUnknownPacket = errors.New("unknown packet kind")

	// ErrTimeout is returned by request-style commands when no matching
	// response arrived within the request timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrClosed is returned when using a client that has been closed.
	ErrClosed = errors.New("client has been closed")

	// ErrInvalidSessionIndex is returned when a session index is outside of
	// the range the protocol can express.
	ErrInvalidSessionIndex = errors.New("invalid session index")
)

// MalformedPacketError describes where decoding of a packet stopped.
type MalformedPacketError struct {
	Kind   PacketKind
	Offset int // offset of the field that could not be read
	Len    int // length of the datagram
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("malformed %s packet: need data at offset %d, got %d bytes", e.Kind, e.Offset, e.Len)
}

func (e *MalformedPacketError) Unwrap() error {
	return ErrMalformedPacket
}

// SocketError wraps a transport-level failure. It is emitted as an
// EventSocketError event and returned to the caller of the failed command.
type SocketError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("acsp socket %s: %s", e.Op, e.Err)
}

func (e *SocketError) Unwrap() error {
	return e.Err
}
