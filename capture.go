package acsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// CaptureHeader is the first cbor item of a capture.
type CaptureHeader struct {
	ID      uuid.UUID `cbor:"id"`
	Started time.Time `cbor:"started"`
	Remote  string    `cbor:"remote,omitempty"`
}

// CaptureRecord is one received datagram. Offset is relative to
// CaptureHeader.Started.
type CaptureRecord struct {
	Offset time.Duration `cbor:"t"`
	Data   []byte        `cbor:"d"`
}

var captureEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Recorder writes received datagrams to a capture stream that can be fed
// back with Client.Replay.
type Recorder struct {
	hdr CaptureHeader
	enc *cbor.Encoder
	lk  sync.Mutex
}

// NewRecorder writes a capture header to w and returns a Recorder appending
// to it.
func NewRecorder(w io.Writer, remote string) (*Recorder, error) {
	r := &Recorder{
		hdr: CaptureHeader{
			ID:      uuid.New(),
			Started: time.Now(),
			Remote:  remote,
		},
		enc: captureEncMode.NewEncoder(w),
	}
	if err := r.enc.Encode(&r.hdr); err != nil {
		return nil, err
	}
	return r, nil
}

// ID returns the random id of this capture.
func (r *Recorder) ID() uuid.UUID {
	return r.hdr.ID
}

// Record appends a datagram to the capture.
func (r *Recorder) Record(buf []byte) error {
	r.lk.Lock()
	defer r.lk.Unlock()

	return r.enc.Encode(&CaptureRecord{Offset: time.Since(r.hdr.Started), Data: buf})
}

// CaptureReader reads a capture written by a Recorder.
type CaptureReader struct {
	Header CaptureHeader
	dec    *cbor.Decoder
}

func NewCaptureReader(r io.Reader) (*CaptureReader, error) {
	cr := &CaptureReader{dec: cbor.NewDecoder(r)}
	if err := cr.dec.Decode(&cr.Header); err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	return cr, nil
}

// Next returns the next record, or io.EOF at the end of the capture.
func (cr *CaptureReader) Next() (*CaptureRecord, error) {
	var rec CaptureRecord
	if err := cr.dec.Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Replay feeds a capture through the decode and dispatch pipeline as if the
// datagrams had been received from the socket. With speed > 0 the original
// timing is kept, divided by speed; with speed <= 0 records are replayed as
// fast as possible. It returns the number of datagrams replayed, and
// ErrClosed if the client is closed during the replay.
func (c *Client) Replay(ctx context.Context, r io.Reader, speed float64) (int, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	cr, err := NewCaptureReader(r)
	if err != nil {
		return 0, err
	}

	var (
		n    int
		last time.Duration
	)
	for {
		rec, err := cr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}

		if speed > 0 && rec.Offset > last {
			t := time.NewTimer(time.Duration(float64(rec.Offset-last) / speed))
			select {
			case <-ctx.Done():
				t.Stop()
				return n, ctx.Err()
			case <-c.ctx.Done():
				t.Stop()
				return n, ErrClosed
			case <-t.C:
			}
		}
		last = rec.Offset

		if err := ctx.Err(); err != nil {
			return n, err
		}
		if c.ctx.Err() != nil {
			return n, ErrClosed
		}
		c.disp.handleDatagram(c.ctx, rec.Data)
		n++
	}
}
