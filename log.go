package acsp

import (
	"errors"
	"fmt"
	"io"

	"github.com/KarpelesLab/ringbuf"
)

const diagBufferSize = 256 * 1024

func (c *Client) initDiag() io.Writer {
	var err error

	c.diag, err = ringbuf.New(diagBufferSize)
	if err != nil {
		c.log.Warn(fmt.Sprintf("[acsp] Failed to setup diagnostics buffer: %s", err), "event", "acsp:diag:init_fail")
		c.diag = nil
		if c.diagOut != nil {
			return c.diagOut
		}
		return io.Discard
	}
	if c.diagOut != nil {
		return io.MultiWriter(c.diag, c.diagOut)
	}
	return c.diag
}

// Diagnostics copies the recent diagnostics lines (dropped malformed
// packets, unknown packet kinds) to w.
func (c *Client) Diagnostics(w io.Writer) (int64, error) {
	if c.diag == nil {
		return 0, errors.New("diagnostics buffer not available")
	}
	r := c.diag.Reader()
	defer r.Close()
	return io.Copy(w, r)
}

func (c *Client) shutdownDiag() {
	if c.diag != nil {
		c.diag.Close()
	}
}
