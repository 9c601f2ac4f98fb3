package protocol

import (
	"context"
	"io"
	"time"

	"github.com/itohio/gotelem/pkg/observe"
	"github.com/pkg/errors"
)

// Responder is the command lane: it reads lines from a transport and writes
// one response line per read request. It never waits on the sampling lane.
type Responder struct {
	h       *Handler
	obs     observe.Observer
	maxLine int
}

// NewResponder creates a responder. maxLine <= 0 selects DefaultMaxLine.
func NewResponder(h *Handler, obs observe.Observer, maxLine int) *Responder {
	return &Responder{h: h, obs: observe.OrNop(obs), maxLine: maxLine}
}

// Serve handles lines from rw until ctx is done, the reader reaches EOF, or
// a transport error occurs. Readers that block indefinitely should be closed
// by the caller to unblock Serve; serial ports configured with a read timeout
// return periodically so ctx is honoured on its own.
func (r *Responder) Serve(ctx context.Context, rw io.ReadWriter) error {
	framer := NewFramer(r.maxLine)
	buf := make([]byte, 64)
	out := make([]byte, 0, 128)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := rw.Read(buf)
		for _, b := range buf[:n] {
			line, ferr := framer.Feed(b)
			if ferr != nil {
				r.obs.ProtocolFraming(ferr)
				continue
			}
			if line == nil {
				continue
			}

			start := time.Now()
			resp, ok := r.h.HandleLine(line)
			if !ok {
				continue
			}
			out = append(append(out[:0], resp...), '\n')
			if _, werr := rw.Write(out); werr != nil {
				return errors.Wrap(werr, "write response")
			}
			r.obs.Responded(countKeys(resp), time.Since(start))
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "read command")
		}
	}
}

// countKeys counts the members of a compact object produced by AppendObject.
func countKeys(obj []byte) int {
	if len(obj) <= 2 {
		return 0
	}
	n := 1
	for _, c := range obj {
		if c == ',' {
			n++
		}
	}
	return n
}
