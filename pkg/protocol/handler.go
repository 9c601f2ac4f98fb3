// Package protocol implements the line-based serial command protocol.
//
// A line containing the substring "READ" anywhere is a read request and is
// answered with one JSON object line. Every other line is dropped without a
// reply; silence is the protocol's answer to anything it does not understand.
package protocol

import (
	"bytes"

	"github.com/itohio/gotelem/pkg/sensor"
)

var readToken = []byte("READ")

// Source provides fresh snapshots and the firmware version that shapes them.
type Source interface {
	Snapshot() (sensor.Snapshot, error)
	Version() sensor.FirmwareVersion
}

// Mode selects where a response's readings come from.
type Mode int

const (
	// Fresh takes a synchronous sample for every request.
	Fresh Mode = iota
	// Latest answers from the sampling lane's most recent snapshot, falling
	// back to a fresh sample until one has been published.
	Latest
)

// Handler turns command lines into responses.
type Handler struct {
	src    Source
	latest *sensor.Latest
	mode   Mode
}

// NewHandler creates a handler answering from src. latest may be nil, in
// which case Latest mode behaves like Fresh.
func NewHandler(src Source, latest *sensor.Latest, mode Mode) *Handler {
	return &Handler{src: src, latest: latest, mode: mode}
}

// IsRead reports whether line is a read request. The match is lenient: any
// line containing "READ" qualifies, including words such as "UNREADABLE".
func IsRead(line []byte) bool {
	return bytes.Contains(line, readToken)
}

// HandleLine returns the response for one command line, without the trailing
// newline. ok is false when the line gets no reply.
func (h *Handler) HandleLine(line []byte) (resp []byte, ok bool) {
	if !IsRead(line) {
		return nil, false
	}

	snap, err := h.snapshot()
	if err != nil {
		return nil, false
	}
	return AppendObject(nil, h.src.Version(), snap), true
}

func (h *Handler) snapshot() (sensor.Snapshot, error) {
	if h.mode == Latest && h.latest != nil {
		if snap, ok := h.latest.Load(); ok {
			return snap, nil
		}
	}
	return h.src.Snapshot()
}
