package protocol

import (
	"strconv"

	"github.com/itohio/gotelem/pkg/sensor"
)

// AppendObject appends the compact JSON object for snap to dst. Keys follow
// the binding order of v; bindings absent from snap are left out, so the key
// set can only ever be a subsequence of v's ids.
//
// Binding ids are validated against [A-Za-z0-9_.-]+, so keys need no escaping.
func AppendObject(dst []byte, v sensor.FirmwareVersion, snap sensor.Snapshot) []byte {
	dst = append(dst, '{')
	first := true
	for _, b := range v.Bindings {
		val, ok := snap.Value(b.ID)
		if !ok {
			continue
		}
		if !first {
			dst = append(dst, ',')
		}
		first = false
		dst = append(dst, '"')
		dst = append(dst, b.ID...)
		dst = append(dst, '"', ':')
		dst = strconv.AppendInt(dst, int64(val), 10)
	}
	return append(dst, '}')
}
