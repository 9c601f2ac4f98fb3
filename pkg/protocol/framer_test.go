package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func feedAll(t *testing.T, f *Framer, s string) (lines []string, framing int) {
	for i := 0; i < len(s); i++ {
		line, err := f.Feed(s[i])
		if err != nil {
			assert.ErrorIs(t, err, ErrFraming)
			framing++
			continue
		}
		if line != nil {
			lines = append(lines, string(line))
		}
	}
	return lines, framing
}

func TestFramer(t *testing.T) {
	tests := []struct {
		name        string
		max         int
		input       string
		wantLines   []string
		wantFraming int
		wantPending int
	}{
		{name: "single LF line", max: 8, input: "READ\n", wantLines: []string{"READ"}},
		{name: "CRLF yields one line", max: 8, input: "READ\r\n", wantLines: []string{"READ"}},
		{name: "bare CR", max: 8, input: "READ\rREAD\r", wantLines: []string{"READ", "READ"}},
		{name: "empty lines ignored", max: 8, input: "\n\n\r\nA\n", wantLines: []string{"A"}},
		{name: "exactly max", max: 4, input: "READ\n", wantLines: []string{"READ"}},
		{name: "unterminated", max: 8, input: "REA", wantPending: 3},
		{
			name:        "overrun discards and resyncs",
			max:         4,
			input:       "READREAD\nREAD\n",
			wantLines:   []string{"READ"},
			wantFraming: 1,
		},
		{
			name:        "overrun across many bytes reports once",
			max:         2,
			input:       "xxxxxxxxxxxx\nOK\n",
			wantLines:   []string{"OK"},
			wantFraming: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(tt.max)
			lines, framing := feedAll(t, f, tt.input)
			assert.Equal(t, tt.wantLines, lines)
			assert.Equal(t, tt.wantFraming, framing)
			assert.Equal(t, tt.wantPending, f.Pending())
		})
	}
}

func TestFramer_DefaultMax(t *testing.T) {
	f := NewFramer(0)
	assert.Equal(t, DefaultMaxLine, f.max)
}
