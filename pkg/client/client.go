// Package client is the host side of the command protocol: it sends READ
// requests over a serial line and parses the JSON object replies.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/itohio/gotelem/pkg/transport"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout is how long Read waits for a reply.
	DefaultTimeout = 2 * time.Second
	// DefaultBufferSize is the number of unread reply lines kept.
	DefaultBufferSize = 16
)

var (
	ErrTimeout = errors.New("no reply within timeout")
	ErrClosed  = errors.New("client closed")
)

// Reading is one parsed reply, keys in wire order.
type Reading struct {
	ReceivedAt time.Time
	Keys       []string
	Values     map[string]int
}

// Client talks to one unit over conn.
type Client struct {
	conn    io.ReadWriteCloser
	timeout time.Duration
	log     *logrus.Entry

	lines     chan string
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex // one request in flight
}

// Dial opens a serial port and returns a client on it.
func Dial(port string, baudRate int, timeout time.Duration, log *logrus.Entry) (*Client, error) {
	conn, err := transport.Open(port, baudRate, 0)
	if err != nil {
		return nil, err
	}
	return New(conn, timeout, log), nil
}

// New starts reading reply lines from conn. timeout <= 0 selects DefaultTimeout.
func New(conn io.ReadWriteCloser, timeout time.Duration, log *logrus.Entry) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}

	c := &Client{
		conn:    conn,
		timeout: timeout,
		log:     log,
		lines:   make(chan string, DefaultBufferSize),
		done:    make(chan struct{}),
	}
	go c.readLines()
	return c
}

// Close closes the connection and stops the reader.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Read sends a READ request and waits for the reply.
func (c *Client) Read(ctx context.Context) (Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return Reading{}, ErrClosed
	default:
	}

	// Drop replies nobody waited for so the next one answers this request.
	for drained := false; !drained; {
		select {
		case <-c.lines:
		default:
			drained = true
		}
	}

	if _, err := c.conn.Write([]byte("READ\n")); err != nil {
		return Reading{}, errors.Wrap(err, "send READ")
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Reading{}, ctx.Err()
		case <-timer.C:
			return Reading{}, ErrTimeout
		case <-c.done:
			return Reading{}, ErrClosed
		case line, ok := <-c.lines:
			if !ok {
				return Reading{}, ErrClosed
			}
			r, err := parseResponse(line)
			if err != nil {
				c.log.WithError(err).Warnf("failed to parse line '%s'", line)
				continue
			}
			r.ReceivedAt = time.Now()
			return r, nil
		}
	}
}

// readLines forwards non-empty lines from the connection.
func (c *Client) readLines() {
	defer close(c.lines)

	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case c.lines <- line:
		case <-c.done:
			return
		default:
			c.log.Warn("reply buffer full, dropping line")
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-c.done:
		default:
			c.log.WithError(err).Error("error reading from unit")
		}
	}
}

// parseResponse parses a flat JSON object of integers, keeping key order.
func parseResponse(line string) (Reading, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Reading{}, errors.Wrap(err, "invalid reply")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Reading{}, errors.Errorf("invalid reply: expected object, got %v", tok)
	}

	r := Reading{Keys: []string{}, Values: map[string]int{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Reading{}, errors.Wrap(err, "invalid reply key")
		}
		key := tok.(string)

		tok, err = dec.Token()
		if err != nil {
			return Reading{}, errors.Wrapf(err, "invalid value for %s", key)
		}
		num, ok := tok.(json.Number)
		if !ok {
			return Reading{}, errors.Errorf("value for %s is not a number", key)
		}
		v, err := num.Int64()
		if err != nil {
			return Reading{}, errors.Wrapf(err, "value for %s is not an integer", key)
		}
		if _, dup := r.Values[key]; dup {
			return Reading{}, errors.Errorf("duplicate key %s", key)
		}
		r.Keys = append(r.Keys, key)
		r.Values[key] = int(v)
	}

	if _, err := dec.Token(); err != nil {
		return Reading{}, errors.Wrap(err, "unterminated reply")
	}
	if dec.More() {
		return Reading{}, errors.New("trailing data after reply")
	}
	return r, nil
}
