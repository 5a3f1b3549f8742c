// internal/testutil/fake_transport.go
package testutil

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"printer-bridge/internal/model"
	"printer-bridge/internal/protocol"
)

// ErrFakeClosed is returned by a closed FakeTransport
var ErrFakeClosed = errors.New("fake transport closed")

// FakeTransport is an in-memory protocol.Transport. It answers DLE EOT n
// requests from StatusReplies and GS I 67 from Name.
type FakeTransport struct {
	mu      sync.Mutex
	target  protocol.Target
	open    bool
	writes  [][]byte
	pending [][]byte
	notify  chan struct{}
	closes  int

	StatusReplies map[byte][]byte
	Name          string
	OpenDelay     time.Duration
	OpenErr       error
	WriteErr      error
}

// NewFakeTransport creates a fake transport for target that reports an
// online, idle printer
func NewFakeTransport(target protocol.Target) *FakeTransport {
	return &FakeTransport{
		target: target,
		notify: make(chan struct{}, 1),
		StatusReplies: map[byte][]byte{
			1: {0x16},
			2: {0x12},
			3: {0x12},
			4: {0x12},
		},
	}
}

func (f *FakeTransport) Open(ctx context.Context) error {
	if f.OpenDelay > 0 {
		select {
		case <-time.After(f.OpenDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return f.OpenErr
	}
	f.open = true
	return nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.closes++
	return nil
}

func (f *FakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *FakeTransport) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return ErrFakeClosed
	}
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.writes = append(f.writes, append([]byte{}, data...))

	var reply []byte
	switch {
	case len(data) == 3 && data[0] == 0x10 && data[1] == 0x04:
		reply = f.StatusReplies[data[2]]
	case bytes.Equal(data, []byte{0x1D, 0x49, 0x43}) && f.Name != "":
		reply = append(append([]byte{0x5F}, f.Name...), 0x00)
	}
	if len(reply) > 0 {
		f.pending = append(f.pending, reply)
		select {
		case f.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *FakeTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	for {
		f.mu.Lock()
		if !f.open {
			f.mu.Unlock()
			return nil, ErrFakeClosed
		}
		if len(f.pending) > 0 {
			reply := f.pending[0]
			if len(reply) > maxBytes {
				f.pending[0] = reply[maxBytes:]
				reply = reply[:maxBytes]
			} else {
				f.pending = f.pending[1:]
			}
			f.mu.Unlock()
			return reply, nil
		}
		f.mu.Unlock()

		select {
		case <-f.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (f *FakeTransport) Kind() model.TransportKind {
	return f.target.Kind
}

func (f *FakeTransport) Target() protocol.Target {
	return f.target
}

func (f *FakeTransport) Stats() protocol.ProtocolStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	var written int64
	for _, w := range f.writes {
		written += int64(len(w))
	}
	return protocol.ProtocolStats{
		BytesWritten:   written,
		OperationCount: int64(len(f.writes)),
		IsConnected:    f.open,
	}
}

// Writes returns a copy of every chunk written so far
func (f *FakeTransport) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// Written returns every byte written so far
func (f *FakeTransport) Written() []byte {
	return bytes.Join(f.Writes(), nil)
}

// Closes returns how many times Close was called
func (f *FakeTransport) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}
