// internal/protocol/protocol.go
package protocol

import (
	"context"
	"sync"
	"time"

	"printer-bridge/internal/model"
)

// Transport is a byte stream to a printer. It accepts raw bytes, returns
// raw status bytes, and may time out or refuse.
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxBytes int) ([]byte, error)

	// Protocol information
	Kind() model.TransportKind
	Target() Target
	Stats() ProtocolStats
}

// ProtocolStats provides protocol-level statistics
type ProtocolStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// statsRecorder guards ProtocolStats for concurrent readers
type statsRecorder struct {
	mu    sync.Mutex
	stats ProtocolStats
}

func (r *statsRecorder) snapshot() ProtocolStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *statsRecorder) setConnected(v bool) {
	r.mu.Lock()
	r.stats.IsConnected = v
	if v {
		r.stats.LastActivity = time.Now()
	}
	r.mu.Unlock()
}

func (r *statsRecorder) recordWrite(n int, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.BytesWritten += int64(n)
	r.stats.OperationCount++
	r.stats.LastActivity = time.Now()
	if r.stats.AverageLatency == 0 {
		r.stats.AverageLatency = latency
	} else {
		r.stats.AverageLatency = (r.stats.AverageLatency + latency) / 2
	}
}

func (r *statsRecorder) recordRead(n int) {
	r.mu.Lock()
	r.stats.BytesRead += int64(n)
	r.stats.OperationCount++
	r.stats.LastActivity = time.Now()
	r.mu.Unlock()
}

func (r *statsRecorder) recordError() {
	r.mu.Lock()
	r.stats.ErrorCount++
	r.mu.Unlock()
}

type readResult struct {
	data []byte
	err  error
}

// readAsync runs a blocking read in a goroutine so the caller can give up on
// ctx. A read abandoned this way completes into a buffered channel.
func readAsync(ctx context.Context, maxBytes int, read func([]byte) (int, error)) ([]byte, error) {
	buffer := make([]byte, maxBytes)
	done := make(chan readResult, 1)

	go func() {
		n, err := read(buffer)
		if err != nil && n == 0 {
			done <- readResult{err: err}
			return
		}
		data := make([]byte, n)
		copy(data, buffer[:n])
		done <- readResult{data: data}
	}()

	select {
	case result := <-done:
		return result.data, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
