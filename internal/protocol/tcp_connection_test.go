package protocol

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-bridge/internal/model"
)

func startEchoStatusServer(t *testing.T) (string, int, <-chan []byte) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	received := make(chan []byte, 16)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				received <- chunk
				conn.Write([]byte{0x16})
			}
			if err != nil {
				return
			}
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port, received
}

func TestTCPConnectionRoundTrip(t *testing.T) {
	host, port, received := startEchoStatusServer(t)

	factory := NewFactory(DefaultDefaults(), zap.NewNop())
	transport, err := factory.Create(Target{Kind: model.TransportTCP, Host: host, Port: port})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, transport.Open(ctx))
	assert.True(t, transport.IsOpen())
	assert.Equal(t, model.TransportTCP, transport.Kind())

	require.NoError(t, transport.Write(ctx, []byte{0x10, 0x04, 0x01}))
	assert.Equal(t, []byte{0x10, 0x04, 0x01}, <-received)

	reply, err := transport.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x16}, reply)

	stats := transport.Stats()
	assert.Equal(t, int64(3), stats.BytesWritten)
	assert.Equal(t, int64(1), stats.BytesRead)
	assert.True(t, stats.IsConnected)

	require.NoError(t, transport.Close())
	assert.False(t, transport.IsOpen())
	assert.NoError(t, transport.Close())

	err = transport.Write(ctx, []byte{0x1b, 0x40})
	assert.Error(t, err)
}

func TestTCPConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	conn := NewTCPConnection(&TCPConfig{Host: "127.0.0.1", Port: addr.Port}, zap.NewNop())
	err = conn.Open(context.Background())
	assert.Error(t, err)
	assert.False(t, conn.IsOpen())
	assert.Equal(t, int64(1), conn.Stats().ErrorCount)
}

func TestTCPConnectionReadHonoursContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		io.Copy(io.Discard, conn)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	conn := NewTCPConnection(&TCPConfig{Host: "127.0.0.1", Port: addr.Port}, zap.NewNop())
	require.NoError(t, conn.Open(context.Background()))
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = conn.Read(ctx, 1)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
