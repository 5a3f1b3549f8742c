// internal/testutil/fake_printer.go
package testutil

import (
	"bytes"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"
)

// FakePrinter is a raw TCP printer on the loopback interface. It records
// everything it receives, answers DLE EOT n with the configured status byte
// and GS I 67 with its name when one is set.
type FakePrinter struct {
	listener net.Listener
	mu       sync.Mutex
	received bytes.Buffer
	conns    int
	status   map[byte]byte
	name     string
	wg       sync.WaitGroup
}

// NewFakePrinter starts a fake printer and stops it when the test ends
func NewFakePrinter(t *testing.T) *FakePrinter {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	p := &FakePrinter{
		listener: listener,
		status:   map[byte]byte{1: 0x16, 2: 0x12, 3: 0x12, 4: 0x12},
	}
	p.wg.Add(1)
	go p.serve()

	t.Cleanup(p.Close)
	return p
}

// Target returns the printer's target identifier
func (p *FakePrinter) Target() string {
	addr := p.listener.Addr().(*net.TCPAddr)
	return "TCP:127.0.0.1:" + strconv.Itoa(addr.Port)
}

// SetStatus sets the reply to DLE EOT n
func (p *FakePrinter) SetStatus(n, reply byte) {
	p.mu.Lock()
	p.status[n] = reply
	p.mu.Unlock()
}

// SetName sets the model name reported to GS I 67
func (p *FakePrinter) SetName(name string) {
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
}

// Received returns every byte received so far
func (p *FakePrinter) Received() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte{}, p.received.Bytes()...)
}

// Connections returns how many connections were accepted
func (p *FakePrinter) Connections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns
}

// WaitReceived waits until the received stream contains want
func (p *FakePrinter) WaitReceived(want []byte, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if bytes.Contains(p.Received(), want) {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// Close stops accepting connections
func (p *FakePrinter) Close() {
	p.listener.Close()
	p.wg.Wait()
}

func (p *FakePrinter) serve() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conns++
		p.mu.Unlock()
		go p.handle(conn)
	}
}

func (p *FakePrinter) handle(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			p.mu.Lock()
			p.received.Write(chunk)
			var replies []byte
			for i := 0; i+2 < len(chunk); i++ {
				switch {
				case chunk[i] == 0x10 && chunk[i+1] == 0x04:
					if r, ok := p.status[chunk[i+2]]; ok {
						replies = append(replies, r)
					}
				case chunk[i] == 0x1D && chunk[i+1] == 0x49 && chunk[i+2] == 0x43 && p.name != "":
					replies = append(replies, 0x5F)
					replies = append(replies, p.name...)
					replies = append(replies, 0x00)
				}
			}
			p.mu.Unlock()
			if len(replies) > 0 {
				if _, err := conn.Write(replies); err != nil {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}
