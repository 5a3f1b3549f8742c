package tcp

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-bridge/internal/model"
	"printer-bridge/internal/testutil"
)

func portOf(t *testing.T, target string) int {
	t.Helper()
	port, err := strconv.Atoi(target[strings.LastIndex(target, ":")+1:])
	require.NoError(t, err)
	return port
}

func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestScanFindsLoopbackPrinter(t *testing.T) {
	printer := testutil.NewFakePrinter(t)
	printer.SetName("TM-m30III")
	port := portOf(t, printer.Target())

	s := NewScanner(zap.NewNop(), &Config{
		Subnets:      []string{"127.0.0.1"},
		Ports:        []int{port, closedPort(t)},
		ProbeTimeout: 500 * time.Millisecond,
		QueryName:    true,
	})

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, printer.Target(), devices[0].Identifier)
	assert.Equal(t, "TM-m30III", devices[0].DisplayName)
	assert.Equal(t, model.TransportTCP, devices[0].Transport)
	assert.Equal(t, "127.0.0.1", devices[0].HardwareAddress)
	assert.Equal(t, printer.Target()+":TM-m30III", devices[0].LegacyString())
}

func TestScanFallsBackToDefaultName(t *testing.T) {
	printer := testutil.NewFakePrinter(t)

	s := NewScanner(zap.NewNop(), &Config{
		Subnets:      []string{"127.0.0.1"},
		Ports:        []int{portOf(t, printer.Target())},
		ProbeTimeout: 200 * time.Millisecond,
		QueryName:    true,
	})

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, DefaultDeviceName, devices[0].DisplayName)
}

func TestScanWithoutNameQuery(t *testing.T) {
	printer := testutil.NewFakePrinter(t)
	printer.SetName("TM-T88VII")

	s := NewScanner(zap.NewNop(), &Config{
		Subnets: []string{"127.0.0.1"},
		Ports:   []int{portOf(t, printer.Target())},
	})

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, DefaultDeviceName, devices[0].DisplayName)
	assert.Empty(t, printer.Received())
}

func TestScanCancelled(t *testing.T) {
	printer := testutil.NewFakePrinter(t)
	s := NewScanner(zap.NewNop(), &Config{
		Subnets: []string{"127.0.0.1"},
		Ports:   []int{portOf(t, printer.Target())},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	devices, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestExpand(t *testing.T) {
	hosts, err := expand("192.0.2.0/30")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.1", "192.0.2.2"}, hosts)

	hosts, err = expand("192.0.2.77/32")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.77"}, hosts)

	hosts, err = expand("192.0.2.10/24")
	require.NoError(t, err)
	assert.Len(t, hosts, 254)
	assert.Equal(t, "192.0.2.1", hosts[0])
	assert.Equal(t, "192.0.2.254", hosts[253])

	hosts, err = expand("printer.local")
	require.NoError(t, err)
	assert.Equal(t, []string{"printer.local"}, hosts)

	_, err = expand("10.0.0.0/8")
	assert.Error(t, err)
	_, err = expand("2001:db8::/120")
	assert.Error(t, err)
	_, err = expand("192.0.2.0/33")
	assert.Error(t, err)
}

func TestHostsSkipsInvalidRanges(t *testing.T) {
	s := NewScanner(zap.NewNop(), &Config{Subnets: []string{"192.0.2.0/31", "bogus/99", "192.0.2.1"}})
	hosts, err := s.hosts()
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.0", "192.0.2.1"}, hosts)
}
