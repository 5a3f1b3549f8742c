// internal/discovery/tcp/scanner.go
package tcp

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"printer-bridge/internal/driver/epson"
	"printer-bridge/internal/model"
	"printer-bridge/internal/protocol"
)

// DefaultDeviceName is reported when a printer does not answer the name query
const DefaultDeviceName = "Printer"

// maxHostsPerSubnet caps expansion of wide networks to a /22
const maxHostsPerSubnet = 1024

// Scanner implements TCP network device scanning
type Scanner struct {
	logger *zap.Logger
	config *Config
}

// Config for TCP scanner
type Config struct {
	// Subnets holds CIDR ranges or single hosts. Empty means the /24 of
	// every local IPv4 interface.
	Subnets      []string      `json:"subnets"`
	Ports        []int         `json:"ports"`
	ProbeTimeout time.Duration `json:"probe_timeout"`
	Concurrency  int           `json:"concurrency"`
	QueryName    bool          `json:"query_name"`
}

// NewScanner creates a new TCP scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{}
	}
	cfg := *config
	if len(cfg.Ports) == 0 {
		cfg.Ports = []int{protocol.DefaultTCPPort}
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 400 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scanner{
		logger: logger.With(zap.String("scanner", "tcp")),
		config: &cfg,
	}
}

// Filter returns the discovery filter served by the scanner
func (s *Scanner) Filter() model.DiscoveryFilter {
	return model.FilterTCP
}

// IsAvailable checks if TCP scanning is available
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan probes every host of the configured ranges on the printing ports
func (s *Scanner) Scan(ctx context.Context) ([]model.DeviceDescriptor, error) {
	hosts, err := s.hosts()
	if err != nil {
		return nil, err
	}
	s.logger.Info("Starting TCP network scan",
		zap.Int("hosts", len(hosts)),
		zap.Ints("ports", s.config.Ports),
	)

	p := pool.NewWithResults[*model.DeviceDescriptor]().WithMaxGoroutines(s.config.Concurrency)
	for _, host := range hosts {
		for _, port := range s.config.Ports {
			host, port := host, port
			p.Go(func() *model.DeviceDescriptor {
				return s.probe(ctx, host, port)
			})
		}
	}

	var devices []model.DeviceDescriptor
	for _, d := range p.Wait() {
		if d != nil {
			devices = append(devices, *d)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Identifier < devices[j].Identifier })

	s.logger.Info("TCP scan completed", zap.Int("devices_found", len(devices)))
	return devices, nil
}

// probe dials host:port and, when enabled, asks the printer for its name
func (s *Scanner) probe(ctx context.Context, host string, port int) *model.DeviceDescriptor {
	if ctx.Err() != nil {
		return nil
	}

	target := protocol.Target{Kind: model.TransportTCP, Host: host, Port: port}
	dialer := &net.Dialer{Timeout: s.config.ProbeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target.Address())
	if err != nil {
		return nil
	}
	defer conn.Close()

	name := DefaultDeviceName
	if s.config.QueryName {
		if n, err := s.queryName(ctx, conn); err == nil {
			name = n
		} else {
			s.logger.Debug("Printer did not report its name",
				zap.String("target", target.String()),
				zap.Error(err),
			)
		}
	}

	return &model.DeviceDescriptor{
		Identifier:      target.String(),
		DisplayName:     name,
		Transport:       model.TransportTCP,
		HardwareAddress: host,
	}
}

func (s *Scanner) queryName(ctx context.Context, conn net.Conn) (string, error) {
	deadline := time.Now().Add(s.config.ProbeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", err
	}
	if _, err := conn.Write(epson.ESC_POS_COMMANDS.PRINTER_NAME); err != nil {
		return "", err
	}

	var reply []byte
	buf := make([]byte, 80)
	for len(reply) < 80 && bytes.IndexByte(reply, 0x00) < 0 {
		n, err := conn.Read(buf)
		reply = append(reply, buf[:n]...)
		if err != nil {
			break
		}
	}

	name, ok := epson.ParsePrinterName(reply)
	if !ok {
		return "", fmt.Errorf("unexpected name reply % X", reply)
	}
	return name, nil
}

// hosts expands the configured ranges into individual hosts
func (s *Scanner) hosts() ([]string, error) {
	subnets := s.config.Subnets
	if len(subnets) == 0 {
		local, err := localSubnets()
		if err != nil {
			return nil, fmt.Errorf("failed to list local networks: %w", err)
		}
		subnets = local
	}

	seen := make(map[string]bool)
	var hosts []string
	for _, subnet := range subnets {
		expanded, err := expand(subnet)
		if err != nil {
			s.logger.Warn("Skipping invalid network range", zap.String("range", subnet), zap.Error(err))
			continue
		}
		for _, h := range expanded {
			if !seen[h] {
				seen[h] = true
				hosts = append(hosts, h)
			}
		}
	}
	return hosts, nil
}

// expand turns a CIDR range into its host addresses. Anything else is
// taken as a single host.
func expand(subnet string) ([]string, error) {
	subnet = strings.TrimSpace(subnet)
	if subnet == "" {
		return nil, fmt.Errorf("empty range")
	}
	if !strings.Contains(subnet, "/") {
		return []string{subnet}, nil
	}

	ip, ipnet, err := net.ParseCIDR(subnet)
	if err != nil {
		return nil, err
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("only IPv4 ranges are scanned")
	}

	ones, bits := ipnet.Mask.Size()
	size := uint32(1) << uint(bits-ones)
	if size > maxHostsPerSubnet {
		return nil, fmt.Errorf("range %s has more than %d hosts", subnet, maxHostsPerSubnet)
	}

	base := binary.BigEndian.Uint32(ipnet.IP.To4())
	first, last := base, base+size-1
	if size > 2 {
		// skip network and broadcast addresses
		first, last = first+1, last-1
	}

	hosts := make([]string, 0, last-first+1)
	for n := first; n <= last; n++ {
		addr := make(net.IP, 4)
		binary.BigEndian.PutUint32(addr, n)
		hosts = append(hosts, addr.String())
	}
	return hosts, nil
}

// localSubnets returns the /24 of every up, non-loopback IPv4 interface
func localSubnets() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var subnets []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			network := ipnet.IP.To4().Mask(net.CIDRMask(24, 32))
			subnets = append(subnets, network.String()+"/24")
		}
	}
	return subnets, nil
}
