// internal/protocol/target.go
package protocol

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"printer-bridge/internal/model"
)

// DefaultTCPPort is the raw printing port
const DefaultTCPPort = 9100

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)

// Target is a parsed target identifier
type Target struct {
	Kind model.TransportKind

	// TCP
	Host string
	Port int

	// Bluetooth: either a MAC for an RFCOMM socket or a serial device path
	MAC  string
	Path string

	// USB
	VendorID  uint16
	ProductID uint16
	Serial    string
}

// ParseTarget parses "TCP:host[:port]", "BT:<mac|path>" or
// "USB:<vid>:<pid>[:serial]". A bare IPv4 address or hostname is treated as
// TCP.
func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("target is empty")
	}

	kind, ok := model.TransportOf(raw)
	if !ok {
		if ip := net.ParseIP(raw); ip != nil {
			return Target{Kind: model.TransportTCP, Host: raw, Port: DefaultTCPPort}, nil
		}
		return Target{}, fmt.Errorf("target %q has no known transport prefix", raw)
	}

	rest := raw[strings.Index(raw, ":")+1:]
	switch kind {
	case model.TransportTCP:
		return parseTCPTarget(rest)
	case model.TransportBluetooth:
		return parseBluetoothTarget(rest)
	default:
		return parseUSBTarget(rest)
	}
}

func parseTCPTarget(rest string) (Target, error) {
	if rest == "" {
		return Target{}, fmt.Errorf("TCP target has no host")
	}
	host, port := rest, DefaultTCPPort
	if h, p, err := net.SplitHostPort(rest); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return Target{}, fmt.Errorf("invalid TCP port %q", p)
		}
		host, port = h, n
	} else if strings.Count(rest, ":") == 1 {
		return Target{}, fmt.Errorf("invalid TCP target %q", rest)
	}
	if host == "" {
		return Target{}, fmt.Errorf("TCP target has no host")
	}
	return Target{Kind: model.TransportTCP, Host: host, Port: port}, nil
}

func parseBluetoothTarget(rest string) (Target, error) {
	switch {
	case rest == "":
		return Target{}, fmt.Errorf("bluetooth target has no address")
	case macPattern.MatchString(rest):
		return Target{Kind: model.TransportBluetooth, MAC: strings.ToUpper(strings.ReplaceAll(rest, "-", ":"))}, nil
	case strings.HasPrefix(rest, "/") || strings.HasPrefix(strings.ToUpper(rest), "COM"):
		return Target{Kind: model.TransportBluetooth, Path: rest}, nil
	}
	return Target{}, fmt.Errorf("bluetooth target %q is neither a MAC address nor a device path", rest)
}

func parseUSBTarget(rest string) (Target, error) {
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 2 {
		return Target{}, fmt.Errorf("USB target needs vendor and product id")
	}
	vid, err := parseHexID(parts[0])
	if err != nil {
		return Target{}, fmt.Errorf("invalid vendor ID: %w", err)
	}
	pid, err := parseHexID(parts[1])
	if err != nil {
		return Target{}, fmt.Errorf("invalid product ID: %w", err)
	}
	t := Target{Kind: model.TransportUSB, VendorID: vid, ProductID: pid}
	if len(parts) == 3 {
		t.Serial = parts[2]
	}
	return t, nil
}

// parseHexID parses hex ID string (0x1234 or 1234)
func parseHexID(hexStr string) (uint16, error) {
	hexStr = strings.TrimPrefix(strings.TrimPrefix(hexStr, "0x"), "0X")
	id, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(id), nil
}

// String renders the canonical identifier. The TCP port is only included
// when it differs from DefaultTCPPort.
func (t Target) String() string {
	switch t.Kind {
	case model.TransportTCP:
		if t.Port == 0 || t.Port == DefaultTCPPort {
			return model.TargetPrefixTCP + t.Host
		}
		return model.TargetPrefixTCP + net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	case model.TransportBluetooth:
		if t.MAC != "" {
			return model.TargetPrefixBluetooth + t.MAC
		}
		return model.TargetPrefixBluetooth + t.Path
	case model.TransportUSB:
		s := fmt.Sprintf("%s%04X:%04X", model.TargetPrefixUSB, t.VendorID, t.ProductID)
		if t.Serial != "" {
			s += ":" + t.Serial
		}
		return s
	}
	return ""
}

// Address returns host:port for TCP targets
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// SameTarget reports whether two identifiers name the same printer
func SameTarget(a, b string) bool {
	ta, err := ParseTarget(a)
	if err != nil {
		return strings.EqualFold(a, b)
	}
	tb, err := ParseTarget(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ta.String(), tb.String())
}
