// internal/model/device.go
package model

import (
	"fmt"
	"strings"
)

// TransportKind represents how a printer is reached
type TransportKind string

const (
	TransportTCP       TransportKind = "TCP"
	TransportBluetooth TransportKind = "BLUETOOTH"
	TransportUSB       TransportKind = "USB"
)

// Identifier prefixes used in target strings
const (
	TargetPrefixTCP       = "TCP:"
	TargetPrefixBluetooth = "BT:"
	TargetPrefixUSB       = "USB:"
)

// DiscoveryFilter selects which transport a discovery call scans
type DiscoveryFilter string

const (
	FilterTCP               DiscoveryFilter = "TCP"
	FilterBluetoothPaired   DiscoveryFilter = "BLUETOOTH_PAIRED"
	FilterBluetoothUnpaired DiscoveryFilter = "BLUETOOTH_UNPAIRED"
	FilterUSB               DiscoveryFilter = "USB"
)

// Valid reports whether f is a known discovery filter
func (f DiscoveryFilter) Valid() bool {
	switch f {
	case FilterTCP, FilterBluetoothPaired, FilterBluetoothUnpaired, FilterUSB:
		return true
	}
	return false
}

// Transport returns the transport kind scanned by the filter
func (f DiscoveryFilter) Transport() TransportKind {
	switch f {
	case FilterBluetoothPaired, FilterBluetoothUnpaired:
		return TransportBluetooth
	case FilterUSB:
		return TransportUSB
	default:
		return TransportTCP
	}
}

// DeviceDescriptor is a printer found by discovery. It is immutable once
// produced.
type DeviceDescriptor struct {
	Identifier      string        `json:"target"`
	DisplayName     string        `json:"device_name"`
	Transport       TransportKind `json:"transport"`
	HardwareAddress string        `json:"hardware_address,omitempty"`
}

// LegacyString renders the descriptor in the "target:deviceName" form the
// mobile plugins returned.
func (d DeviceDescriptor) LegacyString() string {
	return d.Identifier + ":" + d.DisplayName
}

// Valid reports whether the descriptor carries both target and name
func (d DeviceDescriptor) Valid() bool {
	return d.Identifier != "" && d.DisplayName != ""
}

// DeviceSeries enumerates supported printer models. Values follow the
// vendor SDK numbering so existing callers can pass their integers through.
type DeviceSeries int

const (
	SeriesTMM10 DeviceSeries = iota
	SeriesTMM30
	SeriesTMP20
	SeriesTMP60
	SeriesTMP60II
	SeriesTMP80
	SeriesTMT20
	SeriesTMT60
	SeriesTMT70
	SeriesTMT81
	SeriesTMT82
	SeriesTMT83
	SeriesTMT88
	SeriesTMT90
	SeriesTMT90KP
	SeriesTMU220
	SeriesTMU330
	SeriesTML90
	SeriesTMH6000
	SeriesTMT83III
	SeriesTMT100
	SeriesTMM30II
	SeriesTS100
	SeriesTMM50
	SeriesTMT88VII
	SeriesTML90LFC
	SeriesTML100
	SeriesTMP20II
	SeriesTMP80II
	SeriesTMM30III
)

// DefaultSeries is used when a caller does not pass one
const DefaultSeries = SeriesTMM30III

// SeriesProfile describes the capabilities the encoder needs for a series
type SeriesProfile struct {
	Name        string `json:"name"`
	DotsPerLine int    `json:"dots_per_line"`
	HasCutter   bool   `json:"has_cutter"`
	HasDrawer   bool   `json:"has_drawer"`
}

var seriesProfiles = map[DeviceSeries]SeriesProfile{
	SeriesTMM10:    {Name: "TM-m10", DotsPerLine: 384, HasCutter: true, HasDrawer: true},
	SeriesTMM30:    {Name: "TM-m30", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMP20:    {Name: "TM-P20", DotsPerLine: 384},
	SeriesTMP60:    {Name: "TM-P60", DotsPerLine: 432, HasCutter: true},
	SeriesTMP60II:  {Name: "TM-P60II", DotsPerLine: 432, HasCutter: true},
	SeriesTMP80:    {Name: "TM-P80", DotsPerLine: 576, HasCutter: true},
	SeriesTMT20:    {Name: "TM-T20", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMT60:    {Name: "TM-T60", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMT70:    {Name: "TM-T70", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMT81:    {Name: "TM-T81", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMT82:    {Name: "TM-T82", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMT83:    {Name: "TM-T83", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMT88:    {Name: "TM-T88", DotsPerLine: 512, HasCutter: true, HasDrawer: true},
	SeriesTMT90:    {Name: "TM-T90", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMT90KP:  {Name: "TM-T90KP", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMU220:   {Name: "TM-U220", DotsPerLine: 200, HasCutter: true, HasDrawer: true},
	SeriesTMU330:   {Name: "TM-U330", DotsPerLine: 200, HasCutter: true, HasDrawer: true},
	SeriesTML90:    {Name: "TM-L90", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMH6000:  {Name: "TM-H6000", DotsPerLine: 512, HasCutter: true, HasDrawer: true},
	SeriesTMT83III: {Name: "TM-T83III", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMT100:   {Name: "TM-T100", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMM30II:  {Name: "TM-m30II", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTS100:    {Name: "TS-100", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMM50:    {Name: "TM-m50", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMT88VII: {Name: "TM-T88VII", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTML90LFC: {Name: "TM-L90LFC", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTML100:   {Name: "TM-L100", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
	SeriesTMP20II:  {Name: "TM-P20II", DotsPerLine: 384, HasCutter: true},
	SeriesTMP80II:  {Name: "TM-P80II", DotsPerLine: 576, HasCutter: true},
	SeriesTMM30III: {Name: "TM-m30III", DotsPerLine: 576, HasCutter: true, HasDrawer: true},
}

// Valid reports whether the series is known
func (s DeviceSeries) Valid() bool {
	_, ok := seriesProfiles[s]
	return ok
}

// Profile returns the capability profile for the series. Unknown series
// fall back to an 80mm profile.
func (s DeviceSeries) Profile() SeriesProfile {
	if p, ok := seriesProfiles[s]; ok {
		return p
	}
	return SeriesProfile{Name: fmt.Sprintf("series-%d", int(s)), DotsPerLine: 576, HasCutter: true, HasDrawer: true}
}

func (s DeviceSeries) String() string {
	return s.Profile().Name
}

// CommandLanguage selects the character model of the printer
type CommandLanguage int

const (
	LanguageANK CommandLanguage = iota
	LanguageJapanese
	LanguageChinese
	LanguageTaiwan
	LanguageKorean
	LanguageThai
	LanguageSouthAsia
)

// DefaultLanguage is used when a caller does not pass one
const DefaultLanguage = LanguageANK

// Valid reports whether the language is known
func (l CommandLanguage) Valid() bool {
	return l >= LanguageANK && l <= LanguageSouthAsia
}

func (l CommandLanguage) String() string {
	switch l {
	case LanguageANK:
		return "ANK"
	case LanguageJapanese:
		return "JAPANESE"
	case LanguageChinese:
		return "CHINESE"
	case LanguageTaiwan:
		return "TAIWAN"
	case LanguageKorean:
		return "KOREAN"
	case LanguageThai:
		return "THAI"
	case LanguageSouthAsia:
		return "SOUTHASIA"
	default:
		return fmt.Sprintf("LANGUAGE(%d)", int(l))
	}
}

// TransportOf infers the transport kind from a target identifier
func TransportOf(target string) (TransportKind, bool) {
	upper := strings.ToUpper(target)
	switch {
	case strings.HasPrefix(upper, TargetPrefixTCP):
		return TransportTCP, true
	case strings.HasPrefix(upper, TargetPrefixBluetooth):
		return TransportBluetooth, true
	case strings.HasPrefix(upper, TargetPrefixUSB):
		return TransportUSB, true
	}
	return "", false
}
