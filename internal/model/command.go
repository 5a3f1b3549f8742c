// internal/model/command.go
package model

import (
	"fmt"
	"strings"
)

// CommandType represents a print command variant
type CommandType string

const (
	CommandText        CommandType = "TEXT"
	CommandCut         CommandType = "CUT"
	CommandBarcode     CommandType = "BARCODE"
	CommandImage       CommandType = "IMAGE"
	CommandDrawerPulse CommandType = "DRAWER_PULSE"
	CommandFeed        CommandType = "FEED"
	CommandQRCode      CommandType = "QRCODE"
)

// Alignment of text, barcodes and images
type Alignment string

const (
	AlignLeft   Alignment = "LEFT"
	AlignCenter Alignment = "CENTER"
	AlignRight  Alignment = "RIGHT"
)

// CutMode selects a full or partial cut
type CutMode string

const (
	CutFull    CutMode = "FULL"
	CutPartial CutMode = "PARTIAL"
)

// DrawerPin selects the drawer kick connector pin
type DrawerPin int

const (
	DrawerPin2 DrawerPin = 2
	DrawerPin5 DrawerPin = 5
)

// Barcode symbologies understood by the encoder
const (
	SymbologyUPCA    = "UPC_A"
	SymbologyUPCE    = "UPC_E"
	SymbologyEAN13   = "EAN13"
	SymbologyEAN8    = "EAN8"
	SymbologyCode39  = "CODE39"
	SymbologyITF     = "ITF"
	SymbologyCodabar = "CODABAR"
	SymbologyCode93  = "CODE93"
	SymbologyCode128 = "CODE128"
)

// HRI (human readable interpretation) positions
const (
	HRINone  = "NONE"
	HRIAbove = "ABOVE"
	HRIBelow = "BELOW"
	HRIBoth  = "BOTH"
)

// CommandSpec is one untyped print command as received on the wire
type CommandSpec struct {
	Type            string  `json:"type"`
	Value           *string `json:"value,omitempty"`
	Align           string  `json:"align,omitempty"`
	Bold            bool    `json:"bold,omitempty"`
	Underline       bool    `json:"underline,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	Cut             string  `json:"cut,omitempty"`
	Symbology       string  `json:"symbology,omitempty"`
	HRI             string  `json:"hri,omitempty"`
	ModuleWidth     int     `json:"module_width,omitempty"`
	BarHeight       int     `json:"bar_height,omitempty"`
	AsImage         bool    `json:"as_image,omitempty"`
	Pin             int     `json:"pin,omitempty"`
	PulseMillis     int     `json:"pulse_ms,omitempty"`
	Lines           *int    `json:"lines,omitempty"`
	Size            int     `json:"size,omitempty"`
	ErrorCorrection string  `json:"error_correction,omitempty"`
}

// PrintCommand is a validated, typed print command
type PrintCommand interface {
	Kind() CommandType
}

// TextCommand prints a line of text
type TextCommand struct {
	Text      string
	Align     Alignment
	Bold      bool
	Underline bool
	Width     int
	Height    int
}

// CutCommand feeds and cuts the paper
type CutCommand struct {
	Mode CutMode
}

// BarcodeCommand prints a 1D barcode
type BarcodeCommand struct {
	Data        string
	Symbology   string
	HRI         string
	ModuleWidth int
	Height      int
	Align       Alignment
	AsImage     bool
}

// ImageCommand prints a raster image from encoded PNG/JPEG/GIF data
type ImageCommand struct {
	Data  []byte
	Align Alignment
}

// DrawerPulseCommand kicks the cash drawer
type DrawerPulseCommand struct {
	Pin         DrawerPin
	PulseMillis int
}

// FeedCommand feeds n lines
type FeedCommand struct {
	Lines int
}

// QRCodeCommand prints a QR symbol
type QRCodeCommand struct {
	Data            string
	Size            int
	ErrorCorrection string
	Align           Alignment
	AsImage         bool
}

func (TextCommand) Kind() CommandType        { return CommandText }
func (CutCommand) Kind() CommandType         { return CommandCut }
func (BarcodeCommand) Kind() CommandType     { return CommandBarcode }
func (ImageCommand) Kind() CommandType       { return CommandImage }
func (DrawerPulseCommand) Kind() CommandType { return CommandDrawerPulse }
func (FeedCommand) Kind() CommandType        { return CommandFeed }
func (QRCodeCommand) Kind() CommandType      { return CommandQRCode }

// Command value limits
const (
	MaxTextScale       = 8
	MaxFeedLines       = 255
	DefaultPulseMillis = 50
	MaxPulseMillis     = 510
	DefaultQRSize      = 6
	MaxQRSize          = 16
	DefaultBarHeight   = 162
	DefaultModuleWidth = 3
)

// ImageDecoder turns the wire value of an IMAGE command into raw bytes
type ImageDecoder func(value string) ([]byte, error)

// Parse validates the spec and returns its typed command
func (s CommandSpec) Parse(decodeImage ImageDecoder) (PrintCommand, error) {
	align, err := parseAlign(s.Align)
	if err != nil {
		return nil, err
	}

	switch CommandType(strings.ToUpper(strings.TrimSpace(s.Type))) {
	case CommandText:
		if s.Value == nil {
			return nil, fmt.Errorf("TEXT requires value")
		}
		w, h := s.Width, s.Height
		if w == 0 {
			w = 1
		}
		if h == 0 {
			h = 1
		}
		if w < 1 || w > MaxTextScale || h < 1 || h > MaxTextScale {
			return nil, fmt.Errorf("TEXT size %dx%d out of range 1..%d", w, h, MaxTextScale)
		}
		return TextCommand{Text: *s.Value, Align: align, Bold: s.Bold, Underline: s.Underline, Width: w, Height: h}, nil

	case CommandCut:
		mode := CutMode(strings.ToUpper(s.Cut))
		switch mode {
		case "":
			mode = CutFull
		case CutFull, CutPartial:
		default:
			return nil, fmt.Errorf("unknown cut mode %q", s.Cut)
		}
		return CutCommand{Mode: mode}, nil

	case CommandBarcode:
		if s.Value == nil || *s.Value == "" {
			return nil, fmt.Errorf("BARCODE requires value")
		}
		sym := strings.ToUpper(s.Symbology)
		if sym == "" {
			sym = SymbologyCode128
		}
		hri := strings.ToUpper(s.HRI)
		if hri == "" {
			hri = HRIBelow
		}
		switch hri {
		case HRINone, HRIAbove, HRIBelow, HRIBoth:
		default:
			return nil, fmt.Errorf("unknown hri position %q", s.HRI)
		}
		mw := s.ModuleWidth
		if mw == 0 {
			mw = DefaultModuleWidth
		}
		if mw < 2 || mw > 6 {
			return nil, fmt.Errorf("module width %d out of range 2..6", mw)
		}
		height := s.BarHeight
		if height == 0 {
			height = DefaultBarHeight
		}
		if height < 1 || height > 255 {
			return nil, fmt.Errorf("bar height %d out of range 1..255", height)
		}
		return BarcodeCommand{Data: *s.Value, Symbology: sym, HRI: hri, ModuleWidth: mw, Height: height, Align: align, AsImage: s.AsImage}, nil

	case CommandImage:
		if s.Value == nil || *s.Value == "" {
			return nil, fmt.Errorf("IMAGE requires value")
		}
		if decodeImage == nil {
			return nil, fmt.Errorf("IMAGE decoding unavailable")
		}
		data, err := decodeImage(*s.Value)
		if err != nil {
			return nil, fmt.Errorf("IMAGE value: %w", err)
		}
		return ImageCommand{Data: data, Align: align}, nil

	case CommandDrawerPulse:
		var pin DrawerPin
		switch s.Pin {
		case 0, 2:
			pin = DrawerPin2
		case 1, 5:
			pin = DrawerPin5
		default:
			return nil, fmt.Errorf("drawer pin %d must be 2 or 5", s.Pin)
		}
		pulse := s.PulseMillis
		if pulse == 0 {
			pulse = DefaultPulseMillis
		}
		if pulse < 2 || pulse > MaxPulseMillis {
			return nil, fmt.Errorf("pulse %dms out of range 2..%d", pulse, MaxPulseMillis)
		}
		return DrawerPulseCommand{Pin: pin, PulseMillis: pulse}, nil

	case CommandFeed:
		lines := 1
		if s.Lines != nil {
			lines = *s.Lines
		}
		if lines < 0 || lines > MaxFeedLines {
			return nil, fmt.Errorf("feed lines %d out of range 0..%d", lines, MaxFeedLines)
		}
		return FeedCommand{Lines: lines}, nil

	case CommandQRCode:
		if s.Value == nil || *s.Value == "" {
			return nil, fmt.Errorf("QRCODE requires value")
		}
		size := s.Size
		if size == 0 {
			size = DefaultQRSize
		}
		if size < 1 || size > MaxQRSize {
			return nil, fmt.Errorf("qr size %d out of range 1..%d", size, MaxQRSize)
		}
		ec := strings.ToUpper(s.ErrorCorrection)
		switch ec {
		case "":
			ec = "M"
		case "L", "M", "Q", "H":
		default:
			return nil, fmt.Errorf("unknown qr error correction %q", s.ErrorCorrection)
		}
		return QRCodeCommand{Data: *s.Value, Size: size, ErrorCorrection: ec, Align: align, AsImage: s.AsImage}, nil
	}

	return nil, fmt.Errorf("unknown command type %q", s.Type)
}

func parseAlign(v string) (Alignment, error) {
	switch a := Alignment(strings.ToUpper(v)); a {
	case "":
		return AlignLeft, nil
	case AlignLeft, AlignCenter, AlignRight:
		return a, nil
	}
	return "", fmt.Errorf("unknown alignment %q", v)
}
