// internal/driver/epson/barcode.go
package epson

import (
	"fmt"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/codabar"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/code39"
	"github.com/boombuler/barcode/code93"
	"github.com/boombuler/barcode/ean"
	"github.com/boombuler/barcode/twooffive"
	"github.com/skip2/go-qrcode"

	"printer-bridge/internal/model"
)

// GS k function B symbology codes
var barcodeSystems = map[string]byte{
	model.SymbologyUPCA:    65,
	model.SymbologyUPCE:    66,
	model.SymbologyEAN13:   67,
	model.SymbologyEAN8:    68,
	model.SymbologyCode39:  69,
	model.SymbologyITF:     70,
	model.SymbologyCodabar: 71,
	model.SymbologyCode93:  72,
	model.SymbologyCode128: 73,
}

var hriPositions = map[string]byte{
	model.HRINone:  0,
	model.HRIAbove: 1,
	model.HRIBelow: 2,
	model.HRIBoth:  3,
}

// nativeBarcode encodes a barcode with the printer's own GS k generator
func nativeBarcode(cmd model.BarcodeCommand) ([]byte, error) {
	system, ok := barcodeSystems[cmd.Symbology]
	if !ok {
		return nil, fmt.Errorf("unsupported symbology %q", cmd.Symbology)
	}
	data := []byte(cmd.Data)
	if system == 73 && len(data) > 0 && data[0] != '{' {
		// Code128 needs a code set prefix; code set B covers ASCII
		data = append([]byte{'{', 'B'}, data...)
	}
	if len(data) > 255 {
		return nil, fmt.Errorf("barcode data too long (%d bytes)", len(data))
	}

	out := []byte{
		GS, 0x48, hriPositions[cmd.HRI],   // GS H n
		GS, 0x77, byte(cmd.ModuleWidth),   // GS w n
		GS, 0x68, byte(cmd.Height),        // GS h n
		GS, 0x6B, system, byte(len(data)), // GS k m n
	}
	out = append(out, data...)
	return append(out, LF), nil
}

// imageBarcode renders the barcode on the host and prints it as a raster
// image. It covers symbologies whose native support varies across series.
func imageBarcode(cmd model.BarcodeCommand, maxWidth int) ([]byte, error) {
	var (
		code barcode.Barcode
		err  error
	)
	switch cmd.Symbology {
	case model.SymbologyCode128:
		code, err = code128.Encode(cmd.Data)
	case model.SymbologyCode39:
		code, err = code39.Encode(cmd.Data, false, true)
	case model.SymbologyCode93:
		code, err = code93.Encode(cmd.Data, false, true)
	case model.SymbologyEAN13, model.SymbologyEAN8:
		code, err = ean.Encode(cmd.Data)
	case model.SymbologyITF:
		code, err = twooffive.Encode(cmd.Data, true)
	case model.SymbologyCodabar:
		code, err = codabar.Encode(cmd.Data)
	default:
		return nil, fmt.Errorf("symbology %q has no image renderer", cmd.Symbology)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s barcode: %w", cmd.Symbology, err)
	}

	width := code.Bounds().Dx() * cmd.ModuleWidth
	if maxWidth > 0 && width > maxWidth {
		width = maxWidth
	}
	if width < code.Bounds().Dx() {
		return nil, fmt.Errorf("barcode needs %d dots, printer has %d", code.Bounds().Dx(), maxWidth)
	}
	scaled, err := barcode.Scale(code, width, cmd.Height)
	if err != nil {
		return nil, fmt.Errorf("scale barcode: %w", err)
	}
	return rasterImage(scaled, maxWidth)
}

var qrErrorLevels = map[string]byte{"L": 48, "M": 49, "Q": 50, "H": 51}

// nativeQRCode encodes GS ( k function 165, 167, 169, 180, 181
func nativeQRCode(cmd model.QRCodeCommand) ([]byte, error) {
	data := []byte(cmd.Data)
	storeLen := len(data) + 3
	if storeLen > 7092 {
		return nil, fmt.Errorf("qr data too long (%d bytes)", len(data))
	}

	var out []byte
	// Model 2
	out = append(out, GS, 0x28, 0x6B, 0x04, 0x00, 0x31, 0x41, 0x32, 0x00)
	// Module size
	out = append(out, GS, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x43, byte(cmd.Size))
	// Error correction
	out = append(out, GS, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x45, qrErrorLevels[cmd.ErrorCorrection])
	// Store data
	out = append(out, GS, 0x28, 0x6B, byte(storeLen), byte(storeLen>>8), 0x31, 0x50, 0x30)
	out = append(out, data...)
	// Print
	out = append(out, GS, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x51, 0x30)
	return out, nil
}

var qrRecoveryLevels = map[string]qrcode.RecoveryLevel{
	"L": qrcode.Low,
	"M": qrcode.Medium,
	"Q": qrcode.High,
	"H": qrcode.Highest,
}

// imageQRCode renders the symbol on the host for printers without GS ( k
func imageQRCode(cmd model.QRCodeCommand, maxWidth int) ([]byte, error) {
	qr, err := qrcode.New(cmd.Data, qrRecoveryLevels[cmd.ErrorCorrection])
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	qr.DisableBorder = true
	modules := len(qr.Bitmap())
	size := modules * cmd.Size
	if maxWidth > 0 && size > maxWidth {
		size = maxWidth
	}
	return rasterImage(qr.Image(size), maxWidth)
}
