// internal/driver/epson/image.go
package epson

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
)

// rasterBandRows bounds the height of a single GS v 0 block
const rasterBandRows = 1024

// rasterThreshold is the luminance below which a pixel prints black
const rasterThreshold = 128

// DecodeImageValue decodes the base64 value of an IMAGE command. A data URL
// prefix ("data:image/png;base64,") is accepted.
func DecodeImageValue(value string) ([]byte, error) {
	if i := strings.Index(value, "base64,"); i >= 0 && strings.HasPrefix(value, "data:") {
		value = value[i+len("base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("unsupported image data: %w", err)
	}
	return data, nil
}

// rasterFromEncoded decodes PNG/JPEG/GIF data and rasterises it
func rasterFromEncoded(data []byte, maxWidth int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return rasterImage(img, maxWidth)
}

// rasterImage shrinks img to fit maxWidth dots, converts it to 1-bit and
// emits GS v 0 blocks
func rasterImage(img image.Image, maxWidth int) ([]byte, error) {
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	gray := imaging.Grayscale(img)

	width := gray.Bounds().Dx()
	height := gray.Bounds().Dy()
	bytesPerLine := (width + 7) / 8
	bitmap := make([]byte, bytesPerLine*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := gray.NRGBAAt(x, y)
			// Transparent pixels stay white
			if c.A < 128 || c.R >= rasterThreshold {
				continue
			}
			bitmap[y*bytesPerLine+x/8] |= 0x80 >> uint(x%8)
		}
	}

	var buf bytes.Buffer
	for top := 0; top < height; top += rasterBandRows {
		rows := height - top
		if rows > rasterBandRows {
			rows = rasterBandRows
		}
		// GS v 0 m xL xH yL yH d1...dk
		buf.Write([]byte{GS, 0x76, 0x30, 0x00,
			byte(bytesPerLine), byte(bytesPerLine >> 8),
			byte(rows), byte(rows >> 8)})
		buf.Write(bitmap[top*bytesPerLine : (top+rows)*bytesPerLine])
	}
	return buf.Bytes(), nil
}
