// internal/driver/epson/command.go
package epson

import "printer-bridge/internal/model"

// ESC/POS control bytes
const (
	LF  byte = 0x0A
	DLE byte = 0x10
	EOT byte = 0x04
	ESC byte = 0x1B
	GS  byte = 0x1D
)

// ESC_POS_COMMANDS contains the fixed ESC/POS sequences used by the encoder
// and the status reader
var ESC_POS_COMMANDS = struct {
	// Basic commands
	INITIALIZE        []byte
	PRINTER_NAME      []byte
	STATUS_PRINTER    []byte
	STATUS_OFFLINE    []byte
	STATUS_ERROR      []byte
	STATUS_ROLL_PAPER []byte

	// Text formatting
	TEXT_BOLD_ON       []byte
	TEXT_BOLD_OFF      []byte
	TEXT_UNDERLINE_ON  []byte
	TEXT_UNDERLINE_OFF []byte
	TEXT_SIZE_NORMAL   []byte

	// Text alignment
	ALIGN_LEFT   []byte
	ALIGN_CENTER []byte
	ALIGN_RIGHT  []byte

	// Paper handling
	LINE_FEED  []byte
	FEED_LINES []byte // + line count byte

	// Cutting. GS V 65/66 feed to the cutter first.
	CUT_FULL    []byte
	CUT_PARTIAL []byte

	// Cash drawer, + t1 t2 pulse bytes
	DRAWER_KICK_PIN2 []byte
	DRAWER_KICK_PIN5 []byte

	// Character model
	SELECT_KANJI_ON  []byte
	SELECT_KANJI_OFF []byte
}{
	INITIALIZE:        []byte{ESC, 0x40},      // ESC @
	PRINTER_NAME:      []byte{GS, 0x49, 0x43}, // GS I 67
	STATUS_PRINTER:    []byte{DLE, EOT, 0x01}, // DLE EOT 1
	STATUS_OFFLINE:    []byte{DLE, EOT, 0x02}, // DLE EOT 2
	STATUS_ERROR:      []byte{DLE, EOT, 0x03}, // DLE EOT 3
	STATUS_ROLL_PAPER: []byte{DLE, EOT, 0x04}, // DLE EOT 4

	TEXT_BOLD_ON:       []byte{ESC, 0x45, 0x01}, // ESC E 1
	TEXT_BOLD_OFF:      []byte{ESC, 0x45, 0x00}, // ESC E 0
	TEXT_UNDERLINE_ON:  []byte{ESC, 0x2D, 0x01}, // ESC - 1
	TEXT_UNDERLINE_OFF: []byte{ESC, 0x2D, 0x00}, // ESC - 0
	TEXT_SIZE_NORMAL:   []byte{GS, 0x21, 0x00},  // GS ! 0

	ALIGN_LEFT:   []byte{ESC, 0x61, 0x00}, // ESC a 0
	ALIGN_CENTER: []byte{ESC, 0x61, 0x01}, // ESC a 1
	ALIGN_RIGHT:  []byte{ESC, 0x61, 0x02}, // ESC a 2

	LINE_FEED:  []byte{LF},        // LF
	FEED_LINES: []byte{ESC, 0x64}, // ESC d + n

	CUT_FULL:    []byte{GS, 0x56, 0x41, 0x00}, // GS V 65 0
	CUT_PARTIAL: []byte{GS, 0x56, 0x42, 0x00}, // GS V 66 0

	DRAWER_KICK_PIN2: []byte{ESC, 0x70, 0x00}, // ESC p 0
	DRAWER_KICK_PIN5: []byte{ESC, 0x70, 0x01}, // ESC p 1

	SELECT_KANJI_ON:  []byte{0x1C, 0x26}, // FS &
	SELECT_KANJI_OFF: []byte{0x1C, 0x2E}, // FS .
}

// alignCommand returns ESC a n for the alignment
func alignCommand(a model.Alignment) []byte {
	switch a {
	case model.AlignCenter:
		return ESC_POS_COMMANDS.ALIGN_CENTER
	case model.AlignRight:
		return ESC_POS_COMMANDS.ALIGN_RIGHT
	default:
		return ESC_POS_COMMANDS.ALIGN_LEFT
	}
}

// textSizeCommand returns GS ! n for width and height multipliers 1..8
func textSizeCommand(width, height int) []byte {
	n := byte((width-1)&0x07)<<4 | byte((height-1)&0x07)
	return []byte{GS, 0x21, n}
}

// feedCommand returns ESC d n
func feedCommand(lines int) []byte {
	return append(append([]byte{}, ESC_POS_COMMANDS.FEED_LINES...), byte(lines))
}

// DrawerKickCommand returns ESC p m t1 t2. The on time is pulse/2 ms units;
// the off time mirrors it, capped at 255 units.
func DrawerKickCommand(pin model.DrawerPin, pulseMillis int) []byte {
	base := ESC_POS_COMMANDS.DRAWER_KICK_PIN2
	if pin == model.DrawerPin5 {
		base = ESC_POS_COMMANDS.DRAWER_KICK_PIN5
	}
	units := pulseMillis / 2
	if units < 1 {
		units = 1
	}
	if units > 255 {
		units = 255
	}
	return append(append([]byte{}, base...), byte(units), byte(units))
}
