// internal/driver/epson/text.go
package epson

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"

	"printer-bridge/internal/model"
)

// charset pairs the printer-side selection sequence with the encoding used
// to turn Go strings into printer bytes
type charset struct {
	name      string
	selectCmd []byte
	encoding  encoding.Encoding
}

var charsets = map[model.CommandLanguage]charset{
	model.LanguageANK: {
		name:      "PC437",
		selectCmd: []byte{ESC, 0x74, 0x00}, // ESC t 0
		encoding:  charmap.CodePage437,
	},
	model.LanguageJapanese: {
		name:      "Shift_JIS",
		selectCmd: []byte{0x1C, 0x43, 0x01, 0x1C, 0x26}, // FS C 1, FS &
		encoding:  japanese.ShiftJIS,
	},
	model.LanguageChinese: {
		name:      "GB18030",
		selectCmd: []byte{0x1C, 0x26}, // FS &
		encoding:  simplifiedchinese.GB18030,
	},
	model.LanguageTaiwan: {
		name:      "Big5",
		selectCmd: []byte{0x1C, 0x26},
		encoding:  traditionalchinese.Big5,
	},
	model.LanguageKorean: {
		name:      "EUC-KR",
		selectCmd: []byte{0x1C, 0x26},
		encoding:  korean.EUCKR,
	},
	model.LanguageThai: {
		name:      "Windows-874",
		selectCmd: []byte{ESC, 0x74, 0x1A}, // ESC t 26
		encoding:  charmap.Windows874,
	},
	model.LanguageSouthAsia: {
		name:      "UTF-8",
		selectCmd: nil,
		encoding:  unicode.UTF8,
	},
}

func charsetFor(lang model.CommandLanguage) charset {
	if cs, ok := charsets[lang]; ok {
		return cs
	}
	return charsets[model.LanguageANK]
}

// encodeText converts s to printer bytes. Runes the code page cannot
// represent are replaced rather than failing the command.
func (c charset) encodeText(s string) ([]byte, error) {
	out, err := encoding.ReplaceUnsupported(c.encoding.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode text as %s: %w", c.name, err)
	}
	return out, nil
}
