// internal/driver/epson/encoder.go
package epson

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"printer-bridge/internal/model"
	"printer-bridge/pkg/driver"
)

// Segment is the encoded form of one print command
type Segment struct {
	Index int               `json:"index"`
	Kind  model.CommandType `json:"kind"`
	Bytes []byte            `json:"-"`
}

// Encoded is the result of encoding one print job. Segments are
// independent: each restores default formatting when it ends, so dropping a
// command never changes the bytes of its neighbours.
type Encoded struct {
	Preamble []byte                  `json:"-"`
	Segments []Segment               `json:"segments"`
	Skipped  []driver.SkippedCommand `json:"skipped,omitempty"`
}

// Bytes returns the full stream: preamble followed by every segment in order
func (e *Encoded) Bytes() []byte {
	var buf bytes.Buffer
	buf.Write(e.Preamble)
	for _, s := range e.Segments {
		buf.Write(s.Bytes)
	}
	return buf.Bytes()
}

// Encoder converts print commands into ESC/POS for one series and language.
// It performs no I/O.
type Encoder struct {
	profile model.SeriesProfile
	charset charset
	logger  *zap.Logger
}

// NewEncoder creates an encoder for the series and language
func NewEncoder(series model.DeviceSeries, language model.CommandLanguage, logger *zap.Logger) *Encoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Encoder{
		profile: series.Profile(),
		charset: charsetFor(language),
		logger:  logger.With(zap.String("component", "encoder"), zap.String("series", series.String())),
	}
}

// Encode parses and encodes wire commands. Malformed or unsupported entries
// are skipped with a warning and listed in Encoded.Skipped. An
// ENCODING_ERROR is returned only when nothing could be encoded.
func (e *Encoder) Encode(specs []model.CommandSpec) (*Encoded, error) {
	out := &Encoded{Preamble: e.preamble()}

	for i, spec := range specs {
		cmd, err := spec.Parse(DecodeImageValue)
		if err != nil {
			e.skip(out, i, spec.Type, err)
			continue
		}
		e.appendCommand(out, i, cmd)
	}

	return out, e.checkEmpty(out, len(specs))
}

// EncodeCommands encodes already typed commands
func (e *Encoder) EncodeCommands(cmds []model.PrintCommand) (*Encoded, error) {
	out := &Encoded{Preamble: e.preamble()}
	for i, cmd := range cmds {
		e.appendCommand(out, i, cmd)
	}
	return out, e.checkEmpty(out, len(cmds))
}

func (e *Encoder) checkEmpty(out *Encoded, total int) error {
	if len(out.Segments) > 0 {
		return nil
	}
	msg := "print job is empty"
	if total > 0 {
		msg = fmt.Sprintf("none of %d commands could be encoded", total)
	}
	return model.NewError(model.ErrCodeEncodingError, msg, nil)
}

func (e *Encoder) appendCommand(out *Encoded, index int, cmd model.PrintCommand) {
	data, err := e.encodeCommand(cmd)
	if err != nil {
		e.skip(out, index, string(cmd.Kind()), err)
		return
	}
	out.Segments = append(out.Segments, Segment{Index: index, Kind: cmd.Kind(), Bytes: data})
}

func (e *Encoder) skip(out *Encoded, index int, cmdType string, err error) {
	e.logger.Warn("Skipping print command",
		zap.Int("index", index),
		zap.String("type", cmdType),
		zap.Error(err),
	)
	out.Skipped = append(out.Skipped, driver.SkippedCommand{Index: index, Type: cmdType, Reason: err.Error()})
}

func (e *Encoder) preamble() []byte {
	p := append([]byte{}, ESC_POS_COMMANDS.INITIALIZE...)
	return append(p, e.charset.selectCmd...)
}

func (e *Encoder) encodeCommand(cmd model.PrintCommand) ([]byte, error) {
	switch c := cmd.(type) {
	case model.TextCommand:
		return e.encodeText(c)
	case model.CutCommand:
		if !e.profile.HasCutter {
			return nil, fmt.Errorf("%s has no autocutter", e.profile.Name)
		}
		if c.Mode == model.CutPartial {
			return ESC_POS_COMMANDS.CUT_PARTIAL, nil
		}
		return ESC_POS_COMMANDS.CUT_FULL, nil
	case model.BarcodeCommand:
		var body []byte
		var err error
		if c.AsImage {
			body, err = imageBarcode(c, e.profile.DotsPerLine)
		} else {
			body, err = nativeBarcode(c)
		}
		if err != nil {
			return nil, err
		}
		return e.aligned(c.Align, body), nil
	case model.ImageCommand:
		body, err := rasterFromEncoded(c.Data, e.profile.DotsPerLine)
		if err != nil {
			return nil, err
		}
		return e.aligned(c.Align, body), nil
	case model.DrawerPulseCommand:
		if !e.profile.HasDrawer {
			return nil, fmt.Errorf("%s has no drawer kick connector", e.profile.Name)
		}
		return DrawerKickCommand(c.Pin, c.PulseMillis), nil
	case model.FeedCommand:
		return feedCommand(c.Lines), nil
	case model.QRCodeCommand:
		var body []byte
		var err error
		if c.AsImage {
			body, err = imageQRCode(c, e.profile.DotsPerLine)
		} else {
			body, err = nativeQRCode(c)
		}
		if err != nil {
			return nil, err
		}
		return e.aligned(c.Align, body), nil
	case nil:
		return nil, fmt.Errorf("nil command")
	}
	return nil, fmt.Errorf("unsupported command %T", cmd)
}

func (e *Encoder) encodeText(c model.TextCommand) ([]byte, error) {
	text, err := e.charset.encodeText(c.Text)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(alignCommand(c.Align))
	if c.Bold {
		buf.Write(ESC_POS_COMMANDS.TEXT_BOLD_ON)
	}
	if c.Underline {
		buf.Write(ESC_POS_COMMANDS.TEXT_UNDERLINE_ON)
	}
	scaled := c.Width > 1 || c.Height > 1
	if scaled {
		buf.Write(textSizeCommand(c.Width, c.Height))
	}

	buf.Write(text)
	buf.Write(ESC_POS_COMMANDS.LINE_FEED)

	if scaled {
		buf.Write(ESC_POS_COMMANDS.TEXT_SIZE_NORMAL)
	}
	if c.Underline {
		buf.Write(ESC_POS_COMMANDS.TEXT_UNDERLINE_OFF)
	}
	if c.Bold {
		buf.Write(ESC_POS_COMMANDS.TEXT_BOLD_OFF)
	}
	if c.Align != model.AlignLeft {
		buf.Write(ESC_POS_COMMANDS.ALIGN_LEFT)
	}
	return buf.Bytes(), nil
}

// aligned wraps body in ESC a n ... ESC a 0
func (e *Encoder) aligned(a model.Alignment, body []byte) []byte {
	if a == model.AlignLeft || a == "" {
		return body
	}
	out := append([]byte{}, alignCommand(a)...)
	out = append(out, body...)
	return append(out, ESC_POS_COMMANDS.ALIGN_LEFT...)
}
