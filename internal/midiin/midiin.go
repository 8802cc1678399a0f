// Package midiin turns MIDI channel voice messages into protocol lines.
// Channel n drives voice n.
package midiin

import (
	"fmt"
	"log/slog"
	"strconv"

	"gitlab.com/gomidi/midi/v2"
)

// Controllers that have a protocol mapping.
const (
	CCModWheel = 1
	CCVolume   = 7
	CCPan      = 10
)

// Translator renders messages into a reused buffer. It is not safe for
// concurrent use.
type Translator struct {
	// PDMode is the distortion mode the mod wheel drives.
	PDMode int
	buf    []byte
}

func NewTranslator() *Translator {
	return &Translator{PDMode: 1, buf: make([]byte, 0, 64)}
}

// Line returns the protocol line for msg, or false when the message has no
// mapping. The string does not alias the internal buffer.
func (t *Translator) Line(msg midi.Message) (string, bool) {
	var ch, key, vel, cc, val uint8
	b := t.buf[:0]
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		b = voice(b, ch)
		b = append(b, " n"...)
		b = strconv.AppendInt(b, int64(key), 10)
		b = append(b, " l"...)
		b = unit(b, vel)
	case msg.GetNoteEnd(&ch, &key):
		b = voice(b, ch)
		b = append(b, " l0"...)
	case msg.GetControlChange(&ch, &cc, &val):
		b = voice(b, ch)
		switch cc {
		case CCVolume:
			b = append(b, " a"...)
			b = unit(b, val)
		case CCPan:
			b = append(b, " p"...)
			b = strconv.AppendFloat(b, max(float64(int(val)-64)/63, -1), 'f', 3, 64)
		case CCModWheel:
			b = append(b, " c"...)
			b = strconv.AppendInt(b, int64(t.PDMode), 10)
			b = append(b, ',')
			b = strconv.AppendFloat(b, float64(val)/127*0.999, 'f', 3, 64)
		default:
			return "", false
		}
	default:
		return "", false
	}
	t.buf = b
	return string(b), true
}

func voice(b []byte, ch uint8) []byte {
	b = append(b, 'v')
	return strconv.AppendInt(b, int64(ch), 10)
}

func unit(b []byte, v uint8) []byte {
	return strconv.AppendFloat(b, float64(v)/127, 'f', 3, 64)
}

// Listen opens the input port whose name contains name and feeds each
// translated line to fn on the driver's goroutine. A driver must have been
// registered by importing one, such as drivers/rtmididrv.
func Listen(name string, logger *slog.Logger, fn func(line string)) (stop func(), err error) {
	if logger == nil {
		logger = slog.Default()
	}
	in, err := midi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("midi input %q: %w", name, err)
	}
	tr := NewTranslator()
	stop, err = midi.ListenTo(in, func(msg midi.Message, _ int32) {
		line, ok := tr.Line(msg)
		if !ok {
			logger.Debug("unmapped midi message", "msg", msg.String())
			return
		}
		fn(line)
	}, midi.HandleError(func(err error) {
		logger.Warn("midi listener error", "port", in.String(), "err", err)
	}))
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", in.String(), err)
	}
	logger.Info("midi input connected", "port", in.String())
	return stop, nil
}
