package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// MaxCommandLine bounds one outgoing command line, terminator excluded.
const MaxCommandLine = 512

var (
	ErrEmptyCommand   = errors.New("protocol: empty command")
	ErrCommandTooLong = errors.New("protocol: command line too long")
	ErrIllegalByte    = errors.New("protocol: illegal byte in command line")
)

// Command is one outgoing request: a single ASCII line, optionally
// carrying an upload payload and the expected size of a binary response.
type Command struct {
	// Line is the command text without terminator.
	Line string

	// Payload is written verbatim immediately after the line for
	// upload-style commands. No additional framing is applied.
	Payload []byte

	// BinarySize declares the byte count of a binary response body for
	// commands whose convention fixes it up front. Zero means undeclared;
	// the length field of the 203 status line is consulted instead.
	BinarySize int64
}

// Validate rejects lines the monitor could not frame: empty input,
// oversized lines, and bytes outside printable ASCII (which includes the
// CR/LF that would break the line discipline).
func (c Command) Validate() error {
	if c.Line == "" {
		return ErrEmptyCommand
	}
	if len(c.Line) > MaxCommandLine {
		return fmt.Errorf("%w: %d bytes", ErrCommandTooLong, len(c.Line))
	}
	for i := 0; i < len(c.Line); i++ {
		if b := c.Line[i]; b < 0x20 || b > 0x7e {
			return fmt.Errorf("%w: 0x%02x at offset %d", ErrIllegalByte, b, i)
		}
	}
	return nil
}

// Verb returns the command word, the line up to the first space.
func (c Command) Verb() string {
	if i := strings.IndexByte(c.Line, ' '); i >= 0 {
		return c.Line[:i]
	}
	return c.Line
}

// AppendWire serializes the command line, CRLF terminator, and payload.
func (c Command) AppendWire(dst []byte) []byte {
	dst = append(dst, c.Line...)
	dst = append(dst, '\r', '\n')
	return append(dst, c.Payload...)
}
