// Package wire turns the monitor byte stream into discrete frames:
// status lines, multiline blocks, and raw binary segments. A frame may
// span several reads and one read may hold several frames; the Reader
// buffers across both.
package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docbrown/xbdm/internal/protocol"
)

var (
	ErrLineTooLong      = errors.New("wire: line exceeds limit")
	ErrBlockTooLarge    = errors.New("wire: multiline block exceeds limit")
	ErrBinaryTooLarge   = errors.New("wire: binary segment exceeds limit")
	ErrTruncatedPayload = errors.New("wire: truncated payload")
)

// Limits constrains decode memory use.
type Limits struct {
	MaxLineBytes   int
	MaxBlockBytes  int
	MaxBinaryBytes int64
}

func DefaultLimits() Limits {
	return Limits{
		MaxLineBytes:   4 * 1024,
		MaxBlockBytes:  4 * 1024 * 1024,
		MaxBinaryBytes: 64 * 1024 * 1024,
	}
}

// Reader decodes monitor frames from a byte stream.
type Reader struct {
	r      *bufio.Reader
	limits Limits
}

func NewReader(r io.Reader, limits Limits) *Reader {
	return &Reader{r: bufio.NewReader(r), limits: limits}
}

// readLine returns one line without its terminator. CRLF is the wire
// terminator; a bare LF is tolerated on receipt. The stream is always
// left at a line boundary, even when the line overruns MaxLineBytes, so
// the caller can keep parsing after a malformed frame.
func (fr *Reader) readLine() (string, error) {
	var buf []byte
	overrun := false
	for {
		chunk, err := fr.r.ReadSlice('\n')
		if !overrun {
			buf = append(buf, chunk...)
		}
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			if len(buf) > fr.limits.MaxLineBytes {
				overrun = true
				buf = buf[:fr.limits.MaxLineBytes]
			}
			continue
		}
		if errors.Is(err, io.EOF) && (len(buf) > 0 || overrun) {
			return "", fmt.Errorf("%w: stream closed mid-line", ErrTruncatedPayload)
		}
		return "", err
	}
	if overrun || len(buf) > fr.limits.MaxLineBytes {
		return "", fmt.Errorf("%w: over %d bytes", ErrLineTooLong, fr.limits.MaxLineBytes)
	}
	n := len(buf) - 1
	if n > 0 && buf[n-1] == '\r' {
		n--
	}
	return string(buf[:n]), nil
}

// ReadStatus reads and parses one status line.
func (fr *Reader) ReadStatus() (protocol.Status, error) {
	line, err := fr.readLine()
	if err != nil {
		return protocol.Status{}, err
	}
	return protocol.ParseStatus(line)
}

// ReadBlock consumes a multiline body: lines up to the lone-dot
// terminator. A leading dot pair unescapes to a single dot; all other
// bytes are kept verbatim, intentional whitespace included.
func (fr *Reader) ReadBlock() ([]string, error) {
	lines := make([]string, 0, 8)
	total := 0
	for {
		line, err := fr.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: block terminator missing", ErrTruncatedPayload)
			}
			return nil, err
		}
		if line == "." {
			return lines, nil
		}
		if strings.HasPrefix(line, ".") {
			line = line[1:]
		}
		total += len(line)
		if total > fr.limits.MaxBlockBytes {
			return nil, fmt.Errorf("%w: over %d bytes", ErrBlockTooLarge, fr.limits.MaxBlockBytes)
		}
		lines = append(lines, line)
	}
}

// ReadBinary accumulates exactly n bytes no matter how the transport
// fragments its reads. A stream that closes short fails with
// ErrTruncatedPayload.
func (fr *Reader) ReadBinary(n int64) ([]byte, error) {
	if n < 0 || n > fr.limits.MaxBinaryBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrBinaryTooLarge, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: want %d bytes", ErrTruncatedPayload, n)
		}
		return nil, err
	}
	return buf, nil
}

// WriteCommand validates cmd and writes its line, terminator, and any
// upload payload in a single write.
func WriteCommand(w io.Writer, cmd protocol.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if _, err := w.Write(cmd.AppendWire(nil)); err != nil {
		return err
	}
	return nil
}

// WriteBlock serializes lines as a multiline body: dot-initial lines
// gain a second dot and the lone-dot terminator closes the block.
// ReadBlock inverts WriteBlock exactly.
func WriteBlock(w io.Writer, lines []string) error {
	var buf bytes.Buffer
	for _, line := range lines {
		if strings.HasPrefix(line, ".") {
			buf.WriteByte('.')
		}
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
	buf.WriteString(".\r\n")
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	return nil
}
