package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docbrown/xbdm/internal/protocol"
)

// chunkReader hands out at most n bytes per Read to exercise frames
// that span reads.
type chunkReader struct {
	data []byte
	n    int
}

func (cr *chunkReader) Read(p []byte) (int, error) {
	if len(cr.data) == 0 {
		return 0, io.EOF
	}
	n := cr.n
	if n > len(cr.data) {
		n = len(cr.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, cr.data[:n])
	cr.data = cr.data[n:]
	return n, nil
}

func eqLines(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d lines %q, want %d %q", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadStatus(t *testing.T) {
	fr := NewReader(strings.NewReader("200- OK\r\n"), DefaultLimits())
	st, err := fr.ReadStatus()
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if st.Code != protocol.StatusOK || st.Message != "OK" {
		t.Fatalf("got %v, want 200 OK", st)
	}
}

func TestReadStatusBareLF(t *testing.T) {
	fr := NewReader(strings.NewReader("201- connected\n"), DefaultLimits())
	st, err := fr.ReadStatus()
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if st.Code != protocol.StatusConnected {
		t.Fatalf("got %v, want 201", st.Code)
	}
}

func TestReadStatusFragmented(t *testing.T) {
	for _, n := range []int{1, 3, 1000} {
		cr := &chunkReader{data: []byte("414- access denied\r\n"), n: n}
		fr := NewReader(cr, DefaultLimits())
		st, err := fr.ReadStatus()
		if err != nil {
			t.Fatalf("chunk %d: ReadStatus: %v", n, err)
		}
		if st.Code != protocol.StatusAccessDenied || st.Message != "access denied" {
			t.Fatalf("chunk %d: got %v", n, st)
		}
	}
}

func TestReadStatusEOFMidLine(t *testing.T) {
	fr := NewReader(strings.NewReader("200- O"), DefaultLimits())
	if _, err := fr.ReadStatus(); !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("got %v, want ErrTruncatedPayload", err)
	}
}

func TestReadStatusCleanEOF(t *testing.T) {
	fr := NewReader(strings.NewReader(""), DefaultLimits())
	if _, err := fr.ReadStatus(); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestReadBlock(t *testing.T) {
	wire := "Drive : \"HDD\"\r\n..partition\r\n  indented\r\n\r\n.\r\n"
	fr := NewReader(strings.NewReader(wire), DefaultLimits())
	lines, err := fr.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	eqLines(t, lines, []string{"Drive : \"HDD\"", ".partition", "  indented", ""})
}

func TestReadBlockEmpty(t *testing.T) {
	fr := NewReader(strings.NewReader(".\r\n"), DefaultLimits())
	lines, err := fr.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("got %q, want no lines", lines)
	}
}

func TestReadBlockFragmented(t *testing.T) {
	wire := []byte("one\r\ntwo\r\n...\r\n.\r\n")
	for _, n := range []int{1, 3, 1000} {
		fr := NewReader(&chunkReader{data: wire, n: n}, DefaultLimits())
		lines, err := fr.ReadBlock()
		if err != nil {
			t.Fatalf("chunk %d: ReadBlock: %v", n, err)
		}
		eqLines(t, lines, []string{"one", "two", ".."})
	}
}

func TestReadBlockMissingTerminator(t *testing.T) {
	fr := NewReader(strings.NewReader("one\r\ntwo\r\n"), DefaultLimits())
	if _, err := fr.ReadBlock(); !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("got %v, want ErrTruncatedPayload", err)
	}
}

func TestReadBlockOverLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxBlockBytes = 8
	fr := NewReader(strings.NewReader("0123456789\r\n.\r\n"), limits)
	if _, err := fr.ReadBlock(); !errors.Is(err, ErrBlockTooLarge) {
		t.Fatalf("got %v, want ErrBlockTooLarge", err)
	}
}

func TestReadBinary(t *testing.T) {
	payload := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 64)
	for _, n := range []int{1, 3, 1000} {
		fr := NewReader(&chunkReader{data: payload, n: n}, DefaultLimits())
		got, err := fr.ReadBinary(int64(len(payload)))
		if err != nil {
			t.Fatalf("chunk %d: ReadBinary: %v", n, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("chunk %d: payload mismatch", n)
		}
	}
}

func TestReadBinaryShortStream(t *testing.T) {
	fr := NewReader(strings.NewReader("abc"), DefaultLimits())
	if _, err := fr.ReadBinary(10); !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("got %v, want ErrTruncatedPayload", err)
	}
}

func TestReadBinaryOverLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxBinaryBytes = 16
	fr := NewReader(strings.NewReader(""), limits)
	if _, err := fr.ReadBinary(17); !errors.Is(err, ErrBinaryTooLarge) {
		t.Fatalf("got %v, want ErrBinaryTooLarge", err)
	}
	if _, err := fr.ReadBinary(-1); !errors.Is(err, ErrBinaryTooLarge) {
		t.Fatalf("negative length: got %v, want ErrBinaryTooLarge", err)
	}
}

// An oversized line must not desync the stream: the next frame still
// parses.
func TestLineTooLongResync(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxLineBytes = 16
	wire := strings.Repeat("x", 100) + "\r\n200- OK\r\n"
	fr := NewReader(strings.NewReader(wire), limits)
	if _, err := fr.ReadStatus(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("got %v, want ErrLineTooLong", err)
	}
	st, err := fr.ReadStatus()
	if err != nil {
		t.Fatalf("ReadStatus after overrun: %v", err)
	}
	if st.Code != protocol.StatusOK {
		t.Fatalf("got %v, want 200", st.Code)
	}
}

func TestBackToBackFrames(t *testing.T) {
	wire := "202- multiline response follows\r\nA\r\n.\r\n200- OK\r\n"
	fr := NewReader(strings.NewReader(wire), DefaultLimits())
	st, err := fr.ReadStatus()
	if err != nil || st.Code != protocol.StatusMultilineFollows {
		t.Fatalf("first status: %v %v", st, err)
	}
	lines, err := fr.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	eqLines(t, lines, []string{"A"})
	st, err = fr.ReadStatus()
	if err != nil || st.Code != protocol.StatusOK {
		t.Fatalf("second status: %v %v", st, err)
	}
}

func TestBlockRoundTrip(t *testing.T) {
	cases := [][]string{
		{},
		{""},
		{"plain"},
		{"."},
		{".."},
		{".hidden", "..double", "ok."},
		{"trailing space ", "\ttab lead"},
	}
	for _, lines := range cases {
		var buf bytes.Buffer
		if err := WriteBlock(&buf, lines); err != nil {
			t.Fatalf("WriteBlock(%q): %v", lines, err)
		}
		got, err := NewReader(&buf, DefaultLimits()).ReadBlock()
		if err != nil {
			t.Fatalf("ReadBlock(%q): %v", lines, err)
		}
		if len(got) != len(lines) {
			t.Fatalf("round trip %q: got %q", lines, got)
		}
		for i := range lines {
			if got[i] != lines[i] {
				t.Fatalf("round trip %q: line %d became %q", lines, i, got[i])
			}
		}
	}
}

func TestWriteCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := protocol.Command{Line: "sendfile name=\"t\" length=0x4", Payload: []byte{1, 2, 3, 4}}
	if err := WriteCommand(&buf, cmd); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}
	want := "sendfile name=\"t\" length=0x4\r\n\x01\x02\x03\x04"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteCommandRejectsInvalid(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCommand(&buf, protocol.Command{Line: "bad\r\ncmd"})
	if !errors.Is(err, protocol.ErrIllegalByte) {
		t.Fatalf("got %v, want ErrIllegalByte", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("invalid command reached the wire: %q", buf.String())
	}
}
