package discovery

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestAppendWildcardQuery(t *testing.T) {
	got := AppendWildcardQuery(nil)
	if !bytes.Equal(got, []byte{0x03, 0x00}) {
		t.Fatalf("got %v", got)
	}
}

func TestAppendNameQuery(t *testing.T) {
	got, err := AppendNameQuery(nil, "XDK1")
	if err != nil {
		t.Fatalf("AppendNameQuery: %v", err)
	}
	want := []byte{0x01, 0x04, 'X', 'D', 'K', '1'}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	max := strings.Repeat("b", 255)
	got, err = AppendNameQuery(nil, max)
	if err != nil {
		t.Fatalf("max-length name: %v", err)
	}
	if got[1] != 0xff || len(got) != 257 {
		t.Fatalf("max-length name encoded as %d bytes, len byte %#x", len(got), got[1])
	}
}

func TestAppendNameQueryRejects(t *testing.T) {
	if _, err := AppendNameQuery(nil, ""); !errors.Is(err, ErrBadName) {
		t.Fatalf("empty name: got %v, want ErrBadName", err)
	}
	if _, err := AppendNameQuery(nil, strings.Repeat("a", 256)); !errors.Is(err, ErrBadName) {
		t.Fatalf("oversized name: got %v, want ErrBadName", err)
	}
}

func TestParseReply(t *testing.T) {
	name, err := ParseReply([]byte{0x02, 0x04, 'X', 'D', 'K', '1'})
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}
	if name != "XDK1" {
		t.Fatalf("got %q, want XDK1", name)
	}
}

func TestParseReplyTrailingBytes(t *testing.T) {
	name, err := ParseReply([]byte{0x02, 0x01, 'A', 0xff, 0xff})
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}
	if name != "A" {
		t.Fatalf("got %q, want A", name)
	}
}

func TestParseReplyRejects(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x02},
		{0x02, 0x01},
		{0x01, 0x01, 'A'},
		{0x03, 0x01, 'A'},
		{0x02, 0x00, 'A'},
		{0x02, 0x05, 'A', 'B'},
	}
	for _, pkt := range cases {
		if _, err := ParseReply(pkt); !errors.Is(err, ErrMalformedReply) {
			t.Fatalf("%v: got %v, want ErrMalformedReply", pkt, err)
		}
	}
}
