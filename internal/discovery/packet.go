package discovery

import (
	"errors"
	"fmt"

	"github.com/docbrown/xbdm/internal/protocol"
)

// Advertisement packet types. Every datagram starts with a type byte
// and a name length byte; the name bytes follow.
const (
	packetNameQuery = 0x01
	packetReply     = 0x02
	packetWildcard  = 0x03
)

// maxPacketLength bounds any advertisement datagram.
const maxPacketLength = protocol.MaxNameLength + 2

var (
	ErrBadName        = errors.New("discovery: invalid console name")
	ErrMalformedReply = errors.New("discovery: malformed reply packet")
)

// AppendWildcardQuery appends a query that every listening console
// answers.
func AppendWildcardQuery(dst []byte) []byte {
	return append(dst, packetWildcard, 0x00)
}

// AppendNameQuery appends a query that only consoles carrying the
// given debug name answer.
func AppendNameQuery(dst []byte, name string) ([]byte, error) {
	if len(name) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrBadName)
	}
	if len(name) > protocol.MaxNameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadName, len(name))
	}
	dst = append(dst, packetNameQuery, byte(len(name)))
	return append(dst, name...), nil
}

// ParseReply extracts the debug name from a reply datagram. Datagrams
// of any other type, with an empty name, or shorter than their own
// length byte claims are rejected. Bytes past the claimed length are
// ignored.
func ParseReply(pkt []byte) (string, error) {
	if len(pkt) < 3 || pkt[0] != packetReply {
		return "", fmt.Errorf("%w: not a reply", ErrMalformedReply)
	}
	n := int(pkt[1])
	if n == 0 {
		return "", fmt.Errorf("%w: empty name", ErrMalformedReply)
	}
	if len(pkt) < 2+n {
		return "", fmt.Errorf("%w: name truncated", ErrMalformedReply)
	}
	return string(pkt[2 : 2+n]), nil
}
