package discovery

import (
	"context"
	"errors"
	"net"
	"time"
)

// maxReplies bounds one collection window.
const maxReplies = 256

// BroadcastQuerier sends advertisement queries over UDP from an
// ephemeral port and collects replies until the window closes. The
// zero value is ready to use.
type BroadcastQuerier struct {
	Window time.Duration // reply window, default DefaultWindow
}

// Query transmits packet to each target and returns every datagram
// that arrived before the window closed. A context deadline earlier
// than the window cuts the window short.
func (q *BroadcastQuerier) Query(ctx context.Context, packet []byte, targets []string) ([]Reply, error) {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := setBroadcast(conn); err != nil {
		return nil, err
	}

	for _, target := range targets {
		addr, err := net.ResolveUDPAddr("udp4", target)
		if err != nil {
			return nil, err
		}
		if _, err := conn.WriteToUDP(packet, addr); err != nil {
			return nil, err
		}
	}

	window := q.Window
	if window <= 0 {
		window = DefaultWindow
	}
	deadline := time.Now().Add(window)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	var replies []Reply
	buf := make([]byte, maxPacketLength)
	for len(replies) < maxReplies {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				break
			}
			return nil, err
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		replies = append(replies, Reply{From: *from, Data: data})
	}
	return replies, nil
}
