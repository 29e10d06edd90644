// Package fakeconsole runs a scripted debug monitor on a loopback
// listener. Tests that need a live TCP peer speak to it exactly as
// they would to a devkit: greeting on connect, then command lines in,
// scripted frames out.
package fakeconsole

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/docbrown/xbdm/internal/protocol/wire"
)

// Handler reacts to one received command line on one connection.
type Handler func(c *Conn, line string)

type Config struct {
	Greeting string // default "201- connected"
	Handler  Handler
}

// Monitor is the loopback stand-in for a console's debug monitor.
type Monitor struct {
	t  *testing.T
	ln net.Listener

	cfg Config

	mu    sync.Mutex
	conns []net.Conn
}

// Start launches the monitor and wires its shutdown into t.Cleanup.
func Start(t *testing.T, cfg Config) *Monitor {
	t.Helper()
	if cfg.Greeting == "" {
		cfg.Greeting = "201- connected"
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fakeconsole: listen: %v", err)
	}
	m := &Monitor{t: t, ln: ln, cfg: cfg}
	go m.acceptLoop()
	t.Cleanup(m.Close)
	return m
}

func (m *Monitor) Addr() string {
	return m.ln.Addr().String()
}

// Close stops accepting and drops every live connection.
func (m *Monitor) Close() {
	_ = m.ln.Close()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conn := range m.conns {
		_ = conn.Close()
	}
	m.conns = nil
}

func (m *Monitor) acceptLoop() {
	for {
		conn, err := m.ln.Accept()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.conns = append(m.conns, conn)
		m.mu.Unlock()
		go m.serve(conn)
	}
}

func (m *Monitor) serve(conn net.Conn) {
	c := &Conn{conn: conn, r: bufio.NewReader(conn)}
	if err := c.WriteLine(m.cfg.Greeting); err != nil {
		return
	}
	for {
		line, err := c.ReadLine()
		if err != nil {
			return
		}
		if m.cfg.Handler != nil {
			m.cfg.Handler(c, line)
		}
	}
}

// Conn is one monitor-side connection. Handlers script responses
// through it; tests that captured it push notification frames the
// same way.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
}

// ReadLine returns the next CRLF-terminated line without terminator.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadPayload consumes exactly n upload bytes following a command
// line.
func (c *Conn) ReadPayload(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteLine sends one line with the wire terminator.
func (c *Conn) WriteLine(line string) error {
	_, err := c.conn.Write([]byte(line + "\r\n"))
	return err
}

// WriteBlock sends a multiline body with escaping and terminator.
func (c *Conn) WriteBlock(lines ...string) error {
	return wire.WriteBlock(c.conn, lines)
}

// WriteRaw sends bytes verbatim.
func (c *Conn) WriteRaw(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

// Close drops the connection, mid-frame if a frame is open.
func (c *Conn) Close() error {
	return c.conn.Close()
}
