package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docbrown/xbdm/internal/console"
	"github.com/docbrown/xbdm/internal/protocol"
	"github.com/docbrown/xbdm/internal/testutil/fakeconsole"
	"github.com/docbrown/xbdm/internal/testutil/testlog"
)

func testSessionConfig() console.Config {
	return console.Config{
		ConnectTimeout:       2 * time.Second,
		HandshakeTimeout:     2 * time.Second,
		ReadTimeout:          2 * time.Second,
		WriteTimeout:         2 * time.Second,
		MaxConnectAttempts:   1,
		NotifyBuffer:         8,
		DisableNotifications: true,
		Backoff: console.BackoffConfig{
			InitialDelay: 10 * time.Millisecond,
			Multiplier:   1.5,
			MaxDelay:     50 * time.Millisecond,
		},
	}
}

func bridgeHandler(c *fakeconsole.Conn, line string) {
	switch line {
	case "systime":
		c.WriteLine("200- high=0x1d4 low=0xbeef")
	case "drivelist":
		c.WriteLine("202- multiline response follows")
		c.WriteBlock("HDD", "DVD")
	case "screenshot":
		c.WriteLine("203- binary response follows length=0x4")
		c.WriteRaw([]byte{0xde, 0xad, 0xbe, 0xef})
	case "break":
		c.WriteLine("zzz not a status line")
	default:
		c.WriteLine("402- api not supported")
	}
}

// newTestServer wires a Server to a Service holding a live session
// against a scripted monitor, bypassing the supervisor loop.
func newTestServer(t *testing.T) (*Server, *Service) {
	t.Helper()
	fc := fakeconsole.Start(t, fakeconsole.Config{Handler: bridgeHandler})

	svc, err := NewService(Config{Console: fc.Addr(), Session: testSessionConfig()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sess, err := console.Connect(ctx, fc.Addr(), svc.cfg.Session)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	svc.setSession(sess, fc.Addr())
	t.Cleanup(svc.clearSession)
	return NewServer("bridge-test", nil, svc), svc
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func decodeCommand(t *testing.T, rr *httptest.ResponseRecorder) commandResponse {
	t.Helper()
	var out commandResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealthRoute(t *testing.T) {
	testlog.Start(t)
	srv, _ := newTestServer(t)

	rr := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "bridge-test" {
		t.Fatalf("unexpected body: %#v", body)
	}
}

func TestReadyReflectsConsole(t *testing.T) {
	testlog.Start(t)
	srv, svc := newTestServer(t)

	rr := doJSON(t, srv, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("connected ready status %d", rr.Code)
	}

	svc.clearSession()
	rr = doJSON(t, srv, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("disconnected ready status %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ready"] != false {
		t.Fatalf("unexpected body: %#v", body)
	}
}

func TestCommandSimpleStatus(t *testing.T) {
	testlog.Start(t)
	srv, _ := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/command", commandRequest{Line: "systime"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
	}
	out := decodeCommand(t, rr)
	if out.Code != 200 || !out.Success {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Message != "high=0x1d4 low=0xbeef" {
		t.Fatalf("message %q", out.Message)
	}
}

func TestCommandMultiline(t *testing.T) {
	testlog.Start(t)
	srv, _ := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/command", commandRequest{Line: "drivelist"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
	}
	out := decodeCommand(t, rr)
	if out.Code != 202 || len(out.Lines) != 2 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Lines[0] != "HDD" || out.Lines[1] != "DVD" {
		t.Fatalf("lines %v", out.Lines)
	}
}

func TestCommandBinary(t *testing.T) {
	testlog.Start(t)
	srv, _ := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/command", commandRequest{Line: "screenshot"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
	}
	out := decodeCommand(t, rr)
	if out.Code != 203 {
		t.Fatalf("code %d", out.Code)
	}
	if !bytes.Equal(out.Data, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("payload % x", out.Data)
	}
}

func TestCommandErrorStatusIsData(t *testing.T) {
	testlog.Start(t)
	srv, _ := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/command", commandRequest{Line: "whoami"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
	}
	out := decodeCommand(t, rr)
	if out.Code != 402 || out.Success {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestCommandValidationRejected(t *testing.T) {
	testlog.Start(t)
	srv, _ := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/command", commandRequest{Line: ""})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty line status %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/command", bytes.NewReader([]byte("{")))
	rr = httptest.NewRecorder()
	srv.HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json status %d", rr.Code)
	}
}

func TestCommandWithoutSession(t *testing.T) {
	testlog.Start(t)
	svc, err := NewService(Config{Console: "127.0.0.1:730", Session: testSessionConfig()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	srv := NewServer("bridge-test", nil, svc)

	rr := doJSON(t, srv, http.MethodPost, "/command", commandRequest{Line: "systime"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCommandBrokenSession(t *testing.T) {
	testlog.Start(t)
	srv, _ := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/command", commandRequest{Line: "break"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("malformed frame status %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodPost, "/command", commandRequest{Line: "systime"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("broken session status %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestNotificationsRoute(t *testing.T) {
	testlog.Start(t)
	srv, svc := newTestServer(t)
	svc.ring.record(statusNotification(200, "one"))
	svc.ring.record(statusNotification(200, "two"))
	svc.ring.record(statusNotification(200, "three"))

	rr := doJSON(t, srv, http.MethodGet, "/notifications?limit=2", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var body struct {
		Notifications []NotificationRecord `json:"notifications"`
		Total         uint64               `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Notifications) != 2 || body.Total != 3 {
		t.Fatalf("got %d records total=%d", len(body.Notifications), body.Total)
	}
	if body.Notifications[0].Message != "two" {
		t.Fatalf("window starts at %q, want two", body.Notifications[0].Message)
	}
}

func TestConsoleRoute(t *testing.T) {
	testlog.Start(t)
	srv, svc := newTestServer(t)

	rr := doJSON(t, srv, http.MethodGet, "/console", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["target"] != svc.cfg.Console {
		t.Fatalf("target %v, want %v", body["target"], svc.cfg.Console)
	}
	if body["connected"] != true || body["state"] != "idle" {
		t.Fatalf("unexpected body: %#v", body)
	}
}

func TestCommandAuthGate(t *testing.T) {
	testlog.Start(t)
	fc := fakeconsole.Start(t, fakeconsole.Config{Handler: bridgeHandler})

	svc, err := NewService(Config{Console: fc.Addr(), AuthToken: "hunter2", Session: testSessionConfig()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sess, err := console.Connect(ctx, fc.Addr(), svc.cfg.Session)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	svc.setSession(sess, fc.Addr())
	t.Cleanup(svc.clearSession)
	srv := NewServer("bridge-test", nil, svc)

	post := func(header string) *httptest.ResponseRecorder {
		b, err := json.Marshal(commandRequest{Line: "systime"})
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/command", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		srv.HTTPRouter().ServeHTTP(rr, req)
		return rr
	}

	if rr := post(""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status %d", rr.Code)
	}
	if rr := post("Bearer wrong"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status %d", rr.Code)
	}
	if rr := post("Bearer hunter2"); rr.Code != http.StatusOK {
		t.Fatalf("good token status %d body=%s", rr.Code, rr.Body.String())
	}

	// the gate covers commands only
	if rr := doJSON(t, srv, http.MethodGet, "/health", nil); rr.Code != http.StatusOK {
		t.Fatalf("health behind gate status %d", rr.Code)
	}
}

func TestCommandErrorStatusMapping(t *testing.T) {
	testlog.Start(t)
	if got := commandErrorStatus(protocol.ErrEmptyCommand); got != http.StatusBadRequest {
		t.Fatalf("empty command -> %d", got)
	}
	if got := commandErrorStatus(console.ErrBusy); got != http.StatusConflict {
		t.Fatalf("busy -> %d", got)
	}
	if got := commandErrorStatus(console.ErrSessionBroken); got != http.StatusServiceUnavailable {
		t.Fatalf("broken -> %d", got)
	}
	if got := commandErrorStatus(io.ErrUnexpectedEOF); got != http.StatusBadGateway {
		t.Fatalf("wire error -> %d", got)
	}
}
