package bridge

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docbrown/xbdm/internal/console"
	"github.com/docbrown/xbdm/internal/discovery"
	"github.com/docbrown/xbdm/internal/protocol"
)

var (
	ErrConsoleRequired    = errors.New("bridge: console target required")
	ErrNotifyStreamClosed = errors.New("bridge: notification stream closed")
)

// Config configures one bridge process: which console it fronts, where
// it listens, and how the underlying session behaves.
type Config struct {
	Name          string
	ListenAddr    string
	Console       string // debug name, IP, or host:port of the monitor
	CorsOrigins   []string
	AuthToken     string // guards POST /command when set
	NotifyRing    int
	ProbeInterval time.Duration
	Session       console.Config
}

// Service supervises one console session and serves it over HTTP. The
// session reconnects on its own; HTTP callers between connects get a
// 503 and retry.
type Service struct {
	cfg      Config
	resolver *discovery.Resolver
	ring     *notifyRing

	mu          sync.RWMutex
	session     *console.Session
	addr        string
	connectedAt time.Time
}

// NewService validates config and applies runtime defaults.
func NewService(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.Console) == "" {
		return nil, ErrConsoleRequired
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "xbdm-bridge"
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = ":9710"
	}
	if cfg.NotifyRing <= 0 {
		cfg.NotifyRing = 256
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 5 * time.Second
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Service{
		cfg:      cfg,
		resolver: discovery.NewResolver(discovery.Config{}),
		ring:     newNotifyRing(cfg.NotifyRing),
	}, nil
}

// Run blocks until a process signal or a fatal serve error.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.serve(ctx)
}

// serve owns the two long-lived halves: the HTTP listener and the
// console session supervisor.
func (s *Service) serve(ctx context.Context) error {
	defer s.clearSession()

	srv := NewServer(s.cfg.Name, s.cfg.CorsOrigins, s)

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- srv.Run(ctx, s.cfg.ListenAddr)
	}()
	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- s.runSessionLoop(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("name", s.cfg.Name).Msg("bridge shutdown")
			return <-httpErr
		case err := <-httpErr:
			// nil only after a graceful shutdown, which means ctx is done.
			return err
		case err := <-sessionErr:
			if err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}

// runSessionLoop keeps one live console session, reconnecting with
// backoff. The target resolves on every attempt, so a console that
// rebooted onto a new address is found again.
func (s *Service) runSessionLoop(ctx context.Context) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sess, addr, err := s.connectConsole(ctx)
		if err != nil {
			if errors.Is(err, console.ErrAddressRequired) {
				return err
			}
			attempt++
			log.Warn().
				Int("attempt", attempt).
				Str("console", s.cfg.Console).
				Err(err).
				Msg("console connect failed")
			if err := s.waitReconnectBackoff(ctx, attempt); err != nil {
				return nil
			}
			continue
		}
		attempt = 0
		s.setSession(sess, addr)
		log.Info().
			Str("console", s.cfg.Console).
			Str("addr", addr).
			Str("greeting", sess.Greeting().String()).
			Msg("console connected")

		err = s.watchSession(ctx, sess)
		s.clearSessionIf(sess)
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("console session lost")
		}
	}
}

// connectConsole resolves the configured target and dials it.
func (s *Service) connectConsole(ctx context.Context) (*console.Session, string, error) {
	resolveCtx, cancel := context.WithTimeout(ctx, s.cfg.Session.ConnectTimeout)
	addr, err := s.resolver.ResolveAddr(resolveCtx, s.cfg.Console)
	cancel()
	if err != nil {
		return nil, "", err
	}
	sess, err := console.Connect(ctx, addr, s.cfg.Session)
	if err != nil {
		return nil, "", err
	}
	return sess, addr, nil
}

// watchSession blocks while the session stays healthy. With
// notifications on, the push stream feeds the ring and its close is
// the death signal; either way the engine is checked on a timer, since
// a command failure latches it broken without touching the stream.
func (s *Service) watchSession(ctx context.Context, sess *console.Session) error {
	sub, err := sess.Subscribe()
	if errors.Is(err, console.ErrNotifyDisabled) {
		return s.probeSession(ctx, sess)
	}
	if err != nil {
		return err
	}
	defer sub.Cancel()

	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-sub.C:
			if !ok {
				return ErrNotifyStreamClosed
			}
			s.ring.record(n)
		case <-ticker.C:
			if !sess.Usable() {
				return fmt.Errorf("bridge: session unusable, engine %s", sess.State())
			}
		}
	}
}

// probeSession is the liveness fallback when notifications are off: a
// cheap command on a timer. ErrBusy means an HTTP caller owns the
// engine right now, which is proof of life enough.
func (s *Service) probeSession(ctx context.Context, sess *console.Session) error {
	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, err := sess.Execute(ctx, protocol.Command{Line: "systime"})
			if err != nil && !errors.Is(err, console.ErrBusy) {
				return err
			}
		}
	}
}

// waitReconnectBackoff sleeps out the dial retry delay without jitter.
func (s *Service) waitReconnectBackoff(ctx context.Context, attempt int) error {
	backoffCfg := s.cfg.Session.Backoff
	backoffCfg.Jitter = false
	delay := console.NextBackoffDelay(backoffCfg, attempt, nil)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// setSession swaps in a fresh session, closing any predecessor.
func (s *Service) setSession(sess *console.Session, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && s.session != sess {
		_ = s.session.Close()
	}
	s.session = sess
	s.addr = addr
	s.connectedAt = time.Now()
}

// clearSession closes and clears whatever session is active.
func (s *Service) clearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		_ = s.session.Close()
		s.session = nil
	}
}

// clearSessionIf clears only the given session, so a supervisor
// holding a stale pointer cannot tear down its replacement.
func (s *Service) clearSessionIf(target *console.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != target {
		return
	}
	_ = s.session.Close()
	s.session = nil
}

// Session returns the live session, or nil between connects.
func (s *Service) Session() *console.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// ConsoleStatus is a point-in-time view of the bridged console link.
type ConsoleStatus struct {
	Target        string
	Addr          string
	Connected     bool
	State         string
	Greeting      string
	ConnectedFor  time.Duration
	Notifications uint64
}

// Status snapshots the console link for the HTTP surface.
func (s *Service) Status() ConsoleStatus {
	s.mu.RLock()
	sess := s.session
	addr := s.addr
	connectedAt := s.connectedAt
	s.mu.RUnlock()

	st := ConsoleStatus{
		Target:        s.cfg.Console,
		Addr:          addr,
		Notifications: s.ring.Total(),
	}
	if sess == nil {
		return st
	}
	st.Connected = sess.Usable()
	st.State = sess.State()
	st.Greeting = sess.Greeting().String()
	st.ConnectedFor = time.Since(connectedAt)
	return st
}

// Notifications returns the newest retained records, oldest first.
func (s *Service) Notifications(limit int) []NotificationRecord {
	return s.ring.Recent(limit)
}

// NotificationTotal reports how many notifications were ever recorded.
func (s *Service) NotificationTotal() uint64 {
	return s.ring.Total()
}
