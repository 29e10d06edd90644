package console

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docbrown/xbdm/internal/protocol"
)

// Session is one live console connection pair: a control stream
// running commands and, unless disabled, a dedicated notification
// stream feeding subscribers. The two streams share nothing but the
// session lifecycle.
type Session struct {
	cfg      Config
	addr     string
	control  *Transport
	engine   *Engine
	listener *Listener
	greeting protocol.Status

	closeOnce sync.Once
	closeErr  error
}

// Connect dials the console at addr ("ip:port"), consumes the
// connected greeting, and brings up the notification channel over a
// second connection. Dial failures retry with backoff up to
// MaxConnectAttempts; handshake rejections do not retry.
func Connect(ctx context.Context, addr string, cfg Config) (*Session, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.WithDefaults()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var attempt int
	for {
		attempt++
		s, err := connectOnce(ctx, addr, cfg)
		if err == nil {
			return s, nil
		}
		if errors.Is(err, ErrHandshake) || !shouldRetry(cfg, attempt) {
			return nil, err
		}
		log.Warn().Str("addr", addr).Int("attempt", attempt).Err(err).Msg("console dial failed, retrying")
		if err := sleepBackoff(ctx, cfg.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
}

func connectOnce(ctx context.Context, addr string, cfg Config) (*Session, error) {
	control, greeting, err := dialControl(ctx, addr, cfg)
	if err != nil {
		return nil, err
	}
	s := &Session{
		cfg:      cfg,
		addr:     addr,
		control:  control,
		engine:   NewEngine(control),
		greeting: greeting,
	}
	if !cfg.DisableNotifications {
		lst, err := dialNotify(ctx, addr, cfg)
		if err != nil {
			_ = control.Close()
			return nil, err
		}
		s.listener = lst
		go lst.run()
	}
	log.Info().Str("addr", addr).Str("greeting", greeting.String()).Msg("console session established")
	return s, nil
}

// dialControl opens the command stream and consumes the greeting every
// fresh connection starts with.
func dialControl(ctx context.Context, addr string, cfg Config) (*Transport, protocol.Status, error) {
	tr, err := Dial(ctx, addr, cfg)
	if err != nil {
		return nil, protocol.Status{}, err
	}
	greeting, err := expectGreeting(tr, cfg)
	if err != nil {
		_ = tr.Close()
		return nil, protocol.Status{}, err
	}
	return tr, greeting, nil
}

// dialNotify opens the second stream and dedicates it to push
// traffic: greeting, then the notify command, then the dedicated
// acknowledgement.
func dialNotify(ctx context.Context, addr string, cfg Config) (*Listener, error) {
	tr, err := Dial(ctx, addr, cfg)
	if err != nil {
		return nil, err
	}
	if err := dedicate(tr, cfg); err != nil {
		_ = tr.Close()
		return nil, err
	}
	return newListener(tr, cfg.NotifyBuffer), nil
}

func expectGreeting(tr *Transport, cfg Config) (protocol.Status, error) {
	_ = tr.setDeadline(time.Now().Add(cfg.HandshakeTimeout))
	st, err := tr.fr.ReadStatus()
	if err != nil {
		return protocol.Status{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if st.Code != protocol.StatusConnected {
		return protocol.Status{}, fmt.Errorf("%w: unexpected greeting %s", ErrHandshake, st)
	}
	_ = tr.setDeadline(time.Time{})
	return st, nil
}

func dedicate(tr *Transport, cfg Config) error {
	if _, err := expectGreeting(tr, cfg); err != nil {
		return err
	}
	_ = tr.setDeadline(time.Now().Add(cfg.HandshakeTimeout))
	if _, err := tr.conn.Write([]byte("notify\r\n")); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	st, err := tr.fr.ReadStatus()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if st.Code != protocol.StatusDedicated {
		return fmt.Errorf("%w: notify refused: %s", ErrHandshake, st)
	}
	_ = tr.setDeadline(time.Time{})
	return nil
}

func shouldRetry(cfg Config, attempt int) bool {
	if cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < cfg.MaxConnectAttempts
}

func sleepBackoff(ctx context.Context, cfg BackoffConfig, attempt int, rng *rand.Rand) error {
	timer := time.NewTimer(NextBackoffDelay(cfg, attempt, rng))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs one command on the control stream.
func (s *Session) Execute(ctx context.Context, cmd protocol.Command) (*Response, error) {
	return s.engine.Execute(ctx, cmd)
}

// Greeting returns the banner status captured at connect.
func (s *Session) Greeting() protocol.Status {
	return s.greeting
}

// Addr returns the endpoint this session dialed.
func (s *Session) Addr() string {
	return s.addr
}

// State reports the transaction engine state for diagnostics.
func (s *Session) State() string {
	return s.engine.State()
}

// Usable reports whether the session can still take commands.
func (s *Session) Usable() bool {
	st := engineState(s.engine.state.Load())
	return st != stateBroken && st != stateClosed
}

// Subscribe attaches an observer to the notification stream.
func (s *Session) Subscribe() (*Subscription, error) {
	if s.listener == nil {
		return nil, ErrNotifyDisabled
	}
	return s.listener.Subscribe(), nil
}

// Close tears down both streams and stops the listener. Safe to call
// twice; an in-flight command fails through its transport.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.engine.close()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.closeErr = s.control.Close()
		log.Debug().Str("addr", s.addr).Msg("console session closed")
	})
	return s.closeErr
}
