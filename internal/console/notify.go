package console

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/docbrown/xbdm/internal/observability"
	"github.com/docbrown/xbdm/internal/protocol"
	"github.com/docbrown/xbdm/internal/protocol/wire"
)

// Notification is one push frame from the monitor. Err is set instead
// of Status/Lines when a frame could not be decoded; the stream itself
// continues.
type Notification struct {
	Status protocol.Status
	Lines  []string
	Err    error
}

// Subscription receives notifications in arrival order. C closes when
// the listener shuts down; that close is the final channel-closed
// signal.
type Subscription struct {
	C <-chan Notification

	l       *Listener
	ch      chan Notification
	dropped atomic.Uint64
}

// Dropped counts notifications this subscriber lost to a full buffer.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Cancel detaches the subscription and closes C. Safe to call twice.
func (s *Subscription) Cancel() {
	s.l.cancel(s)
}

// Listener owns the notification transport. It decodes frames
// continuously, with no correlation to in-flight commands, and fans
// them out to subscribers without ever blocking its read loop: a slow
// subscriber loses notifications rather than stalling the stream.
type Listener struct {
	tr     *Transport
	buffer int

	mu     sync.Mutex
	subs   []*Subscription
	closed bool

	done chan struct{}
}

func newListener(tr *Transport, buffer int) *Listener {
	return &Listener{tr: tr, buffer: buffer, done: make(chan struct{})}
}

// Subscribe registers an observer. Dispatch follows registration
// order. After shutdown the returned subscription starts closed.
func (l *Listener) Subscribe() *Subscription {
	sub := &Subscription{l: l, ch: make(chan Notification, l.buffer)}
	sub.C = sub.ch
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		close(sub.ch)
		return sub
	}
	l.subs = append(l.subs, sub)
	return sub
}

// Close stops the read loop and waits for it to finish shutting down.
func (l *Listener) Close() error {
	err := l.tr.Close()
	<-l.done
	return err
}

func (l *Listener) cancel(sub *Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.subs {
		if s == sub {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// run decodes frames until the transport dies. Malformed frames are
// reported as delivery errors and skipped: the line decoder leaves the
// stream at a line boundary, so scanning resumes at the next frame.
// Losing single notifications is acceptable here; losing the control
// stream is not, and nothing in this loop touches it.
func (l *Listener) run() {
	defer l.shutdown()
	_ = l.tr.clearReadDeadline()
	for {
		st, err := l.tr.fr.ReadStatus()
		if err != nil {
			if !recoverable(err) {
				return
			}
			l.deliveryError(err)
			continue
		}
		n := Notification{Status: st}
		switch st.Code.Body() {
		case protocol.BodyMultiline:
			n.Lines, err = l.tr.fr.ReadBlock()
		case protocol.BodyBinary:
			err = l.skipBinary(st)
		}
		if err != nil {
			if !recoverable(err) {
				l.dispatch(Notification{Err: err})
				return
			}
			l.deliveryError(err)
			continue
		}
		observability.RecordNotification(int(st.Code))
		l.dispatch(n)
	}
}

// skipBinary drains a binary frame that has no business on the push
// channel. A declared length lets the payload be discarded exactly;
// without one the line scanner has to chew through the raw bytes.
func (l *Listener) skipBinary(st protocol.Status) error {
	if sz, ok := st.IntField("length"); ok && sz >= 0 {
		if _, err := l.tr.fr.ReadBinary(sz); err != nil {
			return err
		}
		return fmt.Errorf("%w: unsolicited binary frame, %d bytes skipped", protocol.ErrMalformedFrame, sz)
	}
	return fmt.Errorf("%w: unsolicited binary frame without a length", protocol.ErrMalformedFrame)
}

func (l *Listener) deliveryError(err error) {
	observability.RecordNotifyResync()
	log.Warn().Err(err).Msg("notification frame malformed, resyncing")
	l.dispatch(Notification{Err: err})
}

// dispatch offers n to every subscriber without blocking. Full buffers
// drop.
func (l *Listener) dispatch(n Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, sub := range l.subs {
		select {
		case sub.ch <- n:
		default:
			sub.dropped.Add(1)
			observability.RecordNotifyDrop()
		}
	}
}

func (l *Listener) shutdown() {
	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	l.closed = true
	l.mu.Unlock()
	for _, sub := range subs {
		close(sub.ch)
	}
	_ = l.tr.Close()
	close(l.done)
	log.Debug().Msg("notification listener stopped")
}

// recoverable separates bad frames, which the loop skips, from dead
// streams, which end it.
func recoverable(err error) bool {
	return errors.Is(err, protocol.ErrMalformedFrame) ||
		errors.Is(err, wire.ErrLineTooLong) ||
		errors.Is(err, wire.ErrBlockTooLarge) ||
		errors.Is(err, wire.ErrBinaryTooLarge)
}
