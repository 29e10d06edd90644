package console

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docbrown/xbdm/internal/observability"
	"github.com/docbrown/xbdm/internal/protocol"
)

// engineState tracks the one-command-at-a-time discipline.
type engineState int32

const (
	stateIdle engineState = iota
	stateSending
	stateAwaitingStatus
	stateAwaitingBody
	stateAwaitingBinary
	stateBroken
	stateClosed
)

func (s engineState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSending:
		return "sending"
	case stateAwaitingStatus:
		return "awaiting_status"
	case stateAwaitingBody:
		return "awaiting_body"
	case stateAwaitingBinary:
		return "awaiting_binary"
	case stateBroken:
		return "broken"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// Engine runs the request/response half of a session: one command in
// flight, strict frame order, a broken latch once framing is lost.
type Engine struct {
	tr    *Transport
	state atomic.Int32
}

func NewEngine(tr *Transport) *Engine {
	return &Engine{tr: tr}
}

// Response is one command's full outcome. Error-class statuses land
// here as data, not as Go errors: the monitor answered, the answer was
// no. See Response.Err for the error-value view.
type Response struct {
	Status protocol.Status
	Lines  []string // multiline body, nil otherwise
	Data   []byte   // binary body, nil otherwise
}

// Err folds an error-class status into an error value.
func (r *Response) Err() error {
	if r.Status.Code.IsError() {
		return &StatusError{Status: r.Status}
	}
	return nil
}

// Execute sends one command and reads its complete response. A call
// while another is in flight fails with ErrBusy; the engine never
// queues. Any transport or framing failure latches the engine broken,
// because once frame order is lost nothing on the same stream can be
// retried safely.
func (e *Engine) Execute(ctx context.Context, cmd protocol.Command) (*Response, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if !e.state.CompareAndSwap(int32(stateIdle), int32(stateSending)) {
		switch engineState(e.state.Load()) {
		case stateBroken:
			return nil, ErrSessionBroken
		case stateClosed:
			return nil, ErrSessionClosed
		default:
			return nil, ErrBusy
		}
	}

	start := time.Now()
	resp, err := e.run(ctx, cmd)
	if err != nil {
		if errors.Is(err, ErrTransportClosed) {
			e.state.Store(int32(stateClosed))
		} else {
			// the stream is desynced, so it goes down with the engine
			e.state.Store(int32(stateBroken))
			_ = e.tr.Close()
		}
		observability.RecordCommand(cmd.Verb(), 0, time.Since(start), false)
		log.Warn().Str("verb", cmd.Verb()).Err(err).Msg("command failed, session unusable")
		return nil, err
	}
	e.state.Store(int32(stateIdle))
	observability.RecordCommand(cmd.Verb(), int(resp.Status.Code), time.Since(start), resp.Status.Code.IsSuccess())
	log.Debug().
		Str("verb", cmd.Verb()).
		Str("status", resp.Status.Code.String()).
		Dur("duration", time.Since(start)).
		Msg("command executed")
	return resp, nil
}

// State reports the engine state for diagnostics.
func (e *Engine) State() string {
	return engineState(e.state.Load()).String()
}

// close latches the engine so later Execute calls fail fast. In-flight
// commands fail through the transport instead.
func (e *Engine) close() {
	e.state.Store(int32(stateClosed))
}

func (e *Engine) run(ctx context.Context, cmd protocol.Command) (*Response, error) {
	if err := e.tr.Send(ctx, cmd.AppendWire(nil)); err != nil {
		return nil, err
	}
	e.state.Store(int32(stateAwaitingStatus))
	if err := e.tr.setReadDeadline(ctx); err != nil {
		return nil, err
	}
	st, err := e.tr.fr.ReadStatus()
	if err != nil {
		return nil, err
	}
	resp := &Response{Status: st}
	switch st.Code.Body() {
	case protocol.BodyMultiline:
		e.state.Store(int32(stateAwaitingBody))
		resp.Lines, err = e.tr.fr.ReadBlock()
	case protocol.BodyBinary:
		e.state.Store(int32(stateAwaitingBinary))
		var n int64
		n, err = binaryLength(cmd, st)
		if err == nil {
			resp.Data, err = e.tr.fr.ReadBinary(n)
		}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// binaryLength decides how many raw bytes follow a binary status: the
// caller's declared size wins, else the status line's length field.
func binaryLength(cmd protocol.Command, st protocol.Status) (int64, error) {
	if cmd.BinarySize > 0 {
		return cmd.BinarySize, nil
	}
	if n, ok := st.IntField("length"); ok && n >= 0 {
		return n, nil
	}
	return 0, fmt.Errorf("%w: binary response without a declared length", protocol.ErrMalformedFrame)
}
