package console

import (
	"errors"
	"fmt"

	"github.com/docbrown/xbdm/internal/protocol"
)

var (
	ErrAddressRequired = errors.New("console: address required")
	ErrConnect         = errors.New("console: connect failed")
	ErrHandshake       = errors.New("console: handshake failed")
	ErrTransportClosed = errors.New("console: transport closed")
	ErrBusy            = errors.New("console: command already in flight")
	ErrSessionBroken   = errors.New("console: session broken, reconnect required")
	ErrSessionClosed   = errors.New("console: session closed")
	ErrNotifyDisabled  = errors.New("console: notifications disabled")
)

// StatusError carries an error-class monitor status for callers that
// want command failure as an error value. Execute itself never returns
// one; see Response.Err.
type StatusError struct {
	Status protocol.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("console: command failed: %s", e.Status)
}
