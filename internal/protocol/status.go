package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Port360 is the TCP/UDP port of the Xbox 360 debug monitor.
	Port360 = 730
	// PortClassic is the TCP/UDP port of the classic Xbox debug monitor.
	PortClassic = 731

	// MaxNameLength bounds an Xbox debug name on the wire.
	MaxNameLength = 255
)

// statusSeparator follows the three code digits on every response line.
const statusSeparator = '-'

var ErrMalformedFrame = errors.New("protocol: malformed frame")

// StatusCode is the 3-digit numeric code opening every monitor response.
type StatusCode uint16

const (
	StatusOK                  StatusCode = 200
	StatusConnected           StatusCode = 201
	StatusMultilineFollows    StatusCode = 202
	StatusBinaryFollows       StatusCode = 203
	StatusSendBinary          StatusCode = 204
	StatusDedicated           StatusCode = 205
	StatusUnexpectedError     StatusCode = 400
	StatusMaxConnections      StatusCode = 401
	StatusFileNotFound        StatusCode = 402
	StatusNoSuchModule        StatusCode = 403
	StatusMemoryNotMapped     StatusCode = 404
	StatusNoSuchThread        StatusCode = 405
	StatusClockNotSet         StatusCode = 406
	StatusUnknownCommand      StatusCode = 407
	StatusNotStopped          StatusCode = 408
	StatusMustCopy            StatusCode = 409
	StatusFileExists          StatusCode = 410
	StatusDirectoryNotEmpty   StatusCode = 411
	StatusInvalidFilename     StatusCode = 412
	StatusCannotCreate        StatusCode = 413
	StatusAccessDenied        StatusCode = 414
	StatusDeviceFull          StatusCode = 415
	StatusNotDebuggable       StatusCode = 416
	StatusInvalidCounterType  StatusCode = 417
	StatusNoCounterData       StatusCode = 418
	StatusNotLocked           StatusCode = 420
	StatusKeyExchangeRequired StatusCode = 421
	StatusMustBeDedicated     StatusCode = 422
)

// statusText holds the monitor's stock message per known code.
var statusText = map[StatusCode]string{
	StatusOK:                  "OK",
	StatusConnected:           "connected",
	StatusMultilineFollows:    "multiline response follows",
	StatusBinaryFollows:       "binary response follows",
	StatusSendBinary:          "send binary data",
	StatusDedicated:           "connection dedicated",
	StatusUnexpectedError:     "unexpected error",
	StatusMaxConnections:      "max number of connections exceeded",
	StatusFileNotFound:        "file not found",
	StatusNoSuchModule:        "no such module",
	StatusMemoryNotMapped:     "memory not mapped",
	StatusNoSuchThread:        "no such thread",
	StatusUnknownCommand:      "unknown command",
	StatusNotStopped:          "not stopped",
	StatusMustCopy:            "file must be copied",
	StatusFileExists:          "file already exists",
	StatusDirectoryNotEmpty:   "directory not empty",
	StatusInvalidFilename:     "filename is invalid",
	StatusCannotCreate:        "file cannot be created",
	StatusAccessDenied:        "access denied",
	StatusDeviceFull:          "no room on device",
	StatusNotDebuggable:       "not debuggable",
	StatusInvalidCounterType:  "type invalid",
	StatusNoCounterData:       "data not available",
	StatusNotLocked:           "box not locked",
	StatusKeyExchangeRequired: "key exchange required",
	StatusMustBeDedicated:     "dedicated connection required",
}

// Text returns the stock message for known codes, "" otherwise.
func (c StatusCode) Text() string {
	return statusText[c]
}

// IsSuccess reports whether c is in the success class (below 400).
func (c StatusCode) IsSuccess() bool {
	return c < 400
}

// IsError reports whether c is in the error class (400 and above).
func (c StatusCode) IsError() bool {
	return c >= 400
}

func (c StatusCode) String() string {
	return strconv.Itoa(int(c))
}

// BodyShape tells the codec what follows a status line.
type BodyShape int

const (
	BodyNone BodyShape = iota
	BodyMultiline
	BodyBinary
)

// Body reports the response body shape implied by c. Codes outside the
// known table carry no body.
func (c StatusCode) Body() BodyShape {
	switch c {
	case StatusMultilineFollows:
		return BodyMultiline
	case StatusBinaryFollows:
		return BodyBinary
	default:
		return BodyNone
	}
}

// Status is one parsed response line: numeric code plus free-text message.
type Status struct {
	Code    StatusCode
	Message string
}

// ParseStatus splits one response line (terminator already stripped) into
// code and message. The wire shape is three ASCII digits, the '-'
// separator, then message text; the single space the monitor emits after
// the separator is consumed when present.
func ParseStatus(line string) (Status, error) {
	if len(line) < 4 {
		return Status{}, fmt.Errorf("%w: status line too short: %q", ErrMalformedFrame, line)
	}
	for i := 0; i < 3; i++ {
		if line[i] < '0' || line[i] > '9' {
			return Status{}, fmt.Errorf("%w: status code not numeric: %q", ErrMalformedFrame, line)
		}
	}
	if line[3] != statusSeparator {
		return Status{}, fmt.Errorf("%w: missing separator: %q", ErrMalformedFrame, line)
	}
	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return Status{}, fmt.Errorf("%w: status code not numeric: %q", ErrMalformedFrame, line)
	}
	msg := line[4:]
	if strings.HasPrefix(msg, " ") {
		msg = msg[1:]
	}
	return Status{Code: StatusCode(code), Message: msg}, nil
}

// String renders the status the way the monitor writes it.
func (s Status) String() string {
	return fmt.Sprintf("%03d- %s", uint16(s.Code), s.Message)
}

// Field returns the value of a space-delimited key=value item in the
// status message, e.g. length=0x40 in "203- binary response follows
// length=0x40". Quoted values are unquoted.
func (s Status) Field(key string) (string, bool) {
	for _, item := range strings.Fields(s.Message) {
		k, v, ok := strings.Cut(item, "=")
		if !ok || k != key {
			continue
		}
		if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
			v = v[1 : len(v)-1]
		}
		return v, true
	}
	return "", false
}

// IntField parses a numeric message field. The monitor emits both
// 0x-prefixed hex and plain decimal.
func (s Status) IntField(key string) (int64, bool) {
	raw, ok := s.Field(key)
	if !ok {
		return 0, false
	}
	var v int64
	var err error
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		v, err = strconv.ParseInt(raw[2:], 16, 64)
	} else {
		v, err = strconv.ParseInt(raw, 10, 64)
	}
	if err != nil {
		return 0, false
	}
	return v, true
}
