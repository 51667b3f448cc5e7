// Package protoerr defines the Protocol's closed error-code taxonomy.
//
// Codes are small integers, represented here as a comparable value type,
// the same shape as the teacher's errcode.Code: allocation-free,
// comparable, and directly usable as a map key or a Go error. The Err:/NOK:
// replies package session writes carry a code's symbolic name
// (Code.String), not its integer value.
package protoerr

import "fmt"

// Code is a stable wire-facing error identifier.
type Code uint8

func (c Code) Error() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// String renders the short machine name, e.g. for log lines.
func (c Code) String() string { return c.Error() }

// Canonical wire codes (spec.md §6.1, §7).
const (
	OK Code = iota

	// Session-fatal (sent as Err:<code> on channel 0, session ends).
	ProtocolError
	MalformedMessage
	TerminatorInPayload
	ChannelInvalid
	IOError
	Timeout
	AuthFailed

	// Request-local (sent as NOK:<code>[:msg] on the originating channel).
	PortUnknown
	WrongPortType
	PortAccessDenied
	PositionInvalid
	PortError
	TooManyBindings
	InvalidPayload

	// Not errors: terminal, non-fatal outcomes.
	Disconnected
	Shutdown
)

var names = map[Code]string{
	OK:                  "OK",
	ProtocolError:       "PROTOCOL_ERROR",
	MalformedMessage:    "MALFORMED_MESSAGE",
	TerminatorInPayload: "TERMINATOR_IN_PAYLOAD",
	ChannelInvalid:      "CHANNEL_INVALID",
	IOError:             "IO_ERROR",
	Timeout:             "TIMEOUT",
	AuthFailed:          "AUTH_FAILED",
	PortUnknown:         "PORT_UNKNOWN",
	WrongPortType:       "WRONG_PORT_TYPE",
	PortAccessDenied:    "PORT_ACCESS_DENIED",
	PositionInvalid:     "POSITION_INVALID",
	PortError:           "PORT_ERROR",
	TooManyBindings:     "TOO_MANY_BINDINGS",
	InvalidPayload:      "INVALID_PAYLOAD",
	Disconnected:        "DISCONNECTED",
	Shutdown:            "SHUTDOWN",
}

// Fatal reports whether a code is session-fatal per spec.md §7's two-axis
// taxonomy. Disconnected and Shutdown are terminal but not "errors".
func (c Code) Fatal() bool {
	switch c {
	case ProtocolError, MalformedMessage, TerminatorInPayload, ChannelInvalid,
		IOError, Timeout, AuthFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether a code ends the session without being an error
// in the wire-protocol sense (DISCONNECTED, SHUTDOWN).
func (c Code) Terminal() bool {
	return c == Disconnected || c == Shutdown
}

// E wraps a Code with optional context and a cause, mirroring the teacher's
// errcode.E (Op/Msg/Err) so callers can errors.Unwrap through to the cause.
type E struct {
	C    Code
	Op   string
	Msg  string
	Err  error
	Args []string // extra colon-separated parts carried on Err:/NOK: replies
}

func (e *E) Error() string {
	if e.Msg != "" {
		return e.C.String() + ": " + e.Msg
	}
	if e.Err != nil {
		return e.C.String() + ": " + e.Err.Error()
	}
	return e.C.String()
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an *E with no cause.
func New(c Code, msg string, args ...string) *E {
	return &E{C: c, Msg: msg, Args: args}
}

// Wrap builds an *E carrying err as its cause.
func Wrap(c Code, op string, err error) *E {
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to ProtocolError for an
// unrecognized non-nil error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return ProtocolError
}
