package panda

import (
	"fmt"

	"github.com/armlink/go-panda/pkg/protocol"
)

// NetworkErrorKind classifies transport failures. Network errors are
// fatal: the session survives only for best-effort shutdown.
type NetworkErrorKind uint8

const (
	NetworkClosed NetworkErrorKind = iota
	NetworkTimeout
	NetworkBindFailed
	NetworkUnreachable
)

func (k NetworkErrorKind) String() string {
	switch k {
	case NetworkClosed:
		return "connection closed"
	case NetworkTimeout:
		return "timeout"
	case NetworkBindFailed:
		return "bind failed"
	case NetworkUnreachable:
		return "unreachable"
	}
	return fmt.Sprintf("NetworkErrorKind(%d)", uint8(k))
}

// NetworkError reports a socket-level failure on either channel.
type NetworkError struct {
	Kind NetworkErrorKind
	Op   string // operation that failed, e.g. "udp receive"
	Err  error  // underlying OS error, may be nil
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("network: %s: %s", e.Op, e.Kind)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the error is a deadline expiry, mirroring
// net.Error for callers that probe generically.
func (e *NetworkError) Timeout() bool { return e.Kind == NetworkTimeout }

// ProtocolErrorKind classifies wire-protocol violations and
// command-plane reply timeouts.
type ProtocolErrorKind uint8

const (
	ProtocolIncompatibleVersion ProtocolErrorKind = iota
	ProtocolBadLength
	ProtocolBadEnum
	ProtocolTimeout
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case ProtocolIncompatibleVersion:
		return "incompatible version"
	case ProtocolBadLength:
		return "bad length"
	case ProtocolBadEnum:
		return "bad enum"
	case ProtocolTimeout:
		return "reply timeout"
	}
	return fmt.Sprintf("ProtocolErrorKind(%d)", uint8(k))
}

// ProtocolError reports a malformed or missing protocol exchange.
// Fatal, except ProtocolTimeout from StartMotion while the robot has
// not yet reflected the new mode: the caller may retry once per tick
// window.
type ProtocolError struct {
	Kind ProtocolErrorKind

	// RemoteVersion is the robot's protocol version when Kind is
	// ProtocolIncompatibleVersion.
	RemoteVersion uint16

	// Function is the exchange whose reply timed out when Kind is
	// ProtocolTimeout.
	Function protocol.Function

	Err error
}

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case ProtocolIncompatibleVersion:
		return fmt.Sprintf("protocol: incompatible version: robot speaks version %d, library speaks %d",
			e.RemoteVersion, protocol.Version)
	case ProtocolTimeout:
		return fmt.Sprintf("protocol: reply timeout on function %d", e.Function)
	}
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("protocol: %s", e.Kind)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ControlErrorKind classifies control-session violations. Control
// errors are recoverable: the session survives and further commands
// may be attempted.
type ControlErrorKind uint8

const (
	ControlInvalidOperation ControlErrorKind = iota
	ControlAlreadyRunning
	ControlNotRunning
	ControlMotionStartFailed
	ControlMotionAborted
	ControlControllerChangeFailed
)

func (k ControlErrorKind) String() string {
	switch k {
	case ControlInvalidOperation:
		return "invalid operation"
	case ControlAlreadyRunning:
		return "already running"
	case ControlNotRunning:
		return "not running"
	case ControlMotionStartFailed:
		return "motion start failed"
	case ControlMotionAborted:
		return "motion aborted"
	case ControlControllerChangeFailed:
		return "controller change failed"
	}
	return fmt.Sprintf("ControlErrorKind(%d)", uint8(k))
}

// ControlError reports a violation of the session's control invariants
// or a command rejected by the robot.
type ControlError struct {
	Kind ControlErrorKind

	// MoveStatus carries the robot's terminal Move status for
	// ControlMotionStartFailed and ControlMotionAborted.
	MoveStatus protocol.MoveStatus

	// ControllerStatus carries the SetControllerMode status for
	// ControlControllerChangeFailed.
	ControllerStatus protocol.SetControllerModeStatus

	// Reason is the human-readable detail, e.g. which argument shape
	// rule was violated.
	Reason string
}

func (e *ControlError) Error() string {
	switch e.Kind {
	case ControlMotionStartFailed, ControlMotionAborted:
		return fmt.Sprintf("control: %s: move status %d", e.Kind, e.MoveStatus)
	case ControlControllerChangeFailed:
		return fmt.Sprintf("control: %s: status %d", e.Kind, e.ControllerStatus)
	}
	if e.Reason != "" {
		return fmt.Sprintf("control: %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("control: %s", e.Kind)
}

func errInvalidOperation(reason string) error {
	return &ControlError{Kind: ControlInvalidOperation, Reason: reason}
}
