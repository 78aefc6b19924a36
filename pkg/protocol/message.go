// Package protocol defines the wire records exchanged with the robot
// controller. The TCP command port carries fixed-size request/reply
// records framed only by a leading function tag; the negotiated UDP
// port carries exactly one RobotStateMessage (robot to client) or one
// RobotCommandMessage (client to robot) per datagram.
//
// Every field is little-endian and every record has a fixed byte
// length published as a constant below. The records themselves are
// transport-level: semantic mode enums and their validation live in
// pkg/panda.
package protocol

// Connection constants published by the robot controller.
const (
	// CommandPort is the well-known TCP port of the command channel.
	CommandPort = 1337

	// Version is the protocol version this library speaks. The robot
	// rejects the handshake when it serves a different version.
	Version uint16 = 1
)

// Function identifies a command-plane exchange. Every TCP record,
// request or reply, starts with its function tag.
type Function uint32

const (
	FunctionConnect Function = iota
	FunctionMove
	FunctionStopMove
	FunctionSetControllerMode
)

// Per-exchange reply status enumerations.
type (
	ConnectStatus           uint32
	MoveStatus              uint32
	StopMoveStatus          uint32
	SetControllerModeStatus uint32
)

const (
	ConnectStatusSuccess ConnectStatus = iota
	ConnectStatusIncompatibleVersion
)

const (
	// MoveStatusMotionStarted acknowledges a Move request; the statuses
	// after it are terminal and end the motion they belong to.
	MoveStatusMotionStarted MoveStatus = iota
	MoveStatusSuccess
	MoveStatusRejected
	MoveStatusAborted
	MoveStatusPreempted
)

// Terminal reports whether s ends a motion.
func (s MoveStatus) Terminal() bool {
	return s != MoveStatusMotionStarted
}

const (
	StopMoveStatusSuccess StopMoveStatus = iota
	StopMoveStatusRejected
	StopMoveStatusAborted
)

const (
	SetControllerModeStatusSuccess SetControllerModeStatus = iota
	SetControllerModeStatusRejected
)

// =============================================================================
// Command-plane records (TCP)
// =============================================================================

// ConnectRequest opens a session: it announces the client's protocol
// version and the local UDP port the robot should stream state to.
type ConnectRequest struct {
	Version uint16
	UDPPort uint16
}

// ConnectReply carries the robot's protocol version so an incompatible
// client can report what the remote actually speaks.
type ConnectReply struct {
	Status  ConnectStatus
	Version uint16
}

// MoveRequest starts a motion generator. Modes are carried as raw
// values; pkg/panda owns their meaning.
type MoveRequest struct {
	ControllerMode           uint32
	MotionGeneratorMode      uint32
	MaximumPathDeviation     [3]float64
	MaximumGoalPoseDeviation [3]float64
}

// MoveReply acknowledges or terminates a motion. One MoveRequest may
// produce two replies: MotionStarted first, a terminal status later.
type MoveReply struct {
	Status MoveStatus
}

// StopMoveRequest aborts the running motion from the command plane.
type StopMoveRequest struct{}

// StopMoveReply reports the outcome of a StopMoveRequest.
type StopMoveReply struct {
	Status StopMoveStatus
}

// SetControllerModeRequest switches the robot-side controller.
type SetControllerModeRequest struct {
	Mode uint32
}

// SetControllerModeReply reports the outcome of a mode switch.
type SetControllerModeReply struct {
	Status SetControllerModeStatus
}

// =============================================================================
// Real-time records (UDP)
// =============================================================================

// RobotStateMessage is one state sample, produced by the robot at 1 kHz.
// Contact and collision levels are doubles, matching the robot's wire
// format, even though they act as flags.
type RobotStateMessage struct {
	MessageID uint32

	Q                 [7]float64
	QD                [7]float64
	QStart            [7]float64
	DQ                [7]float64
	TauJ              [7]float64
	DTauJ             [7]float64
	TauExtHatFiltered [7]float64

	OTEEStart  [16]float64
	ElbowStart [2]float64

	OFExtHatEE  [6]float64
	EEFExtHatEE [6]float64

	JointContact       [7]float64
	CartesianContact   [6]float64
	JointCollision     [7]float64
	CartesianCollision [6]float64

	MotionGeneratorMode uint8
	ControllerMode      uint8
}

// MotionGeneratorCommand is the motion half of a RobotCommandMessage.
// All payload fields are always carried; the robot reads the ones that
// match the running motion generator mode.
type MotionGeneratorCommand struct {
	QD         [7]float64
	DQD        [7]float64
	OTEED      [16]float64
	ODPEED     [6]float64
	ElbowD     [2]float64
	ValidElbow bool

	// MotionGenerationFinished ends the motion; after it has been sent
	// once no further motion bytes follow for that motion.
	MotionGenerationFinished bool
}

// ControllerCommand is the torque half of a RobotCommandMessage.
type ControllerCommand struct {
	TauJD [7]float64
}

// RobotCommandMessage is the client's answer to one state sample. Its
// MessageID echoes the state tick it responds to.
type RobotCommandMessage struct {
	MessageID uint32
	Motion    MotionGeneratorCommand
	Control   ControllerCommand
}

// =============================================================================
// Wire sizes
// =============================================================================

const functionTagSize = 4

// Full record sizes, function tag included for the TCP records.
const (
	ConnectRequestSize = functionTagSize + 2 + 2
	ConnectReplySize   = functionTagSize + 4 + 2

	MoveRequestSize = functionTagSize + 4 + 4 + 3*8 + 3*8
	MoveReplySize   = functionTagSize + 4

	StopMoveRequestSize = functionTagSize
	StopMoveReplySize   = functionTagSize + 4

	SetControllerModeRequestSize = functionTagSize + 4
	SetControllerModeReplySize   = functionTagSize + 4
)

const (
	stateDoubleCount   = 7*7 + 16 + 2 + 6 + 6 + 7 + 6 + 7 + 6
	commandDoubleCount = 7 + 7 + 16 + 6 + 2 + 7

	// RobotStateSize is the exact length of one state datagram.
	RobotStateSize = 4 + stateDoubleCount*8 + 2

	// RobotCommandSize is the exact length of one command datagram.
	RobotCommandSize = 4 + commandDoubleCount*8 + 2
)

// Wire sizes are load-bearing: both ends allocate receive buffers from
// these constants, so layout drift must fail the build.
var (
	_ = [1]struct{}{}[RobotStateSize-846]
	_ = [1]struct{}{}[RobotCommandSize-366]
)

// RequestSize returns the full wire size of the request record tagged f.
func RequestSize(f Function) (int, bool) {
	switch f {
	case FunctionConnect:
		return ConnectRequestSize, true
	case FunctionMove:
		return MoveRequestSize, true
	case FunctionStopMove:
		return StopMoveRequestSize, true
	case FunctionSetControllerMode:
		return SetControllerModeRequestSize, true
	}
	return 0, false
}

// ReplySize returns the full wire size of the reply record tagged f.
func ReplySize(f Function) (int, bool) {
	switch f {
	case FunctionConnect:
		return ConnectReplySize, true
	case FunctionMove:
		return MoveReplySize, true
	case FunctionStopMove:
		return StopMoveReplySize, true
	case FunctionSetControllerMode:
		return SetControllerModeReplySize, true
	}
	return 0, false
}
