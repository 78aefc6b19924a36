package panda

import (
	"math"
	"time"

	"github.com/armlink/go-panda/pkg/protocol"
)

// Control cadence of the robot. One tick is one (receive state, send
// command) cycle.
const (
	TickRate     = 1000
	TickDuration = time.Millisecond
)

// DefaultNetworkTimeout bounds every blocking receive and every
// synchronous command when no explicit timeout is configured.
const DefaultNetworkTimeout = time.Second

// DefaultDeviation is the Move envelope used by the blocking control
// loop when the caller does not pick one.
var DefaultDeviation = Deviation{Translation: 10.0, Rotation: 3.12, Elbow: 2 * math.Pi}

// Deviation is the maximum path or goal-pose envelope of a Move
// request: translational (m), rotational (rad) and elbow (rad) limits.
type Deviation struct {
	Translation float64
	Rotation    float64
	Elbow       float64
}

func (d Deviation) array() [3]float64 {
	return [3]float64{d.Translation, d.Rotation, d.Elbow}
}

// RobotState is one 1 kHz sample of the robot. Immutable once
// returned; Update hands out a fresh copy every tick.
type RobotState struct {
	// MessageID increases strictly by one per tick. The command sent in
	// response to this state echoes it.
	MessageID uint32

	Q                 [7]float64 // measured joint positions (rad)
	QD                [7]float64 // desired joint positions (rad)
	QStart            [7]float64 // joint positions at motion start (rad)
	DQ                [7]float64 // measured joint velocities (rad/s)
	TauJ              [7]float64 // measured link-side torques (Nm)
	DTauJ             [7]float64 // torque derivatives (Nm/s)
	TauExtHatFiltered [7]float64 // filtered external torques (Nm)

	OTEEStart  [16]float64 // end-effector pose at motion start, column-major 4x4
	ElbowStart [2]float64  // elbow configuration at motion start

	OFExtHatEE  [6]float64 // external wrench in base frame
	EEFExtHatEE [6]float64 // external wrench in end-effector frame

	JointContact       [7]float64
	CartesianContact   [6]float64
	JointCollision     [7]float64
	CartesianCollision [6]float64

	MotionGeneratorMode MotionGeneratorMode
	ControllerMode      ControllerMode
}

// MotionCommand is the motion half of one tick's command. Only the
// fields matching the running motion generator mode are read by the
// robot; the rest are transported as zeros.
type MotionCommand struct {
	Q          [7]float64  // desired joint positions (rad)
	DQ         [7]float64  // desired joint velocities (rad/s)
	OTEE       [16]float64 // desired end-effector pose, column-major 4x4
	ODPEE      [6]float64  // desired end-effector twist
	Elbow      [2]float64
	ValidElbow bool

	// MotionFinished ends the running motion. The command carrying it
	// is the last motion command of that motion.
	MotionFinished bool
}

// ControllerCommand is the torque half of one tick's command, required
// while the external controller is running.
type ControllerCommand struct {
	TauJ [7]float64 // desired joint torques (Nm)
}

func stateFromWire(w *protocol.RobotStateMessage) (RobotState, error) {
	mg, err := motionGeneratorModeFromWire(w.MotionGeneratorMode)
	if err != nil {
		return RobotState{}, err
	}
	cm, err := controllerModeFromWire(w.ControllerMode)
	if err != nil {
		return RobotState{}, err
	}
	return RobotState{
		MessageID:           w.MessageID,
		Q:                   w.Q,
		QD:                  w.QD,
		QStart:              w.QStart,
		DQ:                  w.DQ,
		TauJ:                w.TauJ,
		DTauJ:               w.DTauJ,
		TauExtHatFiltered:   w.TauExtHatFiltered,
		OTEEStart:           w.OTEEStart,
		ElbowStart:          w.ElbowStart,
		OFExtHatEE:          w.OFExtHatEE,
		EEFExtHatEE:         w.EEFExtHatEE,
		JointContact:        w.JointContact,
		CartesianContact:    w.CartesianContact,
		JointCollision:      w.JointCollision,
		CartesianCollision:  w.CartesianCollision,
		MotionGeneratorMode: mg,
		ControllerMode:      cm,
	}, nil
}
