// Package panda is a client for a 7-DoF torque-controlled robot arm on
// the local network. It maintains one session per robot: a reliable
// TCP command channel multiplexed with an unreliable 1 kHz UDP state
// and command stream.
//
// The library has no worker goroutines. The application drives the
// real-time loop itself, one Update per robot tick, either directly,
// through the blocking Control helper, or through an ActiveControl
// handle. A missed or out-of-order control packet forces a
// deterministic stop on the robot side; the session layer's job is to
// make every local deviation from the protocol loud and immediate.
package panda

import (
	"time"

	"github.com/armlink/go-panda/pkg/protocol"
)

// Options tune how a session is opened. The zero value of each field
// selects its default.
type Options struct {
	// Port is the robot's TCP command port. Defaults to
	// protocol.CommandPort.
	Port int

	// Timeout bounds every blocking receive and synchronous command.
	// Defaults to DefaultNetworkTimeout.
	Timeout time.Duration
}

// Robot is an open session with one robot. It is a thin handle owning
// the session implementation directly; there is exactly one backend
// and no runtime polymorphism.
//
// A Robot is driven from one goroutine at a time. The pending-reply
// registry is internally locked so that a test harness may interleave
// Update with command-plane calls, but that is a concession to
// testing, not a concurrency guarantee.
type Robot struct {
	s *session
}

// Open connects to the robot at host and performs the protocol
// handshake. opts may be nil for defaults.
func Open(host string, opts *Options) (*Robot, error) {
	port := protocol.CommandPort
	timeout := DefaultNetworkTimeout
	if opts != nil {
		if opts.Port != 0 {
			port = opts.Port
		}
		if opts.Timeout != 0 {
			timeout = opts.Timeout
		}
	}
	s, err := open(host, port, timeout)
	if err != nil {
		return nil, err
	}
	return &Robot{s: s}, nil
}

// Close tears the session down, issuing a best-effort StopMove first
// when a motion is still running. Safe to call more than once.
func (r *Robot) Close() error {
	return r.s.close()
}

// Update runs one tick of the real-time cycle: it receives the
// freshest robot state, validates the supplied command halves against
// the running modes, drains asynchronous command replies, and sends at
// most one command whose message id echoes the received state.
//
// Which halves must be present follows from what is running:
// both while a motion and the external controller run, only motion
// while just a motion runs, only control while just the external
// controller runs, and neither for a pure state poll. Any other shape
// fails with a ControlError before a single byte is sent.
func (r *Robot) Update(motion *MotionCommand, control *ControllerCommand) (RobotState, error) {
	return r.s.update(motion, control)
}

// StartMotion starts a motion generator, with the robot-side
// controller in ctrl mode, and blocks until the robot's state stream
// confirms it. At most one motion generator runs per session.
func (r *Robot) StartMotion(ctrl ControllerMode, mg MotionGeneratorMode, maxPathDeviation, maxGoalPoseDeviation Deviation) error {
	return r.s.startMotion(ctrl, mg, maxPathDeviation, maxGoalPoseDeviation)
}

// StopMotion finishes the running motion: it emits one final command
// with the finished flag set, then waits for the idle state and the
// terminal Move reply. A terminal status other than success surfaces
// as a ControlError.
func (r *Robot) StopMotion() error {
	return r.s.stopMotion()
}

// StartController engages the external controller; afterwards every
// tick must carry a ControllerCommand.
func (r *Robot) StartController() error {
	return r.s.startController()
}

// StopController hands torque control back to the robot's internal
// joint impedance controller.
func (r *Robot) StopController() error {
	return r.s.stopController()
}

// MotionGeneratorRunning reports whether a motion generator is
// running: from the Move request until the motion is stopped (idle
// state and terminal Move reply both seen) or ended by a terminal Move
// reply. It follows the session's motion phase, not the mode field of
// the most recent state alone.
func (r *Robot) MotionGeneratorRunning() bool {
	return r.s.motionGeneratorRunning()
}

// ControllerRunning reports whether the external controller is the
// active robot-side controller.
func (r *Robot) ControllerRunning() bool {
	return r.s.controllerRunning()
}

// LastState returns the most recently received robot state. ok is
// false before the first state has arrived.
func (r *Robot) LastState() (state RobotState, ok bool) {
	return r.s.lastState, r.s.haveState
}
