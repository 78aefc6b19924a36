package panda

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/armlink/go-panda/internal/log"
	"github.com/armlink/go-panda/pkg/protocol"
)

// motionPhase is the per-motion state machine. Requested and Starting
// exist only inside StartMotion; Finishing spans the window between
// sending motion_generation_finished and observing both the idle state
// and the terminal Move reply.
type motionPhase uint8

const (
	motionIdle motionPhase = iota
	motionRequested
	motionStarting
	motionRunning
	motionFinishing
)

// session owns the two sockets and all in-flight protocol state bound
// to one robot. All operations run on the caller's goroutine; the only
// shared-mutable structure is the pending-reply registry.
type session struct {
	id     string
	host   string
	logger *slog.Logger

	tcp *tcpChannel
	udp *udpChannel

	timeout time.Duration

	// pending holds command-plane frames read while waiting for a
	// different function tag. Guarded by mu: the test harness may call
	// Update from a goroutine other than the one driving commands.
	mu      sync.Mutex
	pending map[protocol.Function][][]byte

	// Mode tracking, fed by every decoded state.
	lastState RobotState
	haveState bool

	phase            motionPhase
	controllerActive bool

	// Terminal Move reply held until the state stream confirms idle.
	terminalStatus protocol.MoveStatus
	haveTerminal   bool

	// Last commanded halves, reused when StopMotion must emit the
	// finished command without a fresh user command.
	lastMotion  MotionCommand
	lastControl ControllerCommand
	haveMotion  bool

	// Preallocated tick buffers for the state and command records. The
	// socket calls of a tick (UDP receive, command-channel poll) still
	// allocate small values such as addresses and timeout errors.
	wire protocol.RobotStateMessage
	cmd  protocol.RobotCommandMessage
	out  [protocol.RobotCommandSize]byte

	closed bool
}

// open performs the session handshake: dial the command port, bind the
// state channel, exchange Connect records, and verify the protocol
// version. Sockets are released on every failure path.
func open(host string, port int, timeout time.Duration) (*session, error) {
	tcp, err := dialTCP(host, port, timeout)
	if err != nil {
		return nil, err
	}
	udp, err := bindUDP()
	if err != nil {
		tcp.close()
		return nil, err
	}

	req := protocol.ConnectRequest{Version: protocol.Version, UDPPort: udp.port()}
	if err := tcp.send(req.Bytes()); err != nil {
		tcp.close()
		udp.close()
		return nil, err
	}

	fn, body, err := tcp.readFrame(time.Now().Add(timeout))
	if err != nil {
		tcp.close()
		udp.close()
		return nil, err
	}
	if fn != protocol.FunctionConnect {
		tcp.close()
		udp.close()
		return nil, &ProtocolError{Kind: ProtocolBadEnum, Err: fmt.Errorf("handshake answered with function %d", fn)}
	}
	reply, err := protocol.DecodeConnectReply(body)
	if err != nil {
		tcp.close()
		udp.close()
		return nil, &ProtocolError{Kind: ProtocolBadLength, Err: err}
	}
	switch reply.Status {
	case protocol.ConnectStatusSuccess:
	case protocol.ConnectStatusIncompatibleVersion:
		tcp.close()
		udp.close()
		return nil, &ProtocolError{Kind: ProtocolIncompatibleVersion, RemoteVersion: reply.Version}
	default:
		tcp.close()
		udp.close()
		return nil, &ProtocolError{Kind: ProtocolBadEnum, Err: fmt.Errorf("connect status %d", reply.Status)}
	}

	s := &session{
		id:      uuid.NewString(),
		host:    host,
		tcp:     tcp,
		udp:     udp,
		timeout: timeout,
		pending: make(map[protocol.Function][][]byte),
	}
	s.logger = log.With("session", s.id, "robot", host)
	s.logger.Info("session established", "version", reply.Version, "udp_port", udp.port())
	return s, nil
}

// close tears the session down. If a motion is still running, a
// best-effort StopMove is issued first so the robot falls back to a
// deterministic stop rather than starving on missing commands.
func (s *session) close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.phase != motionIdle {
		if err := s.tcp.send((&protocol.StopMoveRequest{}).Bytes()); err == nil {
			// Reply is advisory at this point; bound the wait well below
			// the session timeout so teardown stays prompt.
			s.waitReply(protocol.FunctionStopMove, time.Now().Add(s.timeout/4))
		}
		s.phase = motionIdle
	}

	udpErr := s.udp.close()
	tcpErr := s.tcp.close()
	s.logger.Info("session closed")
	if tcpErr != nil {
		return classifyNetErr("close", tcpErr)
	}
	if udpErr != nil {
		return classifyNetErr("close", udpErr)
	}
	return nil
}

// =============================================================================
// Mode tracking
// =============================================================================

// observeState feeds one decoded state into the tracker. Stale or
// duplicated datagrams (message id not above the last seen one) are
// rejected; state ids must increase strictly.
func (s *session) observeState(st RobotState) bool {
	if s.haveState && st.MessageID <= s.lastState.MessageID {
		return false
	}
	s.lastState = st
	s.haveState = true
	return true
}

func (s *session) motionGeneratorRunning() bool {
	return s.phase != motionIdle
}

func (s *session) controllerRunning() bool {
	return s.controllerActive
}

// receiveState blocks until a fresh state arrives or the deadline
// expires. Stale datagrams left over from previous ticks are skipped.
func (s *session) receiveState(deadline time.Time) (RobotState, error) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return RobotState{}, &NetworkError{Kind: NetworkTimeout, Op: "udp receive"}
		}
		buf, err := s.udp.receiveLatest(remaining)
		if err != nil {
			return RobotState{}, err
		}
		if err := protocol.DecodeRobotState(buf, &s.wire); err != nil {
			return RobotState{}, &ProtocolError{Kind: ProtocolBadLength, Err: err}
		}
		st, err := stateFromWire(&s.wire)
		if err != nil {
			return RobotState{}, err
		}
		if s.observeState(st) {
			return st, nil
		}
	}
}

// =============================================================================
// Pending-reply registry
// =============================================================================

func (s *session) pushPending(fn protocol.Function, body []byte) {
	s.mu.Lock()
	s.pending[fn] = append(s.pending[fn], body)
	s.mu.Unlock()
}

func (s *session) popPending(fn protocol.Function) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.pending[fn]
	if len(q) == 0 {
		return nil, false
	}
	body := q[0]
	s.pending[fn] = q[1:]
	return body, true
}

// waitReply blocks until a reply tagged fn arrives. Frames for other
// functions are parked in the pending registry instead of being
// dropped; the robot may interleave an unsolicited terminal Move reply
// with the reply being waited for.
func (s *session) waitReply(fn protocol.Function, deadline time.Time) ([]byte, error) {
	if body, ok := s.popPending(fn); ok {
		return body, nil
	}
	for {
		got, body, err := s.tcp.readFrame(deadline)
		if err != nil {
			var ne *NetworkError
			if errors.As(err, &ne) && ne.Kind == NetworkTimeout {
				return nil, &ProtocolError{Kind: ProtocolTimeout, Function: fn, Err: err}
			}
			return nil, err
		}
		if got == fn {
			return body, nil
		}
		s.pushPending(got, body)
	}
}

// drainCommandReplies consumes every asynchronous reply available
// right now, without blocking the tick. A terminal Move reply outside
// the Finishing phase collapses the motion and fails the tick.
func (s *session) drainCommandReplies() error {
	for {
		fn, body, ok, err := s.nextAsyncFrame()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch fn {
		case protocol.FunctionMove:
			reply, err := protocol.DecodeMoveReply(body)
			if err != nil {
				return &ProtocolError{Kind: ProtocolBadLength, Err: err}
			}
			if err := s.handleMoveReply(reply.Status); err != nil {
				return err
			}
		case protocol.FunctionSetControllerMode:
			if _, err := protocol.DecodeSetControllerModeReply(body); err != nil {
				return &ProtocolError{Kind: ProtocolBadLength, Err: err}
			}
			// Controller changes are synchronous; a reply surfacing here
			// was already accounted for and carries no further state.
		case protocol.FunctionStopMove:
			if _, err := protocol.DecodeStopMoveReply(body); err != nil {
				return &ProtocolError{Kind: ProtocolBadLength, Err: err}
			}
		}
	}
}

func (s *session) nextAsyncFrame() (protocol.Function, []byte, bool, error) {
	for _, fn := range []protocol.Function{protocol.FunctionMove, protocol.FunctionSetControllerMode, protocol.FunctionStopMove} {
		if body, ok := s.popPending(fn); ok {
			return fn, body, true, nil
		}
	}
	return s.tcp.poll()
}

// handleMoveReply routes a Move status by motion phase. MotionStarted
// acknowledgements are consumed inside StartMotion; everything seen
// here is terminal.
func (s *session) handleMoveReply(status protocol.MoveStatus) error {
	if !status.Terminal() {
		return nil
	}
	if s.phase == motionFinishing {
		s.terminalStatus = status
		s.haveTerminal = true
		return nil
	}
	if s.phase != motionIdle {
		s.resetMotion()
		return &ControlError{Kind: ControlMotionAborted, MoveStatus: status}
	}
	// Terminal reply for a motion already torn down: nothing left to
	// complete.
	return nil
}

// resetMotion restores I2 after a motion ends for any reason. The
// external controller is independent of the motion (I3) and keeps
// running.
func (s *session) resetMotion() {
	s.phase = motionIdle
	s.haveMotion = false
	s.haveTerminal = false
}

// =============================================================================
// The real-time tick
// =============================================================================

// update is one tick: receive the freshest state, validate the
// caller's argument shape, drain asynchronous replies, then send at
// most one command echoing the state's message id.
func (s *session) update(m *MotionCommand, c *ControllerCommand) (RobotState, error) {
	st, err := s.receiveState(time.Now().Add(s.timeout))
	if err != nil {
		return RobotState{}, err
	}
	if err := s.writeTick(m, c); err != nil {
		return RobotState{}, err
	}
	return st, nil
}

// writeTick is the send half of a tick: argument-shape validation,
// async-reply drain, command composition and send, in that order. No
// datagram leaves when validation fails.
func (s *session) writeTick(m *MotionCommand, c *ControllerCommand) error {
	if err := s.validateShape(m, c); err != nil {
		return err
	}
	if err := s.drainCommandReplies(); err != nil {
		return err
	}
	if m == nil && c == nil {
		return nil
	}
	if err := s.sendCommand(m, c); err != nil {
		return err
	}
	if m != nil {
		s.lastMotion = *m
		s.haveMotion = true
		if m.MotionFinished {
			s.phase = motionFinishing
		}
	}
	if c != nil {
		s.lastControl = *c
	}
	return nil
}

// validateShape enforces the argument table of the update cycle
// against the locally tracked running flags.
func (s *session) validateShape(m *MotionCommand, c *ControllerCommand) error {
	if s.phase == motionFinishing && m != nil {
		return errInvalidOperation("motion generation already finished, no further motion commands accepted")
	}

	motion := s.phase == motionRunning
	control := s.controllerActive
	switch {
	case motion && control:
		if m == nil || c == nil {
			return errInvalidOperation("motion generator and external controller running, both command parts required")
		}
	case motion:
		if m == nil {
			return errInvalidOperation("motion generator running, motion command required")
		}
		if c != nil {
			return errInvalidOperation("no external controller running, controller command forbidden")
		}
	case control:
		if c == nil {
			return errInvalidOperation("external controller running, controller command required")
		}
		if m != nil {
			return errInvalidOperation("no motion generator running, motion command forbidden")
		}
	default:
		if m != nil || c != nil {
			return errInvalidOperation("nothing running, commands forbidden")
		}
	}
	return nil
}

// sendCommand composes and transmits one RobotCommandMessage. Absent
// halves are zeroed; the message id echoes the state that triggered
// this tick (I1).
func (s *session) sendCommand(m *MotionCommand, c *ControllerCommand) error {
	s.cmd = protocol.RobotCommandMessage{MessageID: s.lastState.MessageID}
	if m != nil {
		s.cmd.Motion.QD = m.Q
		s.cmd.Motion.DQD = m.DQ
		s.cmd.Motion.OTEED = m.OTEE
		s.cmd.Motion.ODPEED = m.ODPEE
		s.cmd.Motion.ElbowD = m.Elbow
		s.cmd.Motion.ValidElbow = m.ValidElbow
		s.cmd.Motion.MotionGenerationFinished = m.MotionFinished
	}
	if c != nil {
		s.cmd.Control.TauJD = c.TauJ
	}
	if err := protocol.EncodeRobotCommand(s.out[:], &s.cmd); err != nil {
		return &ProtocolError{Kind: ProtocolBadLength, Err: err}
	}
	return s.udp.send(s.out[:])
}

// =============================================================================
// Command coordination
// =============================================================================

// startMotion drives the Move exchange: precondition checks (I2, I3),
// the MotionStarted acknowledgement, then the state stream confirming
// the new motion generator mode.
func (s *session) startMotion(ctrl ControllerMode, mg MotionGeneratorMode, pathDev, goalDev Deviation) error {
	if !mg.valid() || mg == MotionGeneratorModeIdle {
		return errInvalidOperation(fmt.Sprintf("cannot start motion generator in mode %s", mg))
	}
	if !ctrl.valid() || ctrl == ControllerModeOther {
		return errInvalidOperation(fmt.Sprintf("cannot start motion with controller mode %s", ctrl))
	}
	if s.phase != motionIdle {
		return &ControlError{Kind: ControlAlreadyRunning, Reason: "motion generator already running"}
	}
	if ctrl == ControllerModeExternalController && s.controllerActive {
		return &ControlError{Kind: ControlAlreadyRunning, Reason: "external controller already running"}
	}

	s.logger.Debug("starting motion", "controller_mode", ctrl, "motion_generator_mode", mg)

	req := protocol.MoveRequest{
		ControllerMode:           uint32(ctrl),
		MotionGeneratorMode:      uint32(mg),
		MaximumPathDeviation:     pathDev.array(),
		MaximumGoalPoseDeviation: goalDev.array(),
	}
	s.phase = motionRequested
	if err := s.tcp.send(req.Bytes()); err != nil {
		s.phase = motionIdle
		return err
	}

	deadline := time.Now().Add(s.timeout)
	body, err := s.waitReply(protocol.FunctionMove, deadline)
	if err != nil {
		s.phase = motionIdle
		return err
	}
	reply, err := protocol.DecodeMoveReply(body)
	if err != nil {
		s.phase = motionIdle
		return &ProtocolError{Kind: ProtocolBadLength, Err: err}
	}
	if reply.Status != protocol.MoveStatusMotionStarted {
		s.phase = motionIdle
		return &ControlError{Kind: ControlMotionStartFailed, MoveStatus: reply.Status}
	}

	// The robot's state stream is authoritative: the motion counts as
	// running only once a state reflects it (and, for an external
	// controller, the controller mode as well).
	s.phase = motionStarting
	for {
		if s.haveState && s.lastState.MotionGeneratorMode != MotionGeneratorModeIdle &&
			(ctrl != ControllerModeExternalController || s.lastState.ControllerMode == ControllerModeExternalController) {
			break
		}
		if time.Now().After(deadline) {
			s.phase = motionIdle
			return &ProtocolError{Kind: ProtocolTimeout, Function: protocol.FunctionMove}
		}
		if _, err := s.receiveState(deadline); err != nil {
			s.phase = motionIdle
			return mapTimeout(err, protocol.FunctionMove)
		}
		if err := s.drainCommandReplies(); err != nil {
			if s.phase == motionStarting {
				s.phase = motionIdle
			}
			return err
		}
	}

	s.phase = motionRunning
	if ctrl == ControllerModeExternalController {
		s.controllerActive = true
	}
	s.logger.Debug("motion running", "message_id", s.lastState.MessageID)
	return nil
}

// stopMotion ends the running motion: emit the current command once
// with motion_generation_finished set, then hold out for both the
// idle state and the terminal Move reply, in whichever order the robot
// delivers them.
func (s *session) stopMotion() error {
	var m MotionCommand
	if s.haveMotion {
		m = s.lastMotion
	}
	var c *ControllerCommand
	if s.controllerActive {
		c = &s.lastControl
	}
	return s.stopMotionWith(&m, c)
}

func (s *session) stopMotionWith(m *MotionCommand, c *ControllerCommand) error {
	if s.phase == motionIdle {
		return &ControlError{Kind: ControlNotRunning, Reason: "no motion generator running"}
	}

	s.logger.Debug("stopping motion")
	deadline := time.Now().Add(s.timeout)

	if s.phase != motionFinishing {
		finish := *m
		finish.MotionFinished = true
		if err := s.sendCommand(&finish, c); err != nil {
			return err
		}
		// After this point no further motion bytes are emitted for this
		// motion (I6).
		s.phase = motionFinishing
	}

	for {
		if s.haveTerminal && s.lastState.MotionGeneratorMode == MotionGeneratorModeIdle {
			break
		}
		if time.Now().After(deadline) {
			return &ProtocolError{Kind: ProtocolTimeout, Function: protocol.FunctionMove}
		}
		if !s.haveTerminal {
			// Poll the command channel alongside the state stream; the
			// terminal reply and the idle state race freely.
			if err := s.drainCommandReplies(); err != nil {
				return err
			}
		}
		if s.lastState.MotionGeneratorMode != MotionGeneratorModeIdle || !s.haveState {
			if _, err := s.receiveState(deadline); err != nil {
				return mapTimeout(err, protocol.FunctionMove)
			}
		} else if !s.haveTerminal {
			// Idle already observed; wait on the reply alone.
			body, err := s.waitReply(protocol.FunctionMove, deadline)
			if err != nil {
				return err
			}
			reply, err := protocol.DecodeMoveReply(body)
			if err != nil {
				return &ProtocolError{Kind: ProtocolBadLength, Err: err}
			}
			if reply.Status.Terminal() {
				s.terminalStatus = reply.Status
				s.haveTerminal = true
			}
		}
	}

	status := s.terminalStatus
	s.resetMotion()
	if status != protocol.MoveStatusSuccess {
		return &ControlError{Kind: ControlMotionAborted, MoveStatus: status}
	}
	s.logger.Debug("motion stopped")
	return nil
}

// startController engages the external controller via
// SetControllerMode and waits for the state stream to confirm it.
func (s *session) startController() error {
	if s.controllerActive {
		return &ControlError{Kind: ControlAlreadyRunning, Reason: "external controller already running"}
	}

	s.logger.Debug("starting external controller")
	if err := s.setControllerMode(ControllerModeExternalController); err != nil {
		return err
	}
	if err := s.awaitControllerMode(func(m ControllerMode) bool { return m == ControllerModeExternalController }); err != nil {
		return err
	}
	s.controllerActive = true
	return nil
}

// stopController hands torque generation back to the robot's internal
// joint impedance controller.
func (s *session) stopController() error {
	if !s.controllerActive {
		return &ControlError{Kind: ControlNotRunning, Reason: "no external controller running"}
	}

	s.logger.Debug("stopping external controller")
	if err := s.setControllerMode(ControllerModeJointImpedance); err != nil {
		return err
	}
	if err := s.awaitControllerMode(func(m ControllerMode) bool { return m != ControllerModeExternalController }); err != nil {
		return err
	}
	s.controllerActive = false
	return nil
}

func (s *session) setControllerMode(mode ControllerMode) error {
	req := protocol.SetControllerModeRequest{Mode: uint32(mode)}
	if err := s.tcp.send(req.Bytes()); err != nil {
		return err
	}
	body, err := s.waitReply(protocol.FunctionSetControllerMode, time.Now().Add(s.timeout))
	if err != nil {
		return err
	}
	reply, err := protocol.DecodeSetControllerModeReply(body)
	if err != nil {
		return &ProtocolError{Kind: ProtocolBadLength, Err: err}
	}
	if reply.Status != protocol.SetControllerModeStatusSuccess {
		return &ControlError{Kind: ControlControllerChangeFailed, ControllerStatus: reply.Status}
	}
	return nil
}

// mapTimeout converts a state-stream timeout inside a synchronous
// command wait into the command's reply-timeout error. The bare
// NetworkError stays reserved for the Update path, where it is fatal.
func mapTimeout(err error, fn protocol.Function) error {
	var ne *NetworkError
	if errors.As(err, &ne) && ne.Kind == NetworkTimeout {
		return &ProtocolError{Kind: ProtocolTimeout, Function: fn, Err: ne}
	}
	return err
}

func (s *session) awaitControllerMode(confirmed func(ControllerMode) bool) error {
	deadline := time.Now().Add(s.timeout)
	for {
		if s.haveState && confirmed(s.lastState.ControllerMode) {
			return nil
		}
		if time.Now().After(deadline) {
			return &ProtocolError{Kind: ProtocolTimeout, Function: protocol.FunctionSetControllerMode}
		}
		if _, err := s.receiveState(deadline); err != nil {
			return mapTimeout(err, protocol.FunctionSetControllerMode)
		}
		if err := s.drainCommandReplies(); err != nil {
			return err
		}
	}
}
