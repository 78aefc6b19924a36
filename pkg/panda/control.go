package panda

import "time"

// ControlFunc is a real-time callback, invoked once per robot tick
// with the freshest state and the time elapsed since the previous
// invocation (zero on the first call). It returns the command halves
// for this tick; returning a MotionCommand with MotionFinished set
// ends the loop gracefully.
//
// The callback runs on the caller's goroutine at 1 kHz. It must not
// block, allocate aggressively, or touch the Robot it is driving.
type ControlFunc func(state *RobotState, period time.Duration) (*MotionCommand, *ControllerCommand)

// Control starts a motion and pumps the real-time loop until the
// callback signals MotionFinished, then completes the stop sequence.
// It uses DefaultDeviation for the Move envelope; callers needing a
// custom envelope use StartControl, which takes both deviations and
// starts the motion itself.
//
// On error the loop stops immediately with the motion in whatever
// phase it reached; the session stays usable for StopMotion.
func (r *Robot) Control(ctrl ControllerMode, mg MotionGeneratorMode, fn ControlFunc) error {
	if err := r.s.startMotion(ctrl, mg, DefaultDeviation, DefaultDeviation); err != nil {
		return err
	}

	state := r.s.lastState
	period := time.Duration(0)
	for {
		m, c := fn(&state, period)
		if m != nil && m.MotionFinished {
			return r.s.stopMotionWith(m, c)
		}
		next, err := r.s.update(m, c)
		if err != nil {
			return err
		}
		period = time.Duration(next.MessageID-state.MessageID) * TickDuration
		state = next
	}
}

// ActiveControl is the externally clocked counterpart of Control: the
// application owns the tick cadence and alternates ReadOnce and
// WriteOnce. Both shapes share the same underlying update cycle.
type ActiveControl struct {
	r      *Robot
	prevID uint32
	done   bool
}

// StartControl starts a motion and returns a handle for an
// application-owned control loop.
func (r *Robot) StartControl(ctrl ControllerMode, mg MotionGeneratorMode, maxPathDeviation, maxGoalPoseDeviation Deviation) (*ActiveControl, error) {
	if err := r.s.startMotion(ctrl, mg, maxPathDeviation, maxGoalPoseDeviation); err != nil {
		return nil, err
	}
	return &ActiveControl{r: r, prevID: r.s.lastState.MessageID}, nil
}

// ReadOnce receives the freshest robot state and the time elapsed
// since the previous ReadOnce; the first call measures from the state
// that confirmed the motion start. Each ReadOnce is answered by
// exactly one WriteOnce.
func (ac *ActiveControl) ReadOnce() (RobotState, time.Duration, error) {
	if ac.done {
		return RobotState{}, 0, &ControlError{Kind: ControlNotRunning, Reason: "control has finished"}
	}
	st, err := ac.r.s.receiveState(time.Now().Add(ac.r.s.timeout))
	if err != nil {
		return RobotState{}, 0, err
	}
	period := time.Duration(st.MessageID-ac.prevID) * TickDuration
	ac.prevID = st.MessageID
	return st, period, nil
}

// WriteOnce validates and sends this tick's command. A MotionCommand
// with MotionFinished set runs the stop sequence and retires the
// handle; on a failed stop the handle stays live so the write can be
// retried or StopMotion called directly.
func (ac *ActiveControl) WriteOnce(m *MotionCommand, c *ControllerCommand) error {
	if ac.done {
		return &ControlError{Kind: ControlNotRunning, Reason: "control has finished"}
	}
	if m != nil && m.MotionFinished {
		if err := ac.r.s.stopMotionWith(m, c); err != nil {
			return err
		}
		ac.done = true
		return nil
	}
	return ac.r.s.writeTick(m, c)
}
