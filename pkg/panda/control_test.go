package panda

import (
	"testing"
	"time"

	"github.com/armlink/go-panda/pkg/protocol"
)

func TestControlLoop(t *testing.T) {
	server := newMockServer(t)
	robot := openTestRobot(t, server, time.Second)

	running := func(st *protocol.RobotStateMessage) {
		st.MotionGeneratorMode = uint8(MotionGeneratorModeJointPosition)
		st.ControllerMode = uint8(ControllerModeJointImpedance)
	}

	server.sendState(running)
	server.handleMove(func(protocol.MoveRequest) protocol.MoveStatus {
		return protocol.MoveStatusMotionStarted
	})

	// The callback schedules the server's side of its own tick, so the
	// stream stays in lockstep with the loop.
	ticks := 0
	var periods []time.Duration
	callback := func(state *RobotState, period time.Duration) (*MotionCommand, *ControllerCommand) {
		ticks++
		periods = append(periods, period)

		if ticks < 3 {
			server.sendState(running)
			server.expectCommand(func(cmd protocol.RobotCommandMessage) {
				if cmd.Motion.MotionGenerationFinished {
					t.Error("finished flag set before the callback finished")
				}
			})
			return &MotionCommand{Q: state.QD}, nil
		}

		server.expectCommand(func(cmd protocol.RobotCommandMessage) {
			if !cmd.Motion.MotionGenerationFinished {
				t.Error("final command does not carry the finished flag")
			}
		})
		server.sendMoveReply(protocol.MoveStatusSuccess)
		server.sendState(func(st *protocol.RobotStateMessage) {
			st.MotionGeneratorMode = uint8(MotionGeneratorModeIdle)
		})
		return &MotionCommand{Q: state.QD, MotionFinished: true}, nil
	}

	if err := robot.Control(ControllerModeJointImpedance, MotionGeneratorModeJointPosition, callback); err != nil {
		t.Fatalf("control: %v", err)
	}

	if ticks != 3 {
		t.Errorf("callback ran %d times, want 3", ticks)
	}
	if len(periods) > 0 && periods[0] != 0 {
		t.Errorf("first period = %v, want 0", periods[0])
	}
	for i, p := range periods[1:] {
		if p != TickDuration {
			t.Errorf("period[%d] = %v, want %v", i+1, p, TickDuration)
		}
	}
	if robot.MotionGeneratorRunning() {
		t.Error("MotionGeneratorRunning() = true after the loop finished")
	}
}

func TestActiveControl(t *testing.T) {
	server := newMockServer(t)
	robot := openTestRobot(t, server, time.Second)

	running := func(st *protocol.RobotStateMessage) {
		st.MotionGeneratorMode = uint8(MotionGeneratorModeJointVelocity)
		st.ControllerMode = uint8(ControllerModeJointImpedance)
	}

	server.sendState(running)
	server.handleMove(func(protocol.MoveRequest) protocol.MoveStatus {
		return protocol.MoveStatusMotionStarted
	})

	ctrl, err := robot.StartControl(ControllerModeJointImpedance, MotionGeneratorModeJointVelocity,
		DefaultDeviation, DefaultDeviation)
	if err != nil {
		t.Fatalf("start control: %v", err)
	}

	server.sendState(running)
	state, period, err := ctrl.ReadOnce()
	if err != nil {
		t.Fatalf("read once: %v", err)
	}
	if period != TickDuration {
		t.Errorf("period = %v, want %v", period, TickDuration)
	}

	motion := MotionCommand{DQ: [7]float64{0.1, 0, 0, 0, 0, 0, 0}}
	server.expectCommand(func(cmd protocol.RobotCommandMessage) {
		if cmd.MessageID != state.MessageID {
			t.Errorf("command message id = %d, want %d", cmd.MessageID, state.MessageID)
		}
		if cmd.Motion.DQD != motion.DQ {
			t.Errorf("command velocities = %v, want %v", cmd.Motion.DQD, motion.DQ)
		}
	})
	if err := ctrl.WriteOnce(&motion, nil); err != nil {
		t.Fatalf("write once: %v", err)
	}

	server.expectCommand(func(cmd protocol.RobotCommandMessage) {
		if !cmd.Motion.MotionGenerationFinished {
			t.Error("final command does not carry the finished flag")
		}
	})
	server.sendMoveReply(protocol.MoveStatusSuccess)
	server.sendState(func(st *protocol.RobotStateMessage) {
		st.MotionGeneratorMode = uint8(MotionGeneratorModeIdle)
	})

	if err := ctrl.WriteOnce(&MotionCommand{MotionFinished: true}, nil); err != nil {
		t.Fatalf("final write once: %v", err)
	}
	if robot.MotionGeneratorRunning() {
		t.Error("MotionGeneratorRunning() = true after the final write")
	}

	if _, _, err := ctrl.ReadOnce(); err == nil {
		t.Error("ReadOnce succeeded on a finished handle")
	}
	if err := ctrl.WriteOnce(&MotionCommand{}, nil); err == nil {
		t.Error("WriteOnce succeeded on a finished handle")
	}
}
