package panda

import "fmt"

//go:generate go tool stringer -type=MotionGeneratorMode -trimprefix=MotionGeneratorMode
//go:generate go tool stringer -type=ControllerMode -trimprefix=ControllerMode

// MotionGeneratorMode is the robot-side motion generator mode reported
// in every state sample and requested by StartMotion.
type MotionGeneratorMode uint8

const (
	MotionGeneratorModeIdle MotionGeneratorMode = iota
	MotionGeneratorModeJointPosition
	MotionGeneratorModeJointVelocity
	MotionGeneratorModeCartesianPosition
	MotionGeneratorModeCartesianVelocity
)

// ControllerMode is the robot-side controller mode. ExternalController
// means the client streams joint torques; everything else is computed
// on the robot.
type ControllerMode uint8

const (
	ControllerModeJointImpedance ControllerMode = iota
	ControllerModeCartesianImpedance
	ControllerModeExternalController
	ControllerModeMotorPD
	ControllerModeJointPosition
	ControllerModeJointVelocity
	ControllerModeCartesianPosition
	ControllerModeCartesianVelocity
	ControllerModeOther
)

func (m MotionGeneratorMode) valid() bool {
	return m <= MotionGeneratorModeCartesianVelocity
}

func (m ControllerMode) valid() bool {
	return m <= ControllerModeOther
}

func motionGeneratorModeFromWire(v uint8) (MotionGeneratorMode, error) {
	m := MotionGeneratorMode(v)
	if !m.valid() {
		return 0, &ProtocolError{Kind: ProtocolBadEnum, Err: fmt.Errorf("motion generator mode %d", v)}
	}
	return m, nil
}

func controllerModeFromWire(v uint8) (ControllerMode, error) {
	m := ControllerMode(v)
	if !m.valid() {
		return 0, &ProtocolError{Kind: ProtocolBadEnum, Err: fmt.Errorf("controller mode %d", v)}
	}
	return m, nil
}
