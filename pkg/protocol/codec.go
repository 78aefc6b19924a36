package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrRecordLength is returned when a buffer does not match the fixed
// wire size of the record being decoded or encoded into.
var ErrRecordLength = errors.New("protocol: record length mismatch")

func lengthError(record string, got, want int) error {
	return fmt.Errorf("%w: %s is %d bytes, want %d", ErrRecordLength, record, got, want)
}

// writer is a cursor over a fixed-size, caller-owned buffer. The
// offsets are fully determined by the record layout, so a short buffer
// is a programming error and panics via the slice bounds check.
type writer struct {
	buf []byte
	off int
}

func (w *writer) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *writer) u16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *writer) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *writer) f64(v float64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], math.Float64bits(v))
	w.off += 8
}

func (w *writer) f64s(vs []float64) {
	for _, v := range vs {
		w.f64(v)
	}
}

func (w *writer) flag(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) f64() float64 {
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.buf[r.off:]))
	r.off += 8
	return v
}

func (r *reader) f64s(dst []float64) {
	for i := range dst {
		dst[i] = r.f64()
	}
}

func (r *reader) flag() bool {
	return r.u8() != 0
}

// =============================================================================
// Command-plane encode (full record, function tag first)
// =============================================================================

// Bytes encodes the request as one TCP record.
func (m *ConnectRequest) Bytes() []byte {
	w := writer{buf: make([]byte, ConnectRequestSize)}
	w.u32(uint32(FunctionConnect))
	w.u16(m.Version)
	w.u16(m.UDPPort)
	return w.buf
}

// Bytes encodes the reply as one TCP record.
func (m *ConnectReply) Bytes() []byte {
	w := writer{buf: make([]byte, ConnectReplySize)}
	w.u32(uint32(FunctionConnect))
	w.u32(uint32(m.Status))
	w.u16(m.Version)
	return w.buf
}

// Bytes encodes the request as one TCP record.
func (m *MoveRequest) Bytes() []byte {
	w := writer{buf: make([]byte, MoveRequestSize)}
	w.u32(uint32(FunctionMove))
	w.u32(m.ControllerMode)
	w.u32(m.MotionGeneratorMode)
	w.f64s(m.MaximumPathDeviation[:])
	w.f64s(m.MaximumGoalPoseDeviation[:])
	return w.buf
}

// Bytes encodes the reply as one TCP record.
func (m *MoveReply) Bytes() []byte {
	w := writer{buf: make([]byte, MoveReplySize)}
	w.u32(uint32(FunctionMove))
	w.u32(uint32(m.Status))
	return w.buf
}

// Bytes encodes the request as one TCP record.
func (m *StopMoveRequest) Bytes() []byte {
	w := writer{buf: make([]byte, StopMoveRequestSize)}
	w.u32(uint32(FunctionStopMove))
	return w.buf
}

// Bytes encodes the reply as one TCP record.
func (m *StopMoveReply) Bytes() []byte {
	w := writer{buf: make([]byte, StopMoveReplySize)}
	w.u32(uint32(FunctionStopMove))
	w.u32(uint32(m.Status))
	return w.buf
}

// Bytes encodes the request as one TCP record.
func (m *SetControllerModeRequest) Bytes() []byte {
	w := writer{buf: make([]byte, SetControllerModeRequestSize)}
	w.u32(uint32(FunctionSetControllerMode))
	w.u32(m.Mode)
	return w.buf
}

// Bytes encodes the reply as one TCP record.
func (m *SetControllerModeReply) Bytes() []byte {
	w := writer{buf: make([]byte, SetControllerModeReplySize)}
	w.u32(uint32(FunctionSetControllerMode))
	w.u32(uint32(m.Status))
	return w.buf
}

// =============================================================================
// Command-plane decode (body only, function tag already consumed)
// =============================================================================

// DecodeConnectRequest decodes a request body read off the TCP channel.
func DecodeConnectRequest(body []byte) (ConnectRequest, error) {
	if len(body) != ConnectRequestSize-functionTagSize {
		return ConnectRequest{}, lengthError("connect request", len(body), ConnectRequestSize-functionTagSize)
	}
	r := reader{buf: body}
	return ConnectRequest{Version: r.u16(), UDPPort: r.u16()}, nil
}

// DecodeConnectReply decodes a reply body read off the TCP channel.
func DecodeConnectReply(body []byte) (ConnectReply, error) {
	if len(body) != ConnectReplySize-functionTagSize {
		return ConnectReply{}, lengthError("connect reply", len(body), ConnectReplySize-functionTagSize)
	}
	r := reader{buf: body}
	return ConnectReply{Status: ConnectStatus(r.u32()), Version: r.u16()}, nil
}

// DecodeMoveRequest decodes a request body read off the TCP channel.
func DecodeMoveRequest(body []byte) (MoveRequest, error) {
	if len(body) != MoveRequestSize-functionTagSize {
		return MoveRequest{}, lengthError("move request", len(body), MoveRequestSize-functionTagSize)
	}
	r := reader{buf: body}
	var m MoveRequest
	m.ControllerMode = r.u32()
	m.MotionGeneratorMode = r.u32()
	r.f64s(m.MaximumPathDeviation[:])
	r.f64s(m.MaximumGoalPoseDeviation[:])
	return m, nil
}

// DecodeMoveReply decodes a reply body read off the TCP channel.
func DecodeMoveReply(body []byte) (MoveReply, error) {
	if len(body) != MoveReplySize-functionTagSize {
		return MoveReply{}, lengthError("move reply", len(body), MoveReplySize-functionTagSize)
	}
	r := reader{buf: body}
	return MoveReply{Status: MoveStatus(r.u32())}, nil
}

// DecodeStopMoveReply decodes a reply body read off the TCP channel.
func DecodeStopMoveReply(body []byte) (StopMoveReply, error) {
	if len(body) != StopMoveReplySize-functionTagSize {
		return StopMoveReply{}, lengthError("stop move reply", len(body), StopMoveReplySize-functionTagSize)
	}
	r := reader{buf: body}
	return StopMoveReply{Status: StopMoveStatus(r.u32())}, nil
}

// DecodeSetControllerModeRequest decodes a request body read off the TCP channel.
func DecodeSetControllerModeRequest(body []byte) (SetControllerModeRequest, error) {
	if len(body) != SetControllerModeRequestSize-functionTagSize {
		return SetControllerModeRequest{}, lengthError("set controller mode request", len(body), SetControllerModeRequestSize-functionTagSize)
	}
	r := reader{buf: body}
	return SetControllerModeRequest{Mode: r.u32()}, nil
}

// DecodeSetControllerModeReply decodes a reply body read off the TCP channel.
func DecodeSetControllerModeReply(body []byte) (SetControllerModeReply, error) {
	if len(body) != SetControllerModeReplySize-functionTagSize {
		return SetControllerModeReply{}, lengthError("set controller mode reply", len(body), SetControllerModeReplySize-functionTagSize)
	}
	r := reader{buf: body}
	return SetControllerModeReply{Status: SetControllerModeStatus(r.u32())}, nil
}

// =============================================================================
// Real-time encode/decode (caller-owned, preallocated buffers)
// =============================================================================

// EncodeRobotState fills dst with the state datagram. dst must be
// exactly RobotStateSize bytes.
func EncodeRobotState(dst []byte, m *RobotStateMessage) error {
	if len(dst) != RobotStateSize {
		return lengthError("robot state buffer", len(dst), RobotStateSize)
	}
	w := writer{buf: dst}
	w.u32(m.MessageID)
	w.f64s(m.Q[:])
	w.f64s(m.QD[:])
	w.f64s(m.QStart[:])
	w.f64s(m.DQ[:])
	w.f64s(m.TauJ[:])
	w.f64s(m.DTauJ[:])
	w.f64s(m.TauExtHatFiltered[:])
	w.f64s(m.OTEEStart[:])
	w.f64s(m.ElbowStart[:])
	w.f64s(m.OFExtHatEE[:])
	w.f64s(m.EEFExtHatEE[:])
	w.f64s(m.JointContact[:])
	w.f64s(m.CartesianContact[:])
	w.f64s(m.JointCollision[:])
	w.f64s(m.CartesianCollision[:])
	w.u8(m.MotionGeneratorMode)
	w.u8(m.ControllerMode)
	return nil
}

// DecodeRobotState parses one state datagram into m.
func DecodeRobotState(buf []byte, m *RobotStateMessage) error {
	if len(buf) != RobotStateSize {
		return lengthError("robot state", len(buf), RobotStateSize)
	}
	r := reader{buf: buf}
	m.MessageID = r.u32()
	r.f64s(m.Q[:])
	r.f64s(m.QD[:])
	r.f64s(m.QStart[:])
	r.f64s(m.DQ[:])
	r.f64s(m.TauJ[:])
	r.f64s(m.DTauJ[:])
	r.f64s(m.TauExtHatFiltered[:])
	r.f64s(m.OTEEStart[:])
	r.f64s(m.ElbowStart[:])
	r.f64s(m.OFExtHatEE[:])
	r.f64s(m.EEFExtHatEE[:])
	r.f64s(m.JointContact[:])
	r.f64s(m.CartesianContact[:])
	r.f64s(m.JointCollision[:])
	r.f64s(m.CartesianCollision[:])
	m.MotionGeneratorMode = r.u8()
	m.ControllerMode = r.u8()
	return nil
}

// EncodeRobotCommand fills dst with the command datagram. dst must be
// exactly RobotCommandSize bytes.
func EncodeRobotCommand(dst []byte, m *RobotCommandMessage) error {
	if len(dst) != RobotCommandSize {
		return lengthError("robot command buffer", len(dst), RobotCommandSize)
	}
	w := writer{buf: dst}
	w.u32(m.MessageID)
	w.f64s(m.Motion.QD[:])
	w.f64s(m.Motion.DQD[:])
	w.f64s(m.Motion.OTEED[:])
	w.f64s(m.Motion.ODPEED[:])
	w.f64s(m.Motion.ElbowD[:])
	w.flag(m.Motion.ValidElbow)
	w.flag(m.Motion.MotionGenerationFinished)
	w.f64s(m.Control.TauJD[:])
	return nil
}

// DecodeRobotCommand parses one command datagram into m.
func DecodeRobotCommand(buf []byte, m *RobotCommandMessage) error {
	if len(buf) != RobotCommandSize {
		return lengthError("robot command", len(buf), RobotCommandSize)
	}
	r := reader{buf: buf}
	m.MessageID = r.u32()
	r.f64s(m.Motion.QD[:])
	r.f64s(m.Motion.DQD[:])
	r.f64s(m.Motion.OTEED[:])
	r.f64s(m.Motion.ODPEED[:])
	r.f64s(m.Motion.ElbowD[:])
	m.Motion.ValidElbow = r.flag()
	m.Motion.MotionGenerationFinished = r.flag()
	r.f64s(m.Control.TauJD[:])
	return nil
}
