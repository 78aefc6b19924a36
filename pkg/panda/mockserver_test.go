package panda

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/armlink/go-panda/pkg/protocol"
)

const serverStepTimeout = 2 * time.Second

// mockServer speaks the robot's side of the wire protocol on loopback.
// Steps are queued by the test and executed in order by a background
// goroutine, so a blocking client call (StartMotion, StopMotion) can
// be answered while the test goroutine is inside it.
type mockServer struct {
	t *testing.T

	ln  net.Listener
	udp *net.UDPConn

	// onConnect overrides the handshake reply; set before the client
	// calls Open.
	onConnect func(protocol.ConnectRequest) protocol.ConnectReply

	steps chan func(*serverConn)
	done  chan struct{}

	closeOnce sync.Once

	// messageID is the state tick counter; touched only by the server
	// goroutine.
	messageID uint32
}

// serverConn is the accepted client connection pair.
type serverConn struct {
	t      *testing.T
	tcp    net.Conn
	udp    *net.UDPConn
	client *net.UDPAddr
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	udp, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("udp listen: %v", err)
	}

	s := &mockServer{
		t:     t,
		ln:    ln,
		udp:   udp,
		steps: make(chan func(*serverConn), 64),
		done:  make(chan struct{}),
	}
	go s.serve()
	t.Cleanup(s.close)
	return s
}

func (s *mockServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// close drains all queued steps before tearing the sockets down, so a
// test's trailing expectations still run.
func (s *mockServer) close() {
	s.closeOnce.Do(func() {
		close(s.steps)
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			s.t.Error("mock server did not finish its steps")
		}
		s.ln.Close()
		s.udp.Close()
	})
}

func (s *mockServer) serve() {
	defer close(s.done)

	if d, ok := s.ln.(*net.TCPListener); ok {
		d.SetDeadline(time.Now().Add(5 * time.Second))
	}
	conn, err := s.ln.Accept()
	if err != nil {
		// No client connected; drain steps so close() does not hang.
		for range s.steps {
		}
		return
	}
	defer conn.Close()

	body, ok := s.readRequest(conn, protocol.FunctionConnect)
	if !ok {
		for range s.steps {
		}
		return
	}
	req, err := protocol.DecodeConnectRequest(body)
	if err != nil {
		s.t.Errorf("decode connect request: %v", err)
		return
	}

	reply := protocol.ConnectReply{Status: protocol.ConnectStatusSuccess, Version: protocol.Version}
	if s.onConnect != nil {
		reply = s.onConnect(req)
	}
	if _, err := conn.Write(reply.Bytes()); err != nil {
		s.t.Errorf("write connect reply: %v", err)
		return
	}
	if reply.Status != protocol.ConnectStatusSuccess {
		for range s.steps {
		}
		return
	}

	sc := &serverConn{
		t:      s.t,
		tcp:    conn,
		udp:    s.udp,
		client: &net.UDPAddr{IP: conn.RemoteAddr().(*net.TCPAddr).IP, Port: int(req.UDPPort)},
	}
	for step := range s.steps {
		step(sc)
	}
}

// readRequest reads one TCP request record and returns its body.
func (s *mockServer) readRequest(conn net.Conn, want protocol.Function) ([]byte, bool) {
	conn.SetReadDeadline(time.Now().Add(serverStepTimeout))

	var tag [4]byte
	if _, err := io.ReadFull(conn, tag[:]); err != nil {
		s.t.Errorf("read request tag: %v", err)
		return nil, false
	}
	fn := protocol.Function(binary.LittleEndian.Uint32(tag[:]))
	if fn != want {
		s.t.Errorf("request function = %d, want %d", fn, want)
		return nil, false
	}
	size, ok := protocol.RequestSize(fn)
	if !ok {
		s.t.Errorf("unknown request function %d", fn)
		return nil, false
	}
	body := make([]byte, size-4)
	if _, err := io.ReadFull(conn, body); err != nil {
		s.t.Errorf("read request body: %v", err)
		return nil, false
	}
	return body, true
}

// sendState queues one state datagram. The message id increments
// automatically; mutate may override it and any other field.
func (s *mockServer) sendState(mutate func(*protocol.RobotStateMessage)) {
	s.steps <- func(c *serverConn) {
		s.messageID++
		st := protocol.RobotStateMessage{MessageID: s.messageID}
		if mutate != nil {
			mutate(&st)
		}
		s.messageID = st.MessageID

		buf := make([]byte, protocol.RobotStateSize)
		if err := protocol.EncodeRobotState(buf, &st); err != nil {
			c.t.Errorf("encode state: %v", err)
			return
		}
		if _, err := c.udp.WriteToUDP(buf, c.client); err != nil {
			c.t.Errorf("send state: %v", err)
		}
	}
}

// handleMove queues the handling of one Move request.
func (s *mockServer) handleMove(fn func(protocol.MoveRequest) protocol.MoveStatus) {
	s.steps <- func(c *serverConn) {
		body, ok := s.readRequest(c.tcp, protocol.FunctionMove)
		if !ok {
			return
		}
		req, err := protocol.DecodeMoveRequest(body)
		if err != nil {
			c.t.Errorf("decode move request: %v", err)
			return
		}
		reply := protocol.MoveReply{Status: fn(req)}
		if _, err := c.tcp.Write(reply.Bytes()); err != nil {
			c.t.Errorf("write move reply: %v", err)
		}
	}
}

// handleSetControllerMode queues the handling of one SetControllerMode
// request.
func (s *mockServer) handleSetControllerMode(fn func(protocol.SetControllerModeRequest) protocol.SetControllerModeStatus) {
	s.steps <- func(c *serverConn) {
		body, ok := s.readRequest(c.tcp, protocol.FunctionSetControllerMode)
		if !ok {
			return
		}
		req, err := protocol.DecodeSetControllerModeRequest(body)
		if err != nil {
			c.t.Errorf("decode set controller mode request: %v", err)
			return
		}
		reply := protocol.SetControllerModeReply{Status: fn(req)}
		if _, err := c.tcp.Write(reply.Bytes()); err != nil {
			c.t.Errorf("write set controller mode reply: %v", err)
		}
	}
}

// sendMoveReply queues an unsolicited Move reply, e.g. the terminal
// status of a running motion.
func (s *mockServer) sendMoveReply(status protocol.MoveStatus) {
	s.steps <- func(c *serverConn) {
		reply := protocol.MoveReply{Status: status}
		if _, err := c.tcp.Write(reply.Bytes()); err != nil {
			c.t.Errorf("write move reply: %v", err)
		}
	}
}

// expectCommand queues the receipt of one command datagram from the
// client.
func (s *mockServer) expectCommand(fn func(protocol.RobotCommandMessage)) {
	s.steps <- func(c *serverConn) {
		c.udp.SetReadDeadline(time.Now().Add(serverStepTimeout))
		buf := make([]byte, protocol.RobotCommandSize+1)
		n, _, err := c.udp.ReadFromUDP(buf)
		if err != nil {
			c.t.Errorf("receive command: %v", err)
			return
		}
		var cmd protocol.RobotCommandMessage
		if err := protocol.DecodeRobotCommand(buf[:n], &cmd); err != nil {
			c.t.Errorf("decode command: %v", err)
			return
		}
		if fn != nil {
			fn(cmd)
		}
	}
}

// expectNoCommand queues the assertion that the client sends nothing
// for the given window.
func (s *mockServer) expectNoCommand(window time.Duration) {
	s.steps <- func(c *serverConn) {
		c.udp.SetReadDeadline(time.Now().Add(window))
		buf := make([]byte, protocol.RobotCommandSize+1)
		if n, _, err := c.udp.ReadFromUDP(buf); err == nil {
			c.t.Errorf("unexpected %d-byte command datagram", n)
		}
	}
}

// closeTCP queues an abrupt close of the command channel.
func (s *mockServer) closeTCP() {
	s.steps <- func(c *serverConn) {
		c.tcp.Close()
	}
}

// barrier queues a no-op and blocks the test until the server has
// executed every step queued before it.
func (s *mockServer) barrier() {
	ch := make(chan struct{})
	s.steps <- func(*serverConn) { close(ch) }
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		s.t.Fatal("mock server stalled before barrier")
	}
}
