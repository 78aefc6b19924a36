package panda

import (
	"errors"
	"net"
	"time"

	"github.com/armlink/go-panda/pkg/protocol"
)

// drainTimeout is the bounded wait of one drain read while collapsing
// queued state datagrams down to the freshest one.
const drainTimeout = 50 * time.Microsecond

// sendTimeout bounds one command send. A send that cannot complete in
// this window is dropped: the robot wants at most one command per tick
// and a late retry is worthless.
const sendTimeout = time.Millisecond

var errNoPeer = errors.New("no state received yet, robot address unknown")

// udpChannel is the unreliable 1 kHz state/command channel. It binds
// an ephemeral local port, announced to the robot during the
// handshake, and learns the robot's address from the first state
// datagram it receives.
type udpChannel struct {
	conn   *net.UDPConn
	remote *net.UDPAddr

	// Receive buffers are preallocated, so datagram payloads are not
	// copied to the heap. The socket reads still allocate the sender
	// address and, in the drain loop, a timeout error.
	buf     [protocol.RobotStateSize]byte
	scratch [protocol.RobotStateSize]byte
	n       int
}

func bindUDP() (*udpChannel, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, &NetworkError{Kind: NetworkBindFailed, Op: "udp bind", Err: err}
	}
	return &udpChannel{conn: conn}, nil
}

func (c *udpChannel) close() error {
	return c.conn.Close()
}

func (c *udpChannel) port() uint16 {
	return uint16(c.conn.LocalAddr().(*net.UDPAddr).Port)
}

// receiveLatest blocks up to timeout for a datagram, then drains the
// socket and keeps only the most recent one: freshness beats
// completeness on a safety-critical 1 kHz feed. The returned slice is
// valid until the next call.
func (c *udpChannel) receiveLatest(timeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, classifyNetErr("udp receive", err)
	}
	n, addr, err := c.conn.ReadFromUDP(c.buf[:])
	if err != nil {
		return nil, classifyNetErr("udp receive", err)
	}
	c.n = n
	c.remote = addr

	// Anything still queued is older than what the robot has since
	// produced or is about to produce; keep the last datagram only.
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
			return nil, classifyNetErr("udp receive", err)
		}
		m, addr, err := c.conn.ReadFromUDP(c.scratch[:])
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				break
			}
			return nil, classifyNetErr("udp receive", err)
		}
		c.n = copy(c.buf[:], c.scratch[:m])
		c.remote = addr
	}
	return c.buf[:c.n], nil
}

// send transmits one command datagram to the robot. A would-block is
// treated as a drop and reported as success.
func (c *udpChannel) send(b []byte) error {
	if c.remote == nil {
		return &NetworkError{Kind: NetworkUnreachable, Op: "udp send", Err: errNoPeer}
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		return classifyNetErr("udp send", err)
	}
	if _, err := c.conn.WriteToUDP(b, c.remote); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return classifyNetErr("udp send", err)
	}
	return nil
}
