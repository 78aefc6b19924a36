package panda

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/armlink/go-panda/pkg/protocol"
)

// frameBodyTimeout bounds reading the remainder of a frame once its
// function tag has arrived. The robot writes whole records, so the
// body follows the tag immediately; this only guards against a peer
// that dies mid-record.
const frameBodyTimeout = 100 * time.Millisecond

// pollTimeout is the bounded wait of the non-blocking reply poll that
// runs inside every tick.
const pollTimeout = 50 * time.Microsecond

// tcpChannel is the reliable command channel. One record per request
// or reply, framed only by the leading function tag.
type tcpChannel struct {
	conn net.Conn
	tag  [4]byte
}

func dialTCP(host string, port int, timeout time.Duration) (*tcpChannel, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, classifyNetErr("dial", err)
	}
	return &tcpChannel{conn: conn}, nil
}

func (c *tcpChannel) close() error {
	return c.conn.Close()
}

// send writes one whole record. net.Conn.Write loops over partial
// writes internally, so a short return always carries an error.
func (c *tcpChannel) send(record []byte) error {
	if _, err := c.conn.Write(record); err != nil {
		return classifyNetErr("tcp send", err)
	}
	return nil
}

// readFrame reads one reply record and returns its function tag and
// body. The tag read honors the caller's deadline; the body read is
// additionally granted frameBodyTimeout so a tick-sized deadline
// cannot split a record.
func (c *tcpChannel) readFrame(deadline time.Time) (protocol.Function, []byte, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, nil, classifyNetErr("tcp read", err)
	}
	if _, err := io.ReadFull(c.conn, c.tag[:]); err != nil {
		return 0, nil, classifyNetErr("tcp read", err)
	}

	fn := protocol.Function(binary.LittleEndian.Uint32(c.tag[:]))
	size, ok := protocol.ReplySize(fn)
	if !ok {
		return 0, nil, &ProtocolError{Kind: ProtocolBadEnum, Err: fmt.Errorf("unknown function tag %d", fn)}
	}

	bodyDeadline := time.Now().Add(frameBodyTimeout)
	if deadline.After(bodyDeadline) {
		bodyDeadline = deadline
	}
	if err := c.conn.SetReadDeadline(bodyDeadline); err != nil {
		return 0, nil, classifyNetErr("tcp read", err)
	}
	body := make([]byte, size-4)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return 0, nil, classifyNetErr("tcp read", err)
	}
	return fn, body, nil
}

// poll tries to read one reply record without blocking beyond
// pollTimeout. Returns ok=false when nothing is queued.
func (c *tcpChannel) poll() (protocol.Function, []byte, bool, error) {
	fn, body, err := c.readFrame(time.Now().Add(pollTimeout))
	if err != nil {
		var ne *NetworkError
		if errors.As(err, &ne) && ne.Kind == NetworkTimeout {
			return 0, nil, false, nil
		}
		return 0, nil, false, err
	}
	return fn, body, true, nil
}

// classifyNetErr maps an OS-level error onto the NetworkError
// taxonomy. A peer-closed stream surfaces as NetworkClosed the next
// time any operation touches the channel.
func classifyNetErr(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &NetworkError{Kind: NetworkTimeout, Op: op, Err: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return &NetworkError{Kind: NetworkClosed, Op: op, Err: err}
	}
	return &NetworkError{Kind: NetworkUnreachable, Op: op, Err: err}
}
