package panda

import (
	"net"
	"testing"
	"time"

	"github.com/armlink/go-panda/pkg/protocol"
)

func newTestPeer(t *testing.T) *net.UDPConn {
	t.Helper()
	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("peer listen: %v", err)
	}
	t.Cleanup(func() { peer.Close() })
	return peer
}

func sendTestState(t *testing.T, peer *net.UDPConn, port uint16, id uint32) {
	t.Helper()
	st := protocol.RobotStateMessage{MessageID: id}
	buf := make([]byte, protocol.RobotStateSize)
	if err := protocol.EncodeRobotState(buf, &st); err != nil {
		t.Fatalf("encode state: %v", err)
	}
	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(port)}
	if _, err := peer.WriteToUDP(buf, dst); err != nil {
		t.Fatalf("send state: %v", err)
	}
}

func TestUDPReceiveLatestKeepsFreshest(t *testing.T) {
	ch, err := bindUDP()
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer ch.close()

	peer := newTestPeer(t)
	sendTestState(t, peer, ch.port(), 1)
	sendTestState(t, peer, ch.port(), 2)
	sendTestState(t, peer, ch.port(), 3)

	// Let all three datagrams queue up before the receive.
	time.Sleep(100 * time.Millisecond)

	buf, err := ch.receiveLatest(time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var st protocol.RobotStateMessage
	if err := protocol.DecodeRobotState(buf, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.MessageID != 3 {
		t.Errorf("message id = %d, want 3 (freshest datagram)", st.MessageID)
	}
}

func TestUDPReceiveTimeout(t *testing.T) {
	ch, err := bindUDP()
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer ch.close()

	start := time.Now()
	_, err = ch.receiveLatest(100 * time.Millisecond)
	elapsed := time.Since(start)

	wantNetworkError(t, err, NetworkTimeout)
	if elapsed < 100*time.Millisecond {
		t.Errorf("receive returned after %v, want at least 100ms", elapsed)
	}
}

func TestUDPSendWithoutPeer(t *testing.T) {
	ch, err := bindUDP()
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer ch.close()

	buf := make([]byte, protocol.RobotCommandSize)
	err = ch.send(buf)
	wantNetworkError(t, err, NetworkUnreachable)
}
