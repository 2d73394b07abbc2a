package usb

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxon-epos/eposcan"
)

// netPipePort adapts net.Conn (from net.Pipe) to the Port interface.
type netPipePort struct{ net.Conn }

func TestSendFrameWriteHandshakeAbortsOnFail(t *testing.T) {
	client, peer := net.Pipe()
	defer client.Close()
	defer peer.Close()
	backend := NewWithPort(netPipePort{client}, 3)

	go func() {
		buf := make([]byte, 3) // DLE, STX, opcode
		readFullPeer(peer, buf)
		peer.Write([]byte{ackFail})
	}()

	frame := buildTestWriteFrame(t, 3)
	err := backend.SendFrame(frame)
	require.Error(t, err)
	var coErr *eposcan.Error
	require.ErrorAs(t, err, &coErr)
	assert.Equal(t, eposcan.CodeSend, coErr.Code)
}

func TestSendFrameWriteHandshakeSucceeds(t *testing.T) {
	client, peer := net.Pipe()
	defer client.Close()
	defer peer.Close()
	backend := NewWithPort(netPipePort{client}, 3)

	done := make(chan error, 1)
	go func() {
		head := make([]byte, 3)
		readFullPeer(peer, head)
		if head[0] != dle || head[1] != stx {
			done <- errors.New("bad frame sync")
			return
		}
		peer.Write([]byte{ackOK})

		lenWords, err := readDestuffedBytePeer(peer)
		if err != nil {
			done <- err
			return
		}
		if _, err := readDestuffedNPeer(peer, (int(lenWords)+2)*2); err != nil {
			done <- err
			return
		}
		peer.Write([]byte{ackOK})
		done <- nil
	}()

	frame := buildTestWriteFrame(t, 3)
	require.NoError(t, backend.SendFrame(frame))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received the frame")
	}
}

func TestReceiveFrameTranslatesSuccessfulResponse(t *testing.T) {
	client, peer := net.Pipe()
	defer client.Close()
	defer peer.Close()
	backend := NewWithPort(netPipePort{client}, 3)

	// data[0] == 0x90 exercises DLE byte stuffing across the round trip
	// (spec section 8, scenario 5).
	data := []byte{0x90, 0x01, 0x00, 0x00}
	go sendCannedSuccessResponse(peer, data)

	frame, err := backend.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, uint16(sdoSendBase+3), frame.ID)
	assert.Equal(t, sdoWriteReceive, frame.Data[0])
	assert.Equal(t, data, frame.Data[4:8])
}

func TestReceiveFrameRejectsBadFrameSync(t *testing.T) {
	client, peer := net.Pipe()
	defer client.Close()
	defer peer.Close()
	backend := NewWithPort(netPipePort{client}, 3)

	go func() { peer.Write([]byte{0x00, 0x00}) }()

	_, err := backend.ReceiveFrame()
	require.Error(t, err)
	var coErr *eposcan.Error
	require.ErrorAs(t, err, &coErr)
	assert.Equal(t, eposcan.CodeReceive, coErr.Code)
}

// buildTestWriteFrame mimics what device.SendCOB produces for a WRITE_4
// expedited SDO request addressed to node.
func buildTestWriteFrame(t *testing.T, node uint8) eposcan.Frame {
	t.Helper()
	cob := eposcan.SDOBuildSend(node, eposcan.SDOCCSDownloadInit, eposcan.SDOTransferExpedited, 0x6040, 0, []byte{0x0F, 0x00, 0x00, 0x00})
	return eposcan.NewFrame(sdoRecvBase+uint16(node), false, cob.Data[:cob.Length], int(cob.Length))
}

// sendCannedSuccessResponse plays the response-side handshake of spec
// section 4.6, manufacturing a success frame that echoes back data
// through a DLE/STX-framed, byte-stuffed wire encoding. The word pair is
// pre-swapped relative to leWordsMostSignificantFirst's output because
// the receive side applies its own word-reorder pass that swaps them
// back (mirrors the serial back-end's test fixture).
func sendCannedSuccessResponse(peer net.Conn, data []byte) {
	words := leWordsMostSignificantFirst(data)
	if len(words) == 4 {
		words[0], words[2] = words[2], words[0]
		words[1], words[3] = words[3], words[1]
	}
	body := []byte{opResponse, byte(len(words)/2 + 2), 0, 0, 0, 0}
	body = append(body, words...)
	body = append(body, 0, 0) // reserved word
	body = append(body, 0, 0) // crc placeholder
	finalizeFrame(body)
	stuffed := stuffBytes(body)

	peer.Write([]byte{dle, stx})
	peer.Write(stuffed[:1])
	ack := make([]byte, 1)
	peer.Read(ack)
	peer.Write(stuffed[1:])
	peer.Read(ack)
}

func readFullPeer(conn net.Conn, buf []byte) {
	for read := 0; read < len(buf); {
		n, err := conn.Read(buf[read:])
		if err != nil {
			return
		}
		read += n
	}
}

// readRawBytePeer/readDestuffedBytePeer/readDestuffedNPeer mirror the
// backend's own destuffing reader, used by tests that play the peer side
// of a DLE/STX-framed, byte-stuffed exchange.
func readRawBytePeer(conn net.Conn) (byte, error) {
	buf := make([]byte, 1)
	for read := 0; read < 1; {
		n, err := conn.Read(buf[read:])
		if err != nil {
			return 0, err
		}
		read += n
	}
	return buf[0], nil
}

func readDestuffedBytePeer(conn net.Conn) (byte, error) {
	v, err := readRawBytePeer(conn)
	if err != nil {
		return 0, err
	}
	if v != dle {
		return v, nil
	}
	next, err := readRawBytePeer(conn)
	if err != nil {
		return 0, err
	}
	if next != dle {
		return 0, errBadStuffedByte
	}
	return dle, nil
}

func readDestuffedNPeer(conn net.Conn, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := range out {
		v, err := readDestuffedBytePeer(conn)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
