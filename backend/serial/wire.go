// Package serial implements the RS-232 back-end of spec section 4.5: a
// multi-stage handshaked opcode framing with CRC-CCITT and byte
// reordering, plus the EPOS<->SDO translation that lets the core's
// CANopen SDO COBs travel over a link that only understands EPOS's own
// opcode dialect.
package serial

import (
	"github.com/maxon-epos/eposcan"
	"github.com/maxon-epos/eposcan/internal/crc"
)

// Opcodes and acks, per spec section 4.5.
const (
	opRead         byte = 0x10
	opWrite        byte = 0x11
	opInitSegRead  byte = 0x12
	opInitSegWrite byte = 0x13
	opSegRead      byte = 0x14
	opSegWrite     byte = 0x15
	opResponse     byte = 0x00
	opSendRawCAN   byte = 0x20

	ackOK   byte = 0x4F
	ackFail byte = 0x46
)

// SDO response command specifiers the back-end manufactures on receipt
// of a successful EPOS response (spec section 4.5).
const (
	sdoWriteReceive         byte = 0x60
	sdoReadReceiveUndefined byte = 0x42
	sdoAbortCommand         byte = 0xC0
)

// sdoRecvBase/sdoSendBase mirror the default connection set's SDO
// entries (connection.go): the host sends requests on the server's
// receive range (0x600..) and receives responses on the server's send
// range (0x580..). The back-end only ever sees already-routed Frames, so
// it recovers the node id from the frame's COB-ID against these bases.
const (
	sdoRecvBase uint16 = 0x600
	sdoSendBase uint16 = 0x580
)

// buildRequestWire encodes frame as the pre-handshake byte buffer: plain
// big-endian layout with a zeroed trailing CRC word, not yet byte
// reordered. The caller computes/writes the CRC and reorders before
// sending.
func buildRequestWire(frame eposcan.Frame) []byte {
	if frame.ID < sdoRecvBase || frame.ID > sdoRecvBase+127 || frame.Length < 1 {
		return buildRawCANWire(frame)
	}

	node := byte(frame.ID - sdoRecvBase)
	cmd := frame.Data[0]
	ccs := cmd >> 5
	expedited := (cmd>>1)&1 == 1

	var op byte
	var dataBytes []byte

	switch {
	case ccs == eposcan.SDOCCSDownloadInit && expedited:
		op = opWrite
		n := int(frame.Length) - 4
		dataBytes = frame.Data[4 : 4+n]
	case ccs == eposcan.SDOCCSDownloadInit && !expedited:
		op = opInitSegWrite
		n := int(frame.Length) - 4
		dataBytes = frame.Data[4 : 4+n]
	case ccs == eposcan.SDOCCSDownloadSegment:
		op = opSegWrite
		dataBytes = frame.Data[:frame.Length]
	case ccs == eposcan.SDOCCSUploadInit:
		op = opRead
		dataBytes = nil
	default:
		return buildRawCANWire(frame)
	}

	words := leWordsMostSignificantFirst(dataBytes)
	index := uint16(frame.Data[1])<<8 | uint16(frame.Data[2])
	sub := byte(0)
	if frame.Length >= 4 {
		sub = frame.Data[3]
	}

	body := []byte{byte(index >> 8), byte(index), node, sub}
	body = append(body, words...)
	lenWords := byte(len(words)/2 + 1)

	buf := make([]byte, 0, 2+len(body)+2)
	buf = append(buf, op, lenWords)
	buf = append(buf, body...)
	buf = append(buf, 0, 0) // trailing CRC word placeholder
	return buf
}

// sdoRequestIndexSub extracts the object dictionary index/subindex a
// frame addresses, if it is an SDO request on the receive base; the
// back-end remembers these across the send so the response-side abort
// COB (translateResponse) can copy them back, since the wire response
// never echoes them itself.
func sdoRequestIndexSub(frame eposcan.Frame) (index uint16, sub byte, ok bool) {
	if frame.ID < sdoRecvBase || frame.ID > sdoRecvBase+127 || frame.Length < 3 {
		return 0, 0, false
	}
	index = uint16(frame.Data[1])<<8 | uint16(frame.Data[2])
	if frame.Length >= 4 {
		sub = frame.Data[3]
	}
	return index, sub, true
}

// buildRawCANWire wraps a non-SDO frame as opcode 0x20: a 5-word body of
// id (hi/lo) and the 8 payload bytes (zero-padded), per spec section 4.5.
func buildRawCANWire(frame eposcan.Frame) []byte {
	buf := make([]byte, 0, 2+10+2)
	buf = append(buf, opSendRawCAN, 3)
	buf = append(buf, byte(frame.ID>>8), byte(frame.ID))
	buf = append(buf, frame.Data[:]...)
	buf = append(buf, 0, 0)
	return buf
}

// leWordsMostSignificantFirst splits a little-endian CANopen data field
// into 16-bit words rendered big-endian on the wire, most-significant
// word first (spec section 4.5's "d2_hi, d2_lo, d1_hi, d1_lo" ordering
// for a 4-byte expedited write). Odd-length input is zero-padded.
func leWordsMostSignificantFirst(data []byte) []byte {
	padded := data
	if len(padded)%2 != 0 {
		padded = append(append([]byte{}, data...), 0)
	}
	n := len(padded) / 2
	out := make([]byte, 0, len(padded))
	for w := n - 1; w >= 0; w-- {
		lo, hi := padded[2*w], padded[2*w+1]
		out = append(out, hi, lo)
	}
	return out
}

// leBytesFromWireWords is the inverse of leWordsMostSignificantFirst:
// given wire bytes (most-significant word first, each word big-endian),
// recover the original little-endian byte sequence.
func leBytesFromWireWords(wire []byte) []byte {
	n := len(wire) / 2
	out := make([]byte, len(wire))
	for w := 0; w < n; w++ {
		srcWord := n - 1 - w
		hi, lo := wire[2*srcWord], wire[2*srcWord+1]
		out[2*w], out[2*w+1] = lo, hi
	}
	return out
}

// finalizeFrame computes and writes the trailing CRC word, then applies
// the wire byte-reorder, producing the bytes actually transmitted.
func finalizeFrame(buf []byte) []byte {
	crcVal := crc.EncodeSerialCRC(buf)
	n := len(buf)
	buf[n-2], buf[n-1] = byte(crcVal>>8), byte(crcVal)
	crc.ByteReorder(buf)
	return buf
}

// parseResponseFrame undoes the wire byte-reorder and verifies the CRC,
// returning the plain big-endian body (header + fields, CRC word
// stripped) or an error if the CRC does not cancel to zero.
func parseResponseFrame(raw []byte) ([]byte, error) {
	buf := append([]byte{}, raw...)
	crc.ByteReorder(buf)
	if !crc.VerifySerialCRC(buf) {
		return nil, errCRCMismatch
	}
	crc.WordReorder(buf)
	return buf[:len(buf)-2], nil
}

// translateResponse converts a parsed, word-reordered response buffer
// (header included, CRC word already stripped) addressed to node into
// the Frame the generic device expects to see on receive_frame, per spec
// section 4.5's receive-side translation table. index/sub are the object
// dictionary index/subindex of the request this response answers: the
// response wire format never echoes them back (buf[2:6] is entirely
// consumed by the status/error-code window), so the abort COB spec
// section 4.5 requires ("index/sub copied") can only be built from what
// the caller remembered about the request it sent.
//
// Layout: buf[0:2] = op, len_words; buf[2:6] = the 4-byte status window
// spec section 4.5 calls "response payload bytes 2..5" — all zero means
// success (real data follows at buf[6:]), any other value is read back
// as the SDO abort code itself (the spec's text names a second "bytes
// 4..7" window for the error code that overlaps this one; this
// implementation resolves the overlap by reusing the single 4-byte
// status window for both roles).
func translateResponse(node byte, buf []byte, index uint16, sub byte) eposcan.Frame {
	status := buf[2:6]
	id := sdoSendBase + uint16(node)

	if status[0] == 0 && status[1] == 0 && status[2] == 0 && status[3] == 0 {
		var data [4]byte
		if len(buf) >= 10 {
			copy(data[:], leBytesFromWireWords(buf[6:10]))
		}
		cmd := sdoWriteReceive
		if len(buf) < 10 {
			cmd = sdoReadReceiveUndefined
		}
		payload := []byte{cmd, 0, 0, 0, data[0], data[1], data[2], data[3]}
		return eposcan.NewFrame(id, false, payload, 8)
	}

	payload := []byte{sdoAbortCommand, byte(index >> 8), byte(index), sub, status[0], status[1], status[2], status[3]}
	return eposcan.NewFrame(id, false, payload, 8)
}
