// Package usb implements the FTDI-USB back-end of spec section 4.6: the
// same handshaked opcode framing as the serial back-end, wrapped in a
// DLE/STX frame sync with byte stuffing, and fed through the CRC-CCITT
// variant that byte-swaps only the first word before folding.
package usb

import (
	"github.com/maxon-epos/eposcan"
	"github.com/maxon-epos/eposcan/internal/crc"
)

// Opcodes and acks mirror the serial back-end (spec section 4.5/4.6).
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

const (
	sdoWriteReceive         byte = 0x60
	sdoReadReceiveUndefined byte = 0x42
	sdoAbortCommand         byte = 0xC0
)

const (
	sdoRecvBase uint16 = 0x600
	sdoSendBase uint16 = 0x580
)

// dle/stx are the frame synchronisation bytes every USB frame is wrapped
// in; unlike the rest of the frame they are never byte-stuffed.
const (
	dle byte = 0x90
	stx byte = 0x02
)

// buildRequestWire encodes frame as the plain, unstuffed byte buffer
// (opcode through zeroed trailing CRC word), word layout per spec
// section 4.6: one extra reserved word versus the serial encoding.
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
	body = append(body, 0, 0) // reserved word, USB-only (spec section 4.6)
	lenWords := byte(len(words)/2 + 2)

	buf := make([]byte, 0, 2+len(body)+2)
	buf = append(buf, op, lenWords)
	buf = append(buf, body...)
	buf = append(buf, 0, 0) // trailing CRC word placeholder
	return buf
}

// sdoRequestIndexSub extracts the object dictionary index/subindex a
// frame addresses, if it is an SDO request on the receive base; see the
// serial back-end's sdoRequestIndexSub for why this is remembered across
// the send.
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

// buildRawCANWire mirrors the serial back-end's raw-CAN escape hatch; USB
// carries the same reserved trailing word as the SDO opcodes.
func buildRawCANWire(frame eposcan.Frame) []byte {
	buf := make([]byte, 0, 2+12+2)
	buf = append(buf, opSendRawCAN, 4)
	buf = append(buf, byte(frame.ID>>8), byte(frame.ID))
	buf = append(buf, frame.Data[:]...)
	buf = append(buf, 0, 0) // reserved word
	buf = append(buf, 0, 0)
	return buf
}

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

// finalizeFrame computes the USB-variant CRC (first word swapped, the
// rest fed as laid out), writes the trailing word, and applies the
// shared byte reorder.
func finalizeFrame(buf []byte) []byte {
	crcVal := crc.EncodeUSBCRC(buf)
	n := len(buf)
	buf[n-2], buf[n-1] = byte(crcVal>>8), byte(crcVal)
	crc.ByteReorder(buf)
	return buf
}

// parseResponseFrame undoes the byte reorder and verifies the USB CRC
// variant, returning the plain body with the CRC word stripped.
func parseResponseFrame(raw []byte) ([]byte, error) {
	buf := append([]byte{}, raw...)
	crc.ByteReorder(buf)
	if !crc.VerifyUSBCRC(buf) {
		return nil, errCRCMismatch
	}
	crc.WordReorder(buf)
	return buf[:len(buf)-2], nil
}

// translateResponse mirrors the serial back-end's translation exactly:
// the status window sits at buf[2:6] and data at buf[6:10]. USB's extra
// reserved word trails the data, right before the (already-stripped) CRC
// word, so it never shifts these offsets. index/sub are the object
// dictionary index/subindex of the request this response answers; see
// the serial back-end's translateResponse doc for why they must come
// from the caller rather than the response buffer.
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

// stuffBytes doubles every literal DLE (0x90) byte in buf, per spec
// section 4.6's byte-stuffing rule. The DLE/STX sync prefix itself is
// never passed through this function.
func stuffBytes(buf []byte) []byte {
	out := make([]byte, 0, len(buf))
	for _, b := range buf {
		out = append(out, b)
		if b == dle {
			out = append(out, dle)
		}
	}
	return out
}
