package usb

import (
	"github.com/maxon-epos/eposcan"
	"github.com/maxon-epos/eposcan/config"
)

// Backend implements eposcan.Backend over an FTDI-USB link speaking the
// DLE/STX-synchronised variant of the EPOS opcode protocol (spec section
// 4.6).
type Backend struct {
	cfg  *config.Config
	port Port
	node byte

	// lastIndex/lastSub remember the object dictionary index/subindex of
	// the most recently sent SDO request, so ReceiveFrame can copy them
	// into an abort COB; the response wire format never echoes them back.
	lastIndex uint16
	lastSub   byte
}

func New(cfg *config.Config) (*Backend, error) {
	node, err := cfg.GetInt("usb-node")
	if err != nil {
		return nil, err
	}
	return &Backend{cfg: cfg, node: byte(node)}, nil
}

// NewWithPort builds a Backend over an already-open Port, bypassing
// config-driven port construction; used by tests.
func NewWithPort(port Port, node byte) *Backend {
	return &Backend{port: port, node: node}
}

func (b *Backend) Open() error {
	if b.port != nil {
		return nil
	}
	if b.cfg == nil {
		return eposcan.NewError(eposcan.CodeOpen, "usb backend constructed without config or port")
	}
	port, err := openTTYPort(b.cfg)
	if err != nil {
		return eposcan.Blame(eposcan.CodeOpen, "port open failed", err)
	}
	b.port = port
	return nil
}

func (b *Backend) Close() error {
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	if err != nil {
		return eposcan.Blame(eposcan.CodeClose, "port close failed", err)
	}
	return nil
}

func (b *Backend) readRawByte() (byte, error) {
	buf := make([]byte, 1)
	if err := b.readFull(buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// readDestuffedByte reads one logical byte from the wire, collapsing a
// doubled DLE (0x90, 0x90) back to a single 0x90 (spec section 4.6).
func (b *Backend) readDestuffedByte() (byte, error) {
	v, err := b.readRawByte()
	if err != nil {
		return 0, err
	}
	if v != dle {
		return v, nil
	}
	next, err := b.readRawByte()
	if err != nil {
		return 0, err
	}
	if next != dle {
		return 0, errBadStuffedByte
	}
	return dle, nil
}

func (b *Backend) readDestuffed(n int) ([]byte, error) {
	out := make([]byte, n)
	for i := range out {
		v, err := b.readDestuffedByte()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (b *Backend) readFull(buf []byte) error {
	for read := 0; read < len(buf); {
		n, err := b.port.Read(buf[read:])
		if err != nil {
			return err
		}
		read += n
	}
	return nil
}

func (b *Backend) writeFull(buf []byte) error {
	for written := 0; written < len(buf); {
		n, err := b.port.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

func (b *Backend) expectAck() error {
	ack, err := b.readRawByte()
	if err != nil {
		return eposcan.Blame(eposcan.CodeSend, "ack read failed", err)
	}
	switch ack {
	case ackOK:
		return nil
	case ackFail:
		return eposcan.NewError(eposcan.CodeSend, "peer returned FAIL ack")
	default:
		return eposcan.NewError(eposcan.CodeSend, "unexpected response byte on ack read")
	}
}

// SendFrame runs the send-side handshake of spec section 4.6: DLE/STX
// sync plus opcode byte, ack, stuffed remainder, final ack. A FAIL ack at
// either point aborts the send (spec section 9).
func (b *Backend) SendFrame(frame eposcan.Frame) error {
	if index, sub, ok := sdoRequestIndexSub(frame); ok {
		b.lastIndex, b.lastSub = index, sub
	}

	buf := buildRequestWire(frame)
	finalizeFrame(buf)
	stuffed := stuffBytes(buf)

	head := append([]byte{dle, stx}, stuffed[0])
	if err := b.writeFull(head); err != nil {
		return eposcan.Blame(eposcan.CodeSend, "frame sync/opcode write failed", err)
	}
	if err := b.expectAck(); err != nil {
		return err
	}
	if err := b.writeFull(stuffed[1:]); err != nil {
		return eposcan.Blame(eposcan.CodeSend, "frame body write failed", err)
	}
	return b.expectAck()
}

// ReceiveFrame runs the receive-side handshake: DLE/STX sync, response
// opcode, length-prefixed destuffed body, CRC verification, translation.
func (b *Backend) ReceiveFrame() (eposcan.Frame, error) {
	sync0, err := b.readRawByte()
	if err != nil {
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeReceive, "sync read failed", err)
	}
	if sync0 != dle {
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeReceive, "frame sync mismatch", errBadFrameSync)
	}
	sync1, err := b.readRawByte()
	if err != nil {
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeReceive, "sync read failed", err)
	}
	if sync1 != stx {
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeReceive, "frame sync mismatch", errBadFrameSync)
	}

	op, err := b.readDestuffedByte()
	if err != nil {
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeReceive, "opcode read failed", err)
	}
	if op != opResponse {
		return eposcan.Frame{}, eposcan.NewError(eposcan.CodeReceive, "unexpected response opcode")
	}
	if err := b.writeFull([]byte{ackOK}); err != nil {
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeReceive, "ack write failed", err)
	}

	lenWords, err := b.readDestuffedByte()
	if err != nil {
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeReceive, "length read failed", err)
	}

	rest, err := b.readDestuffed((int(lenWords) + 2) * 2)
	if err != nil {
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeReceive, "body read failed", err)
	}

	raw := append([]byte{op, lenWords}, rest...)
	body, err := parseResponseFrame(raw)
	if err != nil {
		b.writeFull([]byte{ackFail})
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeCRC, "response CRC mismatch", err)
	}
	if err := b.writeFull([]byte{ackOK}); err != nil {
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeReceive, "final ack write failed", err)
	}

	return translateResponse(b.node, body, b.lastIndex, b.lastSub), nil
}
