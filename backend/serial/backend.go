package serial

import (
	"github.com/maxon-epos/eposcan"
	"github.com/maxon-epos/eposcan/config"
)

// Backend implements eposcan.Backend over an RS-232 link speaking the
// EPOS opcode/handshake protocol of spec section 4.5.
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

// New builds a Backend from serial config parameters. The port itself is
// acquired lazily in Open, matching the generic device's open/close
// lifecycle (device.go only calls Open when its reference count reaches
// zero).
func New(cfg *config.Config) (*Backend, error) {
	node, err := cfg.GetInt("serial-node")
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
		return eposcan.NewError(eposcan.CodeOpen, "serial backend constructed without config or port")
	}
	port, err := openTarmPort(b.cfg)
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

func (b *Backend) readByte() (byte, error) {
	buf := make([]byte, 1)
	if err := b.readFull(buf); err != nil {
		return 0, err
	}
	return buf[0], nil
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
	ack, err := b.readByte()
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

// SendFrame runs the send-side handshake of spec section 4.5: opcode
// byte, ack, remaining bytes, final ack. A FAIL ack at either point
// aborts the send (spec section 9 resolves this as the correct, not the
// legacy "continue anyway", behaviour).
func (b *Backend) SendFrame(frame eposcan.Frame) error {
	if index, sub, ok := sdoRequestIndexSub(frame); ok {
		b.lastIndex, b.lastSub = index, sub
	}

	buf := buildRequestWire(frame)
	finalizeFrame(buf)

	if err := b.writeFull(buf[:1]); err != nil {
		return eposcan.Blame(eposcan.CodeSend, "opcode write failed", err)
	}
	if err := b.expectAck(); err != nil {
		return err
	}
	if err := b.writeFull(buf[1:]); err != nil {
		return eposcan.Blame(eposcan.CodeSend, "frame body write failed", err)
	}
	return b.expectAck()
}

// ReceiveFrame runs the receive-side handshake: the response opcode
// must be 0x00, then length-prefixed body bytes are read, CRC-verified,
// un-reordered and translated back to CANopen SDO semantics.
func (b *Backend) ReceiveFrame() (eposcan.Frame, error) {
	op, err := b.readByte()
	if err != nil {
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeReceive, "opcode read failed", err)
	}
	if op != opResponse {
		return eposcan.Frame{}, eposcan.NewError(eposcan.CodeReceive, "unexpected response opcode")
	}
	if err := b.writeFull([]byte{ackOK}); err != nil {
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeReceive, "ack write failed", err)
	}

	lenWords, err := b.readByte()
	if err != nil {
		return eposcan.Frame{}, eposcan.Blame(eposcan.CodeReceive, "length read failed", err)
	}

	rest := make([]byte, (int(lenWords)+2)*2)
	if err := b.readFull(rest); err != nil {
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
