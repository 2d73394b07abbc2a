package eposcan

import (
	log "github.com/sirupsen/logrus"

	"github.com/maxon-epos/eposcan/config"
)

// Backend is the contract every transport (CPC, serial, USB) implements,
// per spec section 6: acquire/release a handle and move raw Frames. The
// generic Device drives it; framing, CRC and EPOS SDO translation live
// entirely on the back-end side of this boundary.
type Backend interface {
	Open() error
	Close() error
	SendFrame(frame Frame) error
	ReceiveFrame() (Frame, error)
}

// Device is the generic, back-end-agnostic handle described in spec
// section 4.3: a transport handle plus configuration, a per-device copy
// of the connection set, counters, a reference count for idempotent
// open/close, and the last error raised by any operation.
type Device struct {
	backend     Backend
	config      *config.Config
	connections *ConnectionSet
	metrics     *Metrics

	refCount   int
	lastError  error
	sentCount  uint64
	recvCount  uint64
}

// NewDevice builds a Device around an already-constructed back-end (the
// back-end package is responsible for turning its own config.Config into
// whatever handle it needs at Open time). The connection set starts as a
// copy of the predefined default, per spec section 5 ("each device's
// working connection set is an independent copy").
func NewDevice(backend Backend, cfg *config.Config) *Device {
	return &Device{
		backend:     backend,
		config:      cfg,
		connections: NewDefaultConnectionSet(),
		metrics:     NewMetrics(),
	}
}

// Connections returns the device's working connection set, which callers
// may extend with Add before or after Open.
func (d *Device) Connections() *ConnectionSet {
	return d.connections
}

// Metrics returns the device's Prometheus counters.
func (d *Device) Metrics() *Metrics {
	return d.metrics
}

// LastError returns the error recorded by the most recent operation, or
// nil if none failed yet.
func (d *Device) LastError() error {
	return d.lastError
}

func (d *Device) fail(err error) error {
	d.lastError = err
	d.metrics.countError(err)
	return err
}

// Open acquires the back-end handle if this is the first Open on a
// closed device; nested Opens just bump the reference count, per spec
// section 4.3 and the reference-counting scenario of section 8.
func (d *Device) Open() error {
	if d.refCount == 0 {
		if err := d.backend.Open(); err != nil {
			return d.fail(Blame(CodeOpen, "backend open failed", err))
		}
		log.Debug("eposcan: device opened")
	}
	d.refCount++
	d.metrics.OpenTotal.Inc()
	return nil
}

// Close decrements the reference count and releases the back-end handle
// once it reaches zero. Closing an already-closed device fails with
// CodeClose, per spec section 4.3.
func (d *Device) Close() error {
	if d.refCount == 0 {
		return d.fail(NewError(CodeClose, "device already closed (reference count is 0)"))
	}
	d.refCount--
	if d.refCount == 0 {
		if err := d.backend.Close(); err != nil {
			return d.fail(Blame(CodeClose, "backend close failed", err))
		}
		log.Debug("eposcan: device closed")
	}
	d.metrics.CloseTotal.Inc()
	return nil
}

// SendFrame delegates to the back-end and, on success, increments the
// sent-frame counter.
func (d *Device) SendFrame(frame Frame) error {
	if d.refCount == 0 {
		return d.fail(NewError(CodeSend, "communication device unavailable (not open)"))
	}
	if err := d.backend.SendFrame(frame); err != nil {
		return d.fail(Blame(CodeSend, "backend send failed", err))
	}
	d.sentCount++
	d.metrics.FramesSent.Inc()
	return nil
}

// ReceiveFrame delegates to the back-end and, on success, increments the
// received-frame counter.
func (d *Device) ReceiveFrame() (Frame, error) {
	if d.refCount == 0 {
		return Frame{}, d.fail(NewError(CodeReceive, "communication device unavailable (not open)"))
	}
	frame, err := d.backend.ReceiveFrame()
	if err != nil {
		return Frame{}, d.fail(Blame(CodeReceive, "backend receive failed", err))
	}
	d.recvCount++
	d.metrics.FramesRecv.Inc()
	return frame, nil
}

// SendCOB converts cob to a wire frame using the connection registered
// for (service, DirectionReceive) — the host sends on the remote
// service's receive side, per spec section 4.3 — and sends it.
func (d *Device) SendCOB(service Service, cob COB) error {
	i := d.connections.FindByService(service, DirectionReceive)
	if i < 0 {
		return d.fail(NewError(CodeConnection, "no connection registered for service"))
	}
	conn := d.connections.At(i)
	if uint16(cob.NodeID) > conn.Range-1 {
		return d.fail(NewError(CodeConvert, "node id exceeds connection range"))
	}
	if cob.Protocol != conn.Protocol {
		return d.fail(NewError(CodeConvert, "cob protocol does not match connection"))
	}
	frame := NewFrame(conn.Base+uint16(cob.NodeID), cob.RTR, cob.Data[:cob.Length], int(cob.Length))
	if err := d.SendFrame(frame); err != nil {
		return err
	}
	d.metrics.COBsSent.Inc()
	return nil
}

// ReceiveCOB receives a wire frame and reconstructs the CANopen COB it
// carries, per spec section 4.3. The frame's COB-ID must fall inside a
// registered connection whose direction is DirectionReceive; a COB-ID
// registered as DirectionSend is one the host itself transmits on, so a
// frame arriving there is unexpected and fails with CodeConnection.
func (d *Device) ReceiveCOB() (Service, COB, error) {
	frame, err := d.ReceiveFrame()
	if err != nil {
		return 0, COB{}, err
	}
	i := d.connections.FindByCOBID(frame.ID)
	if i < 0 {
		return 0, COB{}, d.fail(NewError(CodeConnection, "cob-id not in any registered connection"))
	}
	conn := d.connections.At(i)
	if conn.Direction == DirectionSend {
		return 0, COB{}, d.fail(NewError(CodeConnection, "received frame on a host-send connection"))
	}
	nodeID := uint8(frame.ID - conn.Base)
	cob := NewCOB(conn.Protocol, nodeID, frame.RTR, frame.Data[:frame.Length], int(frame.Length))
	d.metrics.COBsRecv.Inc()
	return conn.Service, cob, nil
}
