// Package cpc implements the native-CAN back-end (spec section 4.4):
// SJA1000 bit-timing register computation and the generic device's
// Backend contract mapped onto a CAN channel. The channel itself is a
// small Bus interface so the same send/receive/retry machinery serves a
// real CPC-USB adapter (via the cgo vendor SDK binding, build-tag gated),
// a SocketCAN interface (github.com/brutella/can, adapted from the
// teacher's socketcan.go) or a TCP-based virtual bus used in tests
// (adapted from the teacher's virtual.go).
package cpc

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maxon-epos/eposcan"
	"github.com/maxon-epos/eposcan/config"
)

// ErrNoTransmitBuffer is returned by a Bus's Send/SendRTR when the
// adapter's transmit buffer is momentarily full. Backend.SendFrame treats
// it as retryable rather than fatal, per spec section 4.4.
var ErrNoTransmitBuffer = errors.New("no transmit buffer available")

// Bus is the channel abstraction each CAN transport implements.
type Bus interface {
	Connect() error
	Close() error
	Send(frame eposcan.Frame) error
	SendRTR(frame eposcan.Frame) error
	Subscribe(handler func(eposcan.Frame)) error
}

// queueDepth bounds the receive queue the subscribe callback feeds,
// replacing the teacher source's one-slot "most recent frame wins"
// buffer with a small FIFO that preserves arrival order (spec section 9
// names this as an acceptable enlargement of the historical limitation).
const queueDepth = 32

// Backend adapts a Bus to the generic eposcan.Backend contract.
type Backend struct {
	bus     Bus
	timing  BitTiming
	timeout time.Duration

	mu      sync.Mutex
	queue   []eposcan.Frame
	dropped uint64
}

// New builds a Backend from CPC config parameters and an already
// constructed Bus (SocketCANBus, VirtualBus, or the cgo CPCBus).
func New(cfg *config.Config, bus Bus) (*Backend, error) {
	bitrate, err := cfg.GetInt("cpc-bit-rate")
	if err != nil {
		return nil, err
	}
	quanta, err := cfg.GetInt("cpc-quanta-per-bit")
	if err != nil {
		return nil, err
	}
	samplingPoint, err := cfg.GetFloat("cpc-sampling-point")
	if err != nil {
		return nil, err
	}
	timeoutSec, err := cfg.GetFloat("cpc-timeout")
	if err != nil {
		return nil, err
	}
	timing, err := ComputeBitTiming(bitrate, quanta, samplingPoint)
	if err != nil {
		return nil, eposcan.Blame(eposcan.CodeSetup, "bit timing computation failed", err)
	}
	return &Backend{
		bus:     bus,
		timing:  timing,
		timeout: time.Duration(timeoutSec * float64(time.Second)),
	}, nil
}

// Open connects the bus and subscribes the receive queue, then programs
// the bit timing (logged; the cgo CPCBus is the only Bus implementation
// that actually writes SJA1000 registers, see cgo.go).
func (b *Backend) Open() error {
	if err := b.bus.Connect(); err != nil {
		return eposcan.Blame(eposcan.CodeOpen, "bus connect failed", err)
	}
	if err := b.bus.Subscribe(b.onFrame); err != nil {
		return eposcan.Blame(eposcan.CodeOpen, "bus subscribe failed", err)
	}
	log.WithFields(log.Fields{
		"brp": b.timing.BRP, "tseg1": b.timing.TSeg1, "tseg2": b.timing.TSeg2,
		"btr0": b.timing.BTR0, "btr1": b.timing.BTR1,
	}).Debug("cpc: bit timing programmed")
	return nil
}

// Close releases the bus.
func (b *Backend) Close() error {
	if err := b.bus.Close(); err != nil {
		return eposcan.Blame(eposcan.CodeClose, "bus close failed", err)
	}
	return nil
}

func (b *Backend) onFrame(frame eposcan.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) >= queueDepth {
		b.dropped++
		log.Warnf("cpc: receive queue full, dropping frame (total dropped: %d)", b.dropped)
		return
	}
	b.queue = append(b.queue, frame)
}

// SendFrame transmits frame, retrying on ErrNoTransmitBuffer with a 10us
// sleep until the configured timeout elapses (spec section 4.4). RTR
// frames use the bus's dedicated RTR send call.
func (b *Backend) SendFrame(frame eposcan.Frame) error {
	send := b.bus.Send
	if frame.RTR {
		send = b.bus.SendRTR
	}
	deadline := time.Now().Add(b.timeout)
	for {
		err := send(frame)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNoTransmitBuffer) {
			if time.Now().After(deadline) {
				return eposcan.NewError(eposcan.CodeTimeout, "timed out waiting for transmit buffer")
			}
			time.Sleep(10 * time.Microsecond)
			continue
		}
		return eposcan.Blame(eposcan.CodeSend, "bus send failed", err)
	}
}

// ReceiveFrame returns the oldest queued frame, blocking (polling) until
// one arrives or the configured timeout elapses.
func (b *Backend) ReceiveFrame() (eposcan.Frame, error) {
	deadline := time.Now().Add(b.timeout)
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			frame := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return frame, nil
		}
		b.mu.Unlock()
		if time.Now().After(deadline) {
			return eposcan.Frame{}, eposcan.NewError(eposcan.CodeTimeout, "timed out waiting for frame")
		}
		time.Sleep(200 * time.Microsecond)
	}
}
