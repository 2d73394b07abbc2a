//go:build cpc_cgo

// Package cpc's cgo.go binds the vendor CPC-CAN/CPC-USB SDK for real
// hardware. It is excluded from the default build (see the cpc_cgo build
// tag) so the module still builds without the vendor headers/library
// present; SocketCANBus and VirtualBus cover the no-hardware paths.
package cpc

/*
#cgo LDFLAGS: -lcpcbasic

#include <cpclib.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/maxon-epos/eposcan"
)

// CPCBus drives a real CPC-USB/CPC-CAN channel through the vendor SDK,
// grounded on the OpenChannel/CANInit/Control/SendMsg/SendRTR/Handle/
// AddHandlerEx/GetFdByHandle/CloseChannel/DecodeErrorMsg contract.
type CPCBus struct {
	handle  C.CPC_HANDLE
	timing  BitTiming
	handler func(eposcan.Frame)
	exit    chan struct{}
}

// NewCPCBus opens channel and programs it with the given bit timing,
// the only Bus implementation that actually writes the SJA1000 registers
// ComputeBitTiming derives.
func NewCPCBus(channel int, timing BitTiming) (*CPCBus, error) {
	handle := C.CPC_OpenChannel(C.int(channel))
	if int(handle) < 0 {
		return nil, cpcError(int(handle))
	}
	status := C.CPC_CANInit(handle, C.uchar(timing.BTR0), C.uchar(timing.BTR1))
	if status != C.CPC_ERR_OK {
		C.CPC_CloseChannel(handle)
		return nil, cpcError(int(status))
	}
	status = C.CPC_Control(handle, C.uchar(OutputControl), C.uchar(AcceptanceCode), C.uchar(AcceptanceMask), C.uchar(Mode))
	if status != C.CPC_ERR_OK {
		C.CPC_CloseChannel(handle)
		return nil, cpcError(int(status))
	}
	return &CPCBus{handle: handle, timing: timing, exit: make(chan struct{})}, nil
}

func (c *CPCBus) Connect() error {
	return nil
}

func (c *CPCBus) Close() error {
	if c.handler != nil {
		close(c.exit)
	}
	status := C.CPC_CloseChannel(c.handle)
	if status != C.CPC_ERR_OK {
		return cpcError(int(status))
	}
	return nil
}

func (c *CPCBus) Send(frame eposcan.Frame) error {
	status := C.CPC_SendMsg(c.handle, C.ushort(frame.ID), C.uchar(frame.Length), (*C.uchar)(unsafe.Pointer(&frame.Data[0])))
	return translateSendStatus(status)
}

func (c *CPCBus) SendRTR(frame eposcan.Frame) error {
	status := C.CPC_SendRTR(c.handle, C.ushort(frame.ID))
	return translateSendStatus(status)
}

func translateSendStatus(status C.int) error {
	if status == C.CPC_ERR_NO_TRANSMIT_BUF {
		return ErrNoTransmitBuffer
	}
	if status != C.CPC_ERR_OK {
		return cpcError(int(status))
	}
	return nil
}

// Subscribe starts the reception goroutine: it repeatedly calls
// CPC_HandlePending and, while that reports more frames pending, reads
// each buffered frame with CPC_ReadMsg (deliverOne) and passes it to
// handler. No SDK-side callback is registered.
func (c *CPCBus) Subscribe(handler func(eposcan.Frame)) error {
	c.handler = handler
	go c.handleReception()
	return nil
}

func (c *CPCBus) handleReception() {
	for {
		select {
		case <-c.exit:
			return
		default:
			for C.CPC_HandlePending(c.handle) == C.CPC_HANDLE_MORE_PENDING {
				c.deliverOne()
			}
		}
	}
}

// deliverOne reads the single frame CPC_HandlePending just buffered and
// forwards it to the subscribed handler.
func (c *CPCBus) deliverOne() {
	var id C.ushort
	var length C.uchar
	var rtr C.uchar
	var data [8]C.uchar

	status := C.CPC_ReadMsg(c.handle, &id, &length, &rtr, &data[0])
	if status != C.CPC_ERR_OK || c.handler == nil {
		return
	}
	buf := C.GoBytes(unsafe.Pointer(&data[0]), C.int(length))
	c.handler(eposcan.NewFrame(uint16(id), rtr != 0, buf, int(length)))
}

func cpcError(code int) error {
	if code >= 0 {
		return nil
	}
	msg := [128]C.char{}
	C.CPC_DecodeErrorMsg(C.int(code), &msg[0])
	return fmt.Errorf("cpc: %s (%d)", C.GoString(&msg[0]), code)
}
