package cpc

import (
	"github.com/brutella/can"

	"github.com/maxon-epos/eposcan"
)

// SocketCANBus implements Bus over a Linux SocketCAN interface via
// github.com/brutella/can. Bit timing is configured at the OS level
// (ip link set ... type can bitrate ...) rather than through the SJA1000
// registers computed by ComputeBitTiming, which only the cgo vendor
// binding (cgo.go) programs directly.
type SocketCANBus struct {
	bus     *can.Bus
	handler func(eposcan.Frame)
}

// NewSocketCANBus opens the named SocketCAN interface (e.g. "can0").
func NewSocketCANBus(name string) (*SocketCANBus, error) {
	bus, err := can.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	return &SocketCANBus{bus: bus}, nil
}

func (s *SocketCANBus) Connect() error {
	go s.bus.ConnectAndPublish()
	return nil
}

func (s *SocketCANBus) Close() error {
	return s.bus.Disconnect()
}

func (s *SocketCANBus) Send(frame eposcan.Frame) error {
	return s.bus.Publish(toBrutella(frame))
}

// rtrFlag marks a brutella/can.Frame as a remote-transmission-request.
const rtrFlag uint8 = 0x01

// SendRTR publishes a remote-transmission-request frame.
func (s *SocketCANBus) SendRTR(frame eposcan.Frame) error {
	f := toBrutella(frame)
	f.Flags = rtrFlag
	return s.bus.Publish(f)
}

func (s *SocketCANBus) Subscribe(handler func(eposcan.Frame)) error {
	s.handler = handler
	s.bus.Subscribe(s)
	return nil
}

// Handle implements brutella/can's Handler interface.
func (s *SocketCANBus) Handle(frame can.Frame) {
	if s.handler == nil {
		return
	}
	s.handler(fromBrutella(frame))
}

func toBrutella(frame eposcan.Frame) can.Frame {
	var data [8]byte
	copy(data[:], frame.Data[:])
	return can.Frame{ID: uint32(frame.ID), Length: frame.Length, Data: data}
}

func fromBrutella(frame can.Frame) eposcan.Frame {
	rtr := frame.Flags&rtrFlag != 0
	return eposcan.NewFrame(uint16(frame.ID), rtr, frame.Data[:], int(frame.Length))
}
