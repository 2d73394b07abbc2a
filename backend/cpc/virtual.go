package cpc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maxon-epos/eposcan"
)

// VirtualBus is a TCP-based stand-in CAN channel used for tests and
// local development without real hardware, speaking the same wire format
// as windelbouwman/virtualcan: a 4-byte big-endian length header followed
// by the frame fields in big-endian order.
type VirtualBus struct {
	addr string
	conn net.Conn

	mu        sync.Mutex
	handler   func(eposcan.Frame)
	stopChan  chan struct{}
	wg        sync.WaitGroup
	running   bool
	recvErred bool
}

// NewVirtualBus targets a virtual-CAN server listening on addr (e.g.
// "localhost:18888").
func NewVirtualBus(addr string) *VirtualBus {
	return &VirtualBus{addr: addr, stopChan: make(chan struct{})}
}

func (v *VirtualBus) Connect() error {
	conn, err := net.Dial("tcp", v.addr)
	if err != nil {
		return err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return err
		}
	}
	v.conn = conn
	return nil
}

func (v *VirtualBus) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.running && !v.recvErred {
		close(v.stopChan)
		v.wg.Wait()
	}
	if v.conn != nil {
		return v.conn.Close()
	}
	return nil
}

func (v *VirtualBus) Send(frame eposcan.Frame) error {
	return v.send(frame)
}

// SendRTR sends an RTR frame; the virtual wire format has no dedicated
// RTR bit so the flag travels inside the serialized frame itself.
func (v *VirtualBus) SendRTR(frame eposcan.Frame) error {
	return v.send(frame)
}

func (v *VirtualBus) send(frame eposcan.Frame) error {
	if v.conn == nil {
		return errors.New("no active connection")
	}
	encoded, err := serializeFrame(frame)
	if err != nil {
		return err
	}
	_, err = v.conn.Write(encoded)
	return err
}

func (v *VirtualBus) Subscribe(handler func(eposcan.Frame)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handler = handler
	if v.running {
		return nil
	}
	v.running = true
	v.recvErred = false
	v.stopChan = make(chan struct{})
	v.wg.Add(1)
	go v.receiveLoop()
	return nil
}

func (v *VirtualBus) receiveLoop() {
	defer func() {
		v.mu.Lock()
		v.running = false
		v.mu.Unlock()
		v.wg.Done()
	}()
	for {
		select {
		case <-v.stopChan:
			return
		default:
			frame, err := v.recv()
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if err != nil {
				log.Errorf("cpc: virtual bus receive loop stopped: %v", err)
				v.mu.Lock()
				v.recvErred = true
				v.mu.Unlock()
				return
			}
			if v.handler != nil {
				v.handler(frame)
			}
		}
	}
}

func (v *VirtualBus) recv() (eposcan.Frame, error) {
	v.conn.SetDeadline(time.Now().Add(200 * time.Millisecond))
	header := make([]byte, 4)
	n, err := v.conn.Read(header)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return eposcan.Frame{}, err
	}
	if n < 4 || err != nil {
		return eposcan.Frame{}, fmt.Errorf("virtual bus: short header read (got %d, err %v)", n, err)
	}
	length := binary.BigEndian.Uint32(header)
	payload := make([]byte, length)
	v.conn.SetDeadline(time.Now().Add(200 * time.Millisecond))
	n, err = v.conn.Read(payload)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return eposcan.Frame{}, err
	}
	if n != int(length) || err != nil {
		return eposcan.Frame{}, fmt.Errorf("virtual bus: short payload read (want %d, got %d)", length, n)
	}
	return deserializeFrame(payload)
}

// wireFrame is the on-wire layout: ID, a 0/1 RTR byte, length and the
// 8-byte payload, all big-endian, matching the teacher's serializeFrame.
type wireFrame struct {
	ID     uint16
	RTR    uint8
	Length uint8
	Data   [eposcan.MaxDataLength]byte
}

func serializeFrame(frame eposcan.Frame) ([]byte, error) {
	wf := wireFrame{ID: frame.ID, Length: frame.Length, Data: frame.Data}
	if frame.RTR {
		wf.RTR = 1
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, wf); err != nil {
		return nil, err
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(buf.Len()))
	return append(header, buf.Bytes()...), nil
}

func deserializeFrame(payload []byte) (eposcan.Frame, error) {
	var wf wireFrame
	if err := binary.Read(bytes.NewReader(payload), binary.BigEndian, &wf); err != nil {
		return eposcan.Frame{}, err
	}
	return eposcan.NewFrame(wf.ID, wf.RTR != 0, wf.Data[:], int(wf.Length)), nil
}
