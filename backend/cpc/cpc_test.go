package cpc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxon-epos/eposcan"
	"github.com/maxon-epos/eposcan/config"
)

// fakeBus is an in-process Bus used to drive Backend without a real
// channel or TCP server.
type fakeBus struct {
	connectErr error
	closeErr   error
	sendErr    error
	sendErrs   []error // consumed in order by Send, used for retry tests
	handler    func(eposcan.Frame)
	sent       []eposcan.Frame
	rtrSent    []eposcan.Frame
}

func (f *fakeBus) Connect() error { return f.connectErr }
func (f *fakeBus) Close() error   { return f.closeErr }

func (f *fakeBus) Send(frame eposcan.Frame) error {
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	} else if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeBus) SendRTR(frame eposcan.Frame) error {
	f.rtrSent = append(f.rtrSent, frame)
	return nil
}

func (f *fakeBus) Subscribe(handler func(eposcan.Frame)) error {
	f.handler = handler
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(config.CPCSchema)
	require.NoError(t, cfg.Set("cpc-timeout", "0.05"))
	return cfg
}

func TestNewComputesBitTiming(t *testing.T) {
	cfg := testConfig(t)
	backend, err := New(cfg, &fakeBus{})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.timing.BRP)
	assert.Equal(t, byte(0x00), backend.timing.BTR0)
	assert.Equal(t, byte(0x14), backend.timing.BTR1)
}

func TestOpenConnectsAndSubscribes(t *testing.T) {
	bus := &fakeBus{}
	backend, err := New(testConfig(t), bus)
	require.NoError(t, err)
	require.NoError(t, backend.Open())
	assert.NotNil(t, bus.handler)
}

func TestOpenWrapsConnectError(t *testing.T) {
	bus := &fakeBus{connectErr: errors.New("device busy")}
	backend, err := New(testConfig(t), bus)
	require.NoError(t, err)
	err = backend.Open()
	require.Error(t, err)
	var coErr *eposcan.Error
	require.ErrorAs(t, err, &coErr)
	assert.Equal(t, eposcan.CodeOpen, coErr.Code)
}

func TestSendFrameDelegatesToBus(t *testing.T) {
	bus := &fakeBus{}
	backend, err := New(testConfig(t), bus)
	require.NoError(t, err)
	frame := eposcan.NewFrame(0x601, false, []byte{1, 2, 3}, 3)
	require.NoError(t, backend.SendFrame(frame))
	require.Len(t, bus.sent, 1)
	assert.Equal(t, frame, bus.sent[0])
}

func TestSendFrameRoutesRTRToDedicatedCall(t *testing.T) {
	bus := &fakeBus{}
	backend, err := New(testConfig(t), bus)
	require.NoError(t, err)
	frame := eposcan.NewFrame(0x601, true, nil, 0)
	require.NoError(t, backend.SendFrame(frame))
	require.Len(t, bus.rtrSent, 1)
	assert.Empty(t, bus.sent)
}

func TestSendFrameRetriesOnNoTransmitBuffer(t *testing.T) {
	bus := &fakeBus{sendErrs: []error{ErrNoTransmitBuffer, ErrNoTransmitBuffer, nil}}
	backend, err := New(testConfig(t), bus)
	require.NoError(t, err)
	frame := eposcan.NewFrame(0x601, false, []byte{9}, 1)
	require.NoError(t, backend.SendFrame(frame))
	require.Len(t, bus.sent, 1)
}

func TestSendFrameTimesOutWhenBufferNeverFrees(t *testing.T) {
	bus := &fakeBus{sendErr: ErrNoTransmitBuffer}
	backend, err := New(testConfig(t), bus)
	require.NoError(t, err)
	frame := eposcan.NewFrame(0x601, false, []byte{9}, 1)
	err = backend.SendFrame(frame)
	require.Error(t, err)
	var coErr *eposcan.Error
	require.ErrorAs(t, err, &coErr)
	assert.Equal(t, eposcan.CodeTimeout, coErr.Code)
}

func TestSendFrameWrapsOtherBusErrors(t *testing.T) {
	bus := &fakeBus{sendErr: errors.New("bus down")}
	backend, err := New(testConfig(t), bus)
	require.NoError(t, err)
	err = backend.SendFrame(eposcan.NewFrame(0x601, false, nil, 0))
	require.Error(t, err)
	var coErr *eposcan.Error
	require.ErrorAs(t, err, &coErr)
	assert.Equal(t, eposcan.CodeSend, coErr.Code)
}

func TestReceiveFrameReturnsQueuedFrameInOrder(t *testing.T) {
	bus := &fakeBus{}
	backend, err := New(testConfig(t), bus)
	require.NoError(t, err)
	require.NoError(t, backend.Open())

	first := eposcan.NewFrame(0x201, false, []byte{1}, 1)
	second := eposcan.NewFrame(0x202, false, []byte{2}, 1)
	bus.handler(first)
	bus.handler(second)

	got1, err := backend.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, first, got1)

	got2, err := backend.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, second, got2)
}

func TestReceiveFrameTimesOutWhenEmpty(t *testing.T) {
	backend, err := New(testConfig(t), &fakeBus{})
	require.NoError(t, err)
	start := time.Now()
	_, err = backend.ReceiveFrame()
	require.Error(t, err)
	var coErr *eposcan.Error
	require.ErrorAs(t, err, &coErr)
	assert.Equal(t, eposcan.CodeTimeout, coErr.Code)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestReceiveQueueDropsIncomingOnOverflowWithoutBlocking(t *testing.T) {
	bus := &fakeBus{}
	backend, err := New(testConfig(t), bus)
	require.NoError(t, err)
	require.NoError(t, backend.Open())

	for i := 0; i < queueDepth+5; i++ {
		bus.handler(eposcan.NewFrame(uint16(i), false, nil, 0))
	}
	backend.mu.Lock()
	queued := len(backend.queue)
	dropped := backend.dropped
	backend.mu.Unlock()
	assert.Equal(t, queueDepth, queued)
	assert.Equal(t, uint64(5), dropped)
}

func TestCloseWrapsBusError(t *testing.T) {
	bus := &fakeBus{closeErr: errors.New("already closed")}
	backend, err := New(testConfig(t), bus)
	require.NoError(t, err)
	err = backend.Close()
	require.Error(t, err)
	var coErr *eposcan.Error
	require.ErrorAs(t, err, &coErr)
	assert.Equal(t, eposcan.CodeClose, coErr.Code)
}
