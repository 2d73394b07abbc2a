package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxon-epos/eposcan"
)

func TestLeWordsMostSignificantFirstRoundTrips(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	wire := leWordsMostSignificantFirst(data)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, wire)
	assert.Equal(t, data, leBytesFromWireWords(wire))
}

func TestLeWordsMostSignificantFirstPadsOddLength(t *testing.T) {
	wire := leWordsMostSignificantFirst([]byte{0x0F})
	assert.Equal(t, []byte{0x00, 0x0F}, wire)
}

func TestBuildRequestWireForWriteFour(t *testing.T) {
	cob := eposcan.SDOBuildSend(3, eposcan.SDOCCSDownloadInit, eposcan.SDOTransferExpedited, 0x6040, 0, []byte{0x0F, 0x00, 0x00, 0x00})
	frame := eposcan.NewFrame(sdoRecvBase+3, false, cob.Data[:cob.Length], int(cob.Length))

	buf := buildRequestWire(frame)
	// op, len_words, idx_hi, idx_lo, node, sub, d2_hi, d2_lo, d1_hi, d1_lo, crc_hi, crc_lo
	require.Len(t, buf, 12)
	assert.Equal(t, opWrite, buf[0])
	assert.Equal(t, byte(3), buf[1]) // len_words
	assert.Equal(t, byte(0x60), buf[2])
	assert.Equal(t, byte(0x40), buf[3])
	assert.Equal(t, byte(3), buf[4]) // node
	assert.Equal(t, byte(0), buf[5])
	assert.Equal(t, []byte{0, 0, 0, 0x0F}, buf[6:10])
	assert.Equal(t, []byte{0, 0}, buf[10:12])
}

func TestBuildRequestWireForRead(t *testing.T) {
	cob := eposcan.SDOBuildSend(5, eposcan.SDOCCSUploadInit, eposcan.SDOTransferExpedited, 0x1018, 1, nil)
	frame := eposcan.NewFrame(sdoRecvBase+5, false, cob.Data[:cob.Length], int(cob.Length))

	buf := buildRequestWire(frame)
	assert.Equal(t, opRead, buf[0])
	assert.Equal(t, byte(1), buf[1]) // len_words
	require.Len(t, buf, 8)           // header(2) + idx/node/sub(4) + crc(2)
}

func TestBuildRawCANWireForNonSDOFrame(t *testing.T) {
	frame := eposcan.NewFrame(0x123, false, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 8)
	buf := buildRequestWire(frame)
	assert.Equal(t, opSendRawCAN, buf[0])
	assert.Equal(t, byte(3), buf[1])
	require.Len(t, buf, 14) // header(2) + id(2) + data(8) + crc(2)
	assert.Equal(t, byte(0x01), buf[2])
	assert.Equal(t, byte(0x23), buf[3])
}

func TestFinalizeFrameRoundTripsThroughParseResponseFrame(t *testing.T) {
	buf := []byte{opResponse, 1, 0, 0, 0, 0, 0, 0}
	finalizeFrame(buf)
	body, err := parseResponseFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{opResponse, 1, 0, 0, 0, 0}, body)
}

func TestParseResponseFrameDetectsCorruption(t *testing.T) {
	buf := []byte{opResponse, 1, 0, 0, 0, 0, 0, 0}
	finalizeFrame(buf)
	buf[3] ^= 0xFF
	_, err := parseResponseFrame(buf)
	require.Error(t, err)
}

func TestTranslateResponseBuildsAbortOnNonZeroStatus(t *testing.T) {
	body := []byte{opResponse, 1, 0x05, 0x03, 0x00, 0x20}
	frame := translateResponse(3, body, 0x6040, 0x02)
	assert.Equal(t, sdoAbortCommand, frame.Data[0])
	assert.Equal(t, []byte{0x60, 0x40, 0x02}, frame.Data[1:4])
	assert.Equal(t, []byte{0x05, 0x03, 0x00, 0x20}, frame.Data[4:8])
}

func TestSDORequestIndexSubExtractsFromSDORequest(t *testing.T) {
	cob := eposcan.SDOBuildSend(3, eposcan.SDOCCSDownloadInit, eposcan.SDOTransferExpedited, 0x6040, 2, []byte{0x0F, 0x00, 0x00, 0x00})
	frame := eposcan.NewFrame(sdoRecvBase+3, false, cob.Data[:cob.Length], int(cob.Length))

	index, sub, ok := sdoRequestIndexSub(frame)
	require.True(t, ok)
	assert.Equal(t, uint16(0x6040), index)
	assert.Equal(t, byte(2), sub)
}

func TestSDORequestIndexSubIgnoresNonSDOFrame(t *testing.T) {
	frame := eposcan.NewFrame(0x123, false, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 8)
	_, _, ok := sdoRequestIndexSub(frame)
	assert.False(t, ok)
}
