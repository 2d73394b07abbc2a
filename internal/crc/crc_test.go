package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCcittSingle(t *testing.T) {
	// A word with no bit above position 3 never drives the CRC register's
	// top bit set, so no polynomial ever gets XORed in and Single just
	// shifts the word's own bits in verbatim.
	crc := CRC16(0)
	crc.Single(10)
	assert.EqualValues(t, 10, crc)
}

func TestCcittMatchesReferenceGroundTruth(t *testing.T) {
	// Ground truth from can_serial_crc_ccitt
	// (_examples/original_source/src/serial/crc.c) over the header/index
	// words [0x10, 0x01, 0x60, 0x40]; this is the value a textbook
	// "XOR word in, then shift 16 times" CRC-CCITT construction gets
	// wrong (it produces 0x54bd instead).
	assert.EqualValues(t, 0x7312, CCITT([]byte{0x10, 0x01, 0x60, 0x40}))
}

func TestCCITTRoundTrip(t *testing.T) {
	buf := []byte{0x10, 0x01, 0x60, 0x40, 0x00, 0x00}
	sum := CCITT(buf)
	buf[4] = byte(sum >> 8)
	buf[5] = byte(sum)
	assert.EqualValues(t, 0, CCITT(buf))
}

func TestSerialCRCRoundTrip(t *testing.T) {
	buf := []byte{0x10, 0x01, 0x60, 0x40, 0x00, 0x00}
	sum := EncodeSerialCRC(buf)
	buf[4] = byte(sum >> 8)
	buf[5] = byte(sum)
	assert.True(t, VerifySerialCRC(buf))
}

func TestUSBCRCRoundTrip(t *testing.T) {
	buf := []byte{0x10, 0x01, 0x60, 0x40, 0x00, 0x00}
	sum := EncodeUSBCRC(buf)
	buf[4] = byte(sum >> 8)
	buf[5] = byte(sum)
	assert.True(t, VerifyUSBCRC(buf))
}

func TestSerialAndUSBVariantsDiverge(t *testing.T) {
	// The two CRC variants must disagree on a buffer with more than one
	// word, since only the USB variant swaps the first word (spec
	// section 9's "real bit-level divergence" note).
	buf := []byte{0x10, 0x01, 0x60, 0x40}
	assert.NotEqual(t, CCITT(buf), USBFirstWordSwapped(buf))
}
