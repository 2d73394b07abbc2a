package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteReorderInvolution(t *testing.T) {
	buf := []byte{0x10, 0x01, 0x60, 0x40, 0xAA, 0xBB}
	orig := append([]byte(nil), buf...)
	ByteReorder(buf)
	assert.NotEqual(t, orig, buf)
	ByteReorder(buf)
	assert.Equal(t, orig, buf)
}

func TestByteReorderLeavesHeaderAlone(t *testing.T) {
	buf := []byte{0x11, 0x03, 0x60, 0x40, 0x00, 0x05, 0x00, 0x00}
	ByteReorder(buf)
	assert.EqualValues(t, 0x11, buf[0])
	assert.EqualValues(t, 0x03, buf[1])
}

func TestWordReorderInvolution(t *testing.T) {
	buf := []byte{0x11, 0x03, 0x60, 0x40, 0x00, 0x05, 0x0F, 0x00, 0xCA, 0xFE}
	orig := append([]byte(nil), buf...)
	WordReorder(buf)
	assert.NotEqual(t, orig, buf)
	WordReorder(buf)
	assert.Equal(t, orig, buf)
}
