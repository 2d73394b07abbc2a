package crc

// ByteReorder swaps each adjacent pair of bytes starting at offset 2,
// leaving the opcode/length header (bytes 0-1) untouched. It is an
// involution: applying it twice restores the original buffer. Returns the
// number of bytes touched.
func ByteReorder(data []byte) int {
	touched := 0
	for i := 2; i+1 < len(data); i += 2 {
		data[i], data[i+1] = data[i+1], data[i]
		touched += 2
	}
	return touched
}

// WordReorder swaps each adjacent pair of 16-bit words (4 bytes at a
// time) starting at offset 2, excluding the trailing CRC word. It is an
// involution when the number of words in range is even. Returns the
// number of bytes touched.
func WordReorder(data []byte) int {
	// Body runs from offset 2 up to, but excluding, the trailing 2-byte
	// CRC word.
	end := len(data) - 2
	touched := 0
	for i := 2; i+3 < end; i += 4 {
		data[i], data[i+2] = data[i+2], data[i]
		data[i+1], data[i+3] = data[i+3], data[i+1]
		touched += 4
	}
	return touched
}
