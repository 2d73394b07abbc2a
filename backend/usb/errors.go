package usb

import "errors"

var (
	errCRCMismatch    = errors.New("crc mismatch on received frame")
	errBadFrameSync   = errors.New("missing DLE/STX frame sync")
	errBadStuffedByte = errors.New("malformed DLE byte stuffing")
)
