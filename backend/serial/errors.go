package serial

import "errors"

var errCRCMismatch = errors.New("crc mismatch on received frame")
