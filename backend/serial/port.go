package serial

import (
	"time"

	"github.com/tarm/serial"

	log "github.com/sirupsen/logrus"

	"github.com/maxon-epos/eposcan/config"
)

// Port abstracts the RS-232 I/O primitives (open/close/setup/read/write)
// spec section 6 treats as an external collaborator, grounded on the
// teacher pack's tarm/serial usage pattern.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// openTarmPort opens an RS-232 port from serial config parameters.
// tarm/serial has no flow-control knob; serial-flow-ctrl is accepted and
// validated but otherwise unenforced at this layer, a documented
// limitation rather than a silent one.
func openTarmPort(cfg *config.Config) (Port, error) {
	dev, err := cfg.GetString("serial-dev")
	if err != nil {
		return nil, err
	}
	baud, err := cfg.GetInt("serial-baud-rate")
	if err != nil {
		return nil, err
	}
	dataBits, err := cfg.GetInt("serial-data-bits")
	if err != nil {
		return nil, err
	}
	stopBits, err := cfg.GetInt("serial-stop-bits")
	if err != nil {
		return nil, err
	}
	parity, err := cfg.GetString("serial-parity")
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.GetFloat("serial-timeout")
	if err != nil {
		return nil, err
	}

	flow, _ := cfg.GetString("serial-flow-ctrl")
	if flow != "" && flow != "off" {
		log.Warnf("serial: flow control %q requested but not enforced by the underlying port driver", flow)
	}

	sc := &serial.Config{
		Name:        dev,
		Baud:        baud,
		Size:        byte(dataBits),
		StopBits:    serial.StopBits(stopBits),
		Parity:      parityFromString(parity),
		ReadTimeout: time.Duration(timeout * float64(time.Second)),
	}
	return serial.OpenPort(sc)
}

func parityFromString(p string) serial.Parity {
	switch p {
	case "odd":
		return serial.ParityOdd
	case "even":
		return serial.ParityEven
	default:
		return serial.ParityNone
	}
}
