package usb

import (
	"time"

	tty "github.com/daedaluz/goserial"

	log "github.com/sirupsen/logrus"

	"github.com/maxon-epos/eposcan/config"
)

// Port abstracts the FTDI virtual-COM-port I/O primitives spec section 6
// treats as an external collaborator. The example pack carries no FTDI
// D2XX binding; this back-end drives the FTDI device through its Linux
// VCP device node directly via termios2, using daedaluz/goserial's raw
// ioctl wrapper rather than the serial back-end's tarm/serial (which
// lacks custom baud rates and break control, both named in the FTDI
// config schema).
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// openTTYPort opens the FTDI VCP device node from usb config parameters,
// building a raw termios2 line discipline by hand the way
// daedaluz/goserial's own MakeRaw does, then layering baud/data/stop/
// parity/flow/break on top. usb-serial-interface and usb-serial-latency
// have no termios equivalent and are accepted/validated but not enforced
// at this layer.
func openTTYPort(cfg *config.Config) (Port, error) {
	dev, err := cfg.GetString("usb-dev")
	if err != nil {
		return nil, err
	}
	baud, err := cfg.GetInt("usb-serial-baud-rate")
	if err != nil {
		return nil, err
	}
	dataBits, err := cfg.GetInt("usb-serial-data-bits")
	if err != nil {
		return nil, err
	}
	stopBits, err := cfg.GetInt("usb-serial-stop-bits")
	if err != nil {
		return nil, err
	}
	parity, err := cfg.GetString("usb-serial-parity")
	if err != nil {
		return nil, err
	}
	flow, err := cfg.GetString("usb-serial-flow-ctrl")
	if err != nil {
		return nil, err
	}
	brk, err := cfg.GetString("usb-serial-break")
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.GetFloat("usb-serial-timeout")
	if err != nil {
		return nil, err
	}

	iface, _ := cfg.GetString("usb-serial-interface")
	if iface != "" && iface != "any" {
		log.Warnf("usb: interface selector %q requested but not enforced by the underlying port driver", iface)
	}
	latency, _ := cfg.GetFloat("usb-serial-latency")
	if latency > 0 {
		log.Debugf("usb: latency timer %.3fs requested but not exposed by termios (FTDI D2XX-only knob)", latency)
	}

	opts := tty.NewOptions().SetReadTimeout(time.Duration(timeout * float64(time.Second)))
	port, err := tty.Open(dev, opts)
	if err != nil {
		return nil, err
	}

	attrs := &tty.Termios2{}
	attrs.MakeRaw()
	attrs.SetCustomSpeed(uint32(baud))

	attrs.Cflag &^= tty.CSIZE
	if dataBits == 7 {
		attrs.Cflag |= tty.CS7
	} else {
		attrs.Cflag |= tty.CS8
	}
	if stopBits > 1 {
		attrs.Cflag |= tty.CSTOPB
	}
	applyParity(attrs, parity)
	applyFlow(attrs, flow)

	if err := port.SetAttr2(tty.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, err
	}
	if brk == "on" {
		if err := port.SetBreak(); err != nil {
			log.Warnf("usb: failed to assert break condition: %v", err)
		}
	}
	return port, nil
}

func applyParity(attrs *tty.Termios2, parity string) {
	switch parity {
	case "odd":
		attrs.Cflag |= tty.PARENB | tty.PARODD
	case "even":
		attrs.Cflag |= tty.PARENB
	case "mark":
		attrs.Cflag |= tty.PARENB | tty.PARODD | tty.CMSPAR
	case "space":
		attrs.Cflag |= tty.PARENB | tty.CMSPAR
	}
}

func applyFlow(attrs *tty.Termios2, flow string) {
	switch flow {
	case "rts_cts":
		attrs.Cflag |= tty.CRTSCTS
	case "xon_xoff":
		attrs.Iflag |= tty.IXON | tty.IXOFF
	case "dtr_dsr":
		log.Warnf("usb: dtr_dsr flow control requested but not enforced by the underlying port driver")
	}
}
