// Command eposcan is a small SDO read client exercising the
// library end to end over any one of the three back-ends, grounded on
// the teacher pack's cmd/sdo_client in spirit: a flag-driven one-shot
// CLI rather than a long-running server.
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/maxon-epos/eposcan"
	"github.com/maxon-epos/eposcan/backend/cpc"
	"github.com/maxon-epos/eposcan/backend/serial"
	"github.com/maxon-epos/eposcan/backend/usb"
	"github.com/maxon-epos/eposcan/config"
)

func main() {
	backendName := flag.String("backend", "serial", "transport back-end: cpc, serial or usb")
	socketCANIf := flag.String("cpc-socketcan-if", "can0", "SocketCAN interface name (cpc back-end only)")
	node := flag.Uint("node", 1, "EPOS node id to address")
	index := flag.Uint("index", 0x1018, "object dictionary index to read")
	subindex := flag.Uint("subindex", 1, "object dictionary sub-index to read")
	verbose := flag.Bool("v", false, "enable debug logging")

	bindings := map[string]*config.Binding{
		"cpc":    config.RegisterFlags(flag.CommandLine, "can", config.CPCSchema),
		"serial": config.RegisterFlags(flag.CommandLine, "can", config.SerialSchema),
		"usb":    config.RegisterFlags(flag.CommandLine, "can", config.USBSchema),
	}
	flag.Parse()

	binding, ok := bindings[*backendName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown backend %q: want cpc, serial or usb\n", *backendName)
		os.Exit(2)
	}

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := binding.Config()
	if err != nil {
		log.Fatalf("eposcan: config: %v", err)
	}

	backend, err := newBackend(*backendName, cfg, *socketCANIf)
	if err != nil {
		log.Fatalf("eposcan: %v", err)
	}

	dev := eposcan.NewDevice(backend, cfg)
	if err := dev.Open(); err != nil {
		log.Fatalf("eposcan: open: %v", err)
	}
	defer dev.Close()

	readCOB := eposcan.SDOBuildSend(uint8(*node), eposcan.SDOCCSUploadInit, eposcan.SDOTransferExpedited, uint16(*index), uint8(*subindex), nil)
	if err := dev.SendCOB(eposcan.ServiceSDO, readCOB); err != nil {
		log.Fatalf("eposcan: send: %v", err)
	}

	_, resp, err := dev.ReceiveCOB()
	if err != nil {
		log.Fatalf("eposcan: receive: %v", err)
	}

	if resp.SDOCCS() == int(eposcan.SDOCCSAbort) {
		fmt.Printf("node %d index 0x%04X:%d aborted, code=% x\n", *node, *index, *subindex, resp.Data[4:8])
		os.Exit(1)
	}
	fmt.Printf("node %d index 0x%04X:%d = % x\n", *node, *index, *subindex, resp.Data[4:8])
}

func newBackend(name string, cfg *config.Config, socketCANIf string) (eposcan.Backend, error) {
	switch name {
	case "cpc":
		bus, err := cpc.NewSocketCANBus(socketCANIf)
		if err != nil {
			return nil, fmt.Errorf("socketcan bus: %w", err)
		}
		return cpc.New(cfg, bus)
	case "serial":
		return serial.New(cfg)
	case "usb":
		return usb.New(cfg)
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}
