package cpc

import (
	"errors"
	"fmt"
	"math"
)

// oscillatorHz is the SJA1000 crystal frequency assumed throughout (spec
// section 4.4): 16 MHz.
const oscillatorHz = 16e6

// syncJumpWidth and tripleSampling are fixed per spec section 4.4.
const (
	syncJumpWidth  = 1
	tripleSampling = 0
)

// outputControl, acceptance code/mask and mode are the fixed SJA1000
// register values spec section 4.4 mandates regardless of bitrate.
const (
	OutputControl  byte = 0xDA
	AcceptanceCode byte = 0xFF
	AcceptanceMask byte = 0xFF
	Mode           byte = 0x00
)

// BitTiming holds the SJA1000 bus-timing registers computed for a given
// bitrate/quanta/sampling-point triple.
type BitTiming struct {
	BRP    int
	TSeg1  int
	TSeg2  int
	BTR0   byte
	BTR1   byte
}

// ComputeBitTiming derives SJA1000 btr0/btr1 from bitrate (kbit/s),
// quanta-per-bit and sampling point (fraction of bit time), assuming the
// 16 MHz oscillator and fixed sync-jump-width=1, triple-sampling=0 of
// spec section 4.4.
//
// brp = round(t_bit * f_osc / (2 * q)) where t_bit = 1/(bitrate*1e3).
// This reproduces the section 8 worked example (bitrate=1000, q=8,
// sp=0.75 -> brp=1, tseg1=6, tseg2=2, btr0=0x00, btr1=0x14); the
// prose formula in section 4.7 omits a factor of 8 in the denominator
// and is treated as the typo (see DESIGN.md).
func ComputeBitTiming(bitrateKbps int, quantaPerBit int, samplingPoint float64) (BitTiming, error) {
	if bitrateKbps <= 0 {
		return BitTiming{}, errors.New("bitrate must be positive")
	}
	if quantaPerBit < 8 || quantaPerBit > 16 {
		return BitTiming{}, fmt.Errorf("quanta-per-bit %d out of range [8,16]", quantaPerBit)
	}
	if samplingPoint < 0.75 || samplingPoint > 0.875 {
		return BitTiming{}, fmt.Errorf("sampling point %g out of range [0.75,0.875]", samplingPoint)
	}

	tBit := 1 / (float64(bitrateKbps) * 1e3)
	brp := int(math.Round(tBit * oscillatorHz / (2 * float64(quantaPerBit))))
	tseg1 := int(math.Round(float64(quantaPerBit) * samplingPoint))
	tseg2 := quantaPerBit - tseg1

	if brp < 1 || brp > 64 {
		return BitTiming{}, fmt.Errorf("brp %d out of range [1,64]", brp)
	}
	if tseg1 < 1 || tseg2 < 1 {
		return BitTiming{}, fmt.Errorf("degenerate segment split (tseg1=%d, tseg2=%d)", tseg1, tseg2)
	}

	btr0 := byte((syncJumpWidth-1)<<6) | byte(brp-1)
	btr1 := byte(tripleSampling<<7) | byte((tseg2-1)<<4) | byte(tseg1-2)

	return BitTiming{BRP: brp, TSeg1: tseg1, TSeg2: tseg2, BTR0: btr0, BTR1: btr1}, nil
}
