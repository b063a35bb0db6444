package sr830

import (
	"fmt"
	"time"
)

// SR830 remote commands used by the link. The instrument speaks a plain text
// protocol: commands terminated by carriage return, numeric responses in
// ASCII. Settings with enumerated values take the index into the instrument's
// internal table, not the physical value.
const (
	cmdIdentify        = "*IDN?"
	cmdReset           = "*RST"
	cmdOutputInterface = "OUTX %d"   // 0 = RS232, 1 = GPIB
	cmdSineVoltage     = "SLVL %.3f" // VRMS
	cmdRefSource       = "FMOD %d"   // 0 = external, 1 = internal
	cmdFrequency       = "FREQ %.6g" // Hz
	cmdHarmonic        = "HARM %d"
	cmdPhase           = "PHAS %.2f" // degrees
	cmdInputSource     = "ISRC %d"   // 0 = A, 1 = A-B
	cmdInputCoupling   = "ICPL %d"   // 0 = AC, 1 = DC
	cmdInputGround     = "IGND %d"   // 0 = float, 1 = ground
	cmdLineFilter      = "ILIN %d"   // 0 = off
	cmdSensitivity     = "SENS %d"
	cmdReserve         = "RMOD %d" // 0 = high reserve
	cmdSyncFilter      = "SYNC %d" // 1 = on (below 200 Hz)
	cmdTimeConstant    = "OFLT %d"
	cmdFilterSlope     = "OFSL %d"
	cmdChannelDisplay  = "DDEF %d,%d,%d" // channel, display, ratio
	cmdChannelOutput   = "FPOP %d,%d"    // channel, 0 = display
	cmdStatusEnable    = "LIAE %d,%d"    // bit, 1 = enable
	cmdStatus          = "LIAS?"
	cmdSnapshot        = "SNAP?3,4" // 3 = R, 4 = theta
)

// LIAS? status byte bits. Any of the low three spells an overloaded stage,
// which invalidates readings while active.
const (
	statusInputOverload  = 1 << 0
	statusFilterOverload = 1 << 1
	statusOutputOverload = 1 << 2

	statusOverloadMask = statusInputOverload | statusFilterOverload | statusOutputOverload
)

// sensitivity20mV is the SENS index for the 20 mV full-scale range, the
// standard range for the 10 mV drive used here.
const sensitivity20mV = 21

// timeConstantIndex maps a time constant to its OFLT table index. Only the
// values the auto-tuner can produce are mapped.
func timeConstantIndex(tau time.Duration) (int, error) {
	switch tau {
	case time.Millisecond:
		return 4, nil
	case 10 * time.Millisecond:
		return 6, nil
	case 100 * time.Millisecond:
		return 8, nil
	case time.Second:
		return 10, nil
	case 3 * time.Second:
		return 11, nil
	case 10 * time.Second:
		return 12, nil
	case 30 * time.Second:
		return 13, nil
	}
	return 0, fmt.Errorf("no OFLT index for time constant %s", tau)
}

// filterSlopeIndex maps a roll-off in dB/octave to its OFSL table index.
func filterSlopeIndex(slope int) (int, error) {
	switch slope {
	case 6:
		return 0, nil
	case 12:
		return 1, nil
	case 18:
		return 2, nil
	case 24:
		return 3, nil
	}
	return 0, fmt.Errorf("no OFSL index for slope %d dB/octave", slope)
}
