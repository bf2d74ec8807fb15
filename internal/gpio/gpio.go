package gpio

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/greenside/irrigation-controller/internal/pinctrl"
)

// PinMode selects the direction and pull configuration of a pin.
type PinMode int

const (
	Output PinMode = iota
	Input
	InputPullUp
)

// Backend is the hardware contract consumed by the shift-register driver and
// the sensor debouncers. Implementations must tolerate being called once per
// bit per apply cycle.
type Backend interface {
	PinMode(pin int, mode PinMode) error
	DigitalWrite(pin int, high bool) error
	DigitalRead(pin int) (bool, error)
}

// Pinctrl drives real header pins by shelling out to the Raspberry Pi
// `pinctrl` utility, the userspace path that works on Pi 5 where the legacy
// sysfs interface is gone.
type Pinctrl struct{}

func NewPinctrl() *Pinctrl {
	return &Pinctrl{}
}

func (p *Pinctrl) PinMode(pin int, mode PinMode) error {
	switch mode {
	case Output:
		return pinctrl.SetPin(pin, "op", "pn", "dl")
	case Input:
		return pinctrl.SetPin(pin, "ip", "pn")
	case InputPullUp:
		return pinctrl.SetPin(pin, "ip", "pu")
	default:
		return fmt.Errorf("unknown pin mode %d", mode)
	}
}

func (p *Pinctrl) DigitalWrite(pin int, high bool) error {
	if high {
		return pinctrl.SetPin(pin, "op", "pn", "dh")
	}
	return pinctrl.SetPin(pin, "op", "pn", "dl")
}

func (p *Pinctrl) DigitalRead(pin int) (bool, error) {
	return pinctrl.ReadLevel(pin)
}

// ValidateBootPins checks that the output-enable pin is still held high
// (outputs tristated) before the controller takes over, guarding against a
// boot where the shift registers came up driving solenoids.
func ValidateBootPins(outputEnablePin int) error {
	state, err := pinctrl.ReadPin(outputEnablePin)
	if err != nil {
		return err
	}
	if state.Mode == "op" && state.Drive == "dl" {
		return fmt.Errorf("output-enable pin %d is already driven low at startup", outputEnablePin)
	}
	return nil
}

// Demo is an in-memory backend for running the daemon off-Pi. Writes are
// retained so reads observe them; sensor pins read as the idle level.
type Demo struct {
	levels map[int]bool
}

func NewDemo() *Demo {
	return &Demo{levels: make(map[int]bool)}
}

func (d *Demo) PinMode(pin int, mode PinMode) error {
	log.Debug().Int("pin", pin).Int("mode", int(mode)).Msg("demo pin mode")
	if mode == InputPullUp {
		d.levels[pin] = true
	}
	return nil
}

func (d *Demo) DigitalWrite(pin int, high bool) error {
	d.levels[pin] = high
	return nil
}

func (d *Demo) DigitalRead(pin int) (bool, error) {
	return d.levels[pin], nil
}
