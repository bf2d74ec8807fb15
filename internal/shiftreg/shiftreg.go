package shiftreg

import (
	"fmt"

	"github.com/greenside/irrigation-controller/internal/gpio"
	"github.com/greenside/irrigation-controller/internal/model"
)

// Change is the outcome of SetBit.
type Change int

const (
	NoChange Change = iota
	TurnedOn
	TurnedOff
)

// Pins identifies the four control lines of the 74HC595 chain.
type Pins struct {
	Latch        int
	Data         int
	Clock        int
	OutputEnable int // active low
}

// Driver owns the in-memory bit image of the shift-register chain. Bits are
// mutated freely during a tick; hardware is touched only in Setup and Apply.
type Driver struct {
	backend gpio.Backend
	pins    Pins
	boards  int
	bits    [model.MaxBoards]byte

	// last applied image, used to skip redundant shifts. A forced reshift
	// happens whenever the enable state changes.
	applied     [model.MaxBoards]byte
	appliedInit bool
	lastEnabled bool
}

func New(backend gpio.Backend, pins Pins, boards int) *Driver {
	if boards < 1 {
		boards = 1
	}
	if boards > model.MaxBoards {
		boards = model.MaxBoards
	}
	return &Driver{backend: backend, pins: pins, boards: boards}
}

// Boards returns the number of active boards.
func (d *Driver) Boards() int {
	return d.boards
}

// SetBoards resizes the chain, clearing bits beyond the new extent.
func (d *Driver) SetBoards(boards int) {
	if boards < 1 || boards > model.MaxBoards {
		return
	}
	for b := boards; b < model.MaxBoards; b++ {
		d.bits[b] = 0
	}
	d.boards = boards
	d.appliedInit = false
}

// Setup configures the four control pins: latch parked high, output-enable
// driven low so the chain's outputs are live.
func (d *Driver) Setup() error {
	for _, pin := range []int{d.pins.Latch, d.pins.Data, d.pins.Clock, d.pins.OutputEnable} {
		if err := d.backend.PinMode(pin, gpio.Output); err != nil {
			return fmt.Errorf("configuring shift register pin %d: %w", pin, err)
		}
	}
	if err := d.backend.DigitalWrite(d.pins.Latch, true); err != nil {
		return err
	}
	return d.backend.DigitalWrite(d.pins.OutputEnable, false)
}

// SetBit updates the in-memory bit for a station. Hardware is untouched
// until the next Apply.
func (d *Driver) SetBit(station int, on bool) Change {
	if station < 0 || station >= d.boards*8 {
		return NoChange
	}
	board := station >> 3
	mask := byte(1) << (station & 7)
	was := d.bits[board]&mask != 0
	if was == on {
		return NoChange
	}
	if on {
		d.bits[board] |= mask
		return TurnedOn
	}
	d.bits[board] &^= mask
	return TurnedOff
}

// Bit reports the in-memory bit for a station.
func (d *Driver) Bit(station int) bool {
	if station < 0 || station >= d.boards*8 {
		return false
	}
	return d.bits[station>>3]&(1<<(station&7)) != 0
}

// ClearAll zeroes the in-memory bits.
func (d *Driver) ClearAll() {
	for i := range d.bits {
		d.bits[i] = 0
	}
}

// ActiveStations returns the station ids whose in-memory bit is set, in
// ascending order.
func (d *Driver) ActiveStations() []int {
	var out []int
	for board := 0; board < d.boards; board++ {
		if d.bits[board] == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if d.bits[board]&(1<<bit) != 0 {
				out = append(out, board*8+bit)
			}
		}
	}
	return out
}

// Apply serializes the bit image to the chain, MSB-first from the highest
// board down so board zero ends up nearest the latch. When enabled is false
// zeros are shifted regardless of the image, which is how device-disable and
// shutdown park every solenoid off. The shift is skipped when the image and
// enable state are unchanged since the last Apply.
func (d *Driver) Apply(enabled bool) error {
	if d.appliedInit && d.lastEnabled == enabled && d.imageApplied(enabled) {
		return nil
	}

	if err := d.backend.DigitalWrite(d.pins.Latch, false); err != nil {
		return err
	}
	for board := d.boards - 1; board >= 0; board-- {
		image := d.bits[board]
		if !enabled {
			image = 0
		}
		for bit := 7; bit >= 0; bit-- {
			if err := d.backend.DigitalWrite(d.pins.Clock, false); err != nil {
				return err
			}
			// data must be stable before the rising clock edge
			if err := d.backend.DigitalWrite(d.pins.Data, image&(1<<bit) != 0); err != nil {
				return err
			}
			if err := d.backend.DigitalWrite(d.pins.Clock, true); err != nil {
				return err
			}
		}
	}
	if err := d.backend.DigitalWrite(d.pins.Latch, true); err != nil {
		return err
	}

	for i := range d.applied {
		d.applied[i] = d.bits[i]
		if !enabled {
			d.applied[i] = 0
		}
	}
	d.appliedInit = true
	d.lastEnabled = enabled
	return nil
}

func (d *Driver) imageApplied(enabled bool) bool {
	for i := 0; i < d.boards; i++ {
		want := d.bits[i]
		if !enabled {
			want = 0
		}
		if d.applied[i] != want {
			return false
		}
	}
	return true
}
