package sensor

import (
	"github.com/greenside/irrigation-controller/internal/gpio"
)

// Type identifies what a binary sensor input measures.
type Type int

const (
	TypeNone Type = 0
	TypeRain Type = 1
	TypeSoil Type = 2
)

// Contact wiring options.
const (
	NormallyClosed = 0
	NormallyOpen   = 1
)

// Transition is the debounced edge reported by Poll.
type Transition int

const (
	NoTransition Transition = iota
	Activated
	Deactivated
)

// MinDelaySeconds is the floor applied to both debounce delays, even when
// configuration asks for less.
const MinDelaySeconds = 5

// Debouncer tracks one binary sensor input through an on/off delay state
// machine. Timers are absolute epoch seconds, not countdowns, so a missed
// tick cannot stretch the delay.
type Debouncer struct {
	backend gpio.Backend
	pin     int

	typ    Type
	option int // NormallyClosed or NormallyOpen

	raw        bool
	active     bool
	onTimer    int64
	offTimer   int64
	onDelay    int64
	offDelay   int64
	lastActive int64
}

func New(backend gpio.Backend, pin int) *Debouncer {
	return &Debouncer{
		backend:  backend,
		pin:      pin,
		option:   NormallyClosed,
		onDelay:  MinDelaySeconds,
		offDelay: MinDelaySeconds,
	}
}

// Setup configures the input pin with its pull-up.
func (d *Debouncer) Setup() error {
	return d.backend.PinMode(d.pin, gpio.InputPullUp)
}

// Configure applies sensor options. Delays below the floor are clamped up.
func (d *Debouncer) Configure(typ Type, option int, onDelay, offDelay int) {
	d.typ = typ
	d.option = option
	d.onDelay = int64(onDelay)
	d.offDelay = int64(offDelay)
	if d.onDelay < MinDelaySeconds {
		d.onDelay = MinDelaySeconds
	}
	if d.offDelay < MinDelaySeconds {
		d.offDelay = MinDelaySeconds
	}
}

func (d *Debouncer) Type() Type      { return d.typ }
func (d *Debouncer) Active() bool    { return d.active }
func (d *Debouncer) Raw() bool       { return d.raw }
func (d *Debouncer) LastActive() int64 { return d.lastActive }

// Poll reads the raw input and advances the debounce state machine. It
// returns the debounced transition, if any, that happened this tick.
func (d *Debouncer) Poll(now int64) (Transition, error) {
	if d.typ == TypeNone {
		return NoTransition, nil
	}

	raw, err := d.backend.DigitalRead(d.pin)
	if err != nil {
		return NoTransition, err
	}
	d.raw = raw

	rawVal := 0
	if raw {
		rawVal = 1
	}
	triggered := rawVal != d.option

	wasActive := d.active
	if triggered {
		if d.onTimer == 0 {
			d.onTimer = now + d.onDelay
			d.offTimer = 0
		} else if now >= d.onTimer {
			d.active = true
		}
	} else {
		if d.offTimer == 0 {
			d.offTimer = now + d.offDelay
			d.onTimer = 0
		} else if now >= d.offTimer {
			d.active = false
		}
	}

	if d.active == wasActive {
		return NoTransition, nil
	}
	if d.active {
		d.lastActive = now
		return Activated, nil
	}
	return Deactivated, nil
}
