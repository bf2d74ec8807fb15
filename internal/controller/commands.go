package controller

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greenside/irrigation-controller/internal/config"
	"github.com/greenside/irrigation-controller/internal/logstore"
	"github.com/greenside/irrigation-controller/internal/model"
	"github.com/greenside/irrigation-controller/internal/scheduler"
)

// Errors surfaced to the API layer, which maps them to legacy result codes.
var (
	ErrOutOfRange   = errors.New("id out of range")
	ErrBadInput     = errors.New("malformed input")
	ErrCapacity     = errors.New("store at capacity")
	ErrNotPermitted = errors.New("not permitted")
)

// CheckPassword compares an MD5 hex digest against the stored one. The
// ignore_password option waives the check entirely.
func (c *Controller) CheckPassword(digest string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts.Bool(config.OptIgnorePassword) {
		return true
	}
	return digest == c.opts.Str(config.OptPassword)
}

// SetPassword stores a new password from its cleartext, keeping the legacy
// MD5 digest format the UIs expect.
func (c *Controller) SetPassword(cleartext string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sum := md5.Sum([]byte(cleartext))
	c.opts.SetStr(config.OptPassword, hex.EncodeToString(sum[:]))
	c.persistOptionsLocked()
}

// SetRainDelay arms the rain delay for hours from now; zero cancels any
// active delay immediately.
func (c *Controller) SetRainDelay(hours int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hours <= 0 {
		c.rainDelayStop = 0
		c.rainDelayed = false
		log.Info().Msg("Rain delay cancelled")
		return
	}
	c.rainDelayStop = now.Unix() + int64(hours)*3600
	log.Info().Int("hours", hours).Msg("Rain delay set")
}

// SetDeviceEnable flips the master enable; disabled shifts zeros every tick.
func (c *Controller) SetDeviceEnable(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := 0
	if enabled {
		v = 1
	}
	_ = c.opts.SetInt(config.OptDeviceEnable, v)
	c.persistOptionsLocked()
	log.Info().Bool("enabled", enabled).Msg("Device enable changed")
}

// StopAll clears the queue and the sequential fences; bits drop on the next
// tick.
func (c *Controller) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sched.StopAll()
	log.Info().Msg("All stations stopped")
}

// TogglePause pauses the queue for seconds, or resumes if already paused.
func (c *Controller) TogglePause(seconds int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	epoch := now.Unix()

	if c.paused {
		// resume early, pulling the queue back by the unserved remainder
		c.q.ApplyResume(c.pauseTimer)
		c.sched.ShiftSeqStops(-c.pauseTimer + 1)
		c.paused = false
		c.pauseTimer = 0
		log.Info().Msg("Queue resumed")
		return
	}
	if seconds <= 0 {
		return
	}
	c.q.ApplyPause(epoch, int64(seconds))
	c.sched.ShiftSeqStops(int64(seconds))
	c.paused = true
	c.pauseTimer = int64(seconds)
	log.Info().Int("seconds", seconds).Msg("Queue paused")
}

// ManualRun starts or stops one station by hand. Zero seconds stops the
// station; otherwise the run is admitted at the queue front under the
// manual program id.
func (c *Controller) ManualRun(station, seconds int, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if station < 0 || station >= len(c.stations) {
		return ErrOutOfRange
	}
	if seconds == 0 {
		c.q.DequeueStation(station)
		return nil
	}
	res := c.sched.ScheduleStation(c.stations, station, model.ManualProgramID,
		int64(seconds), now.Unix(), scheduler.OptInsertFront)
	switch res {
	case scheduler.Scheduled, scheduler.AlreadyQueued:
		return nil
	case scheduler.StationDisabled:
		return ErrNotPermitted
	default:
		return ErrOutOfRange
	}
}

// RunOnce replaces the queue with a one-shot set of durations, one slot per
// station, under the run-once program id.
func (c *Controller) RunOnce(durations []int, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(durations) == 0 || len(durations) > len(c.stations) {
		return ErrBadInput
	}
	p := model.Program{
		ID:        model.RunOnceProgramID,
		Enabled:   true,
		Durations: durations,
	}
	c.sched.ScheduleProgram(c.stations, &p, now.Unix(), scheduler.OptReplace, nil)
	log.Info().Msg("Run-once queued")
	return nil
}

// RunProgram manually fires a stored program now, bypassing its calendar
// rules but keeping weather scaling if enabled. useWeather false waters the
// raw durations.
func (c *Controller) RunProgram(idx int, useWeather bool, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.programs) {
		return ErrOutOfRange
	}
	p := c.programs[idx]
	if !useWeather {
		p.UseWeather = false
	}
	c.sched.ScheduleProgram(c.stations, &p, now.Unix(), scheduler.OptNone, nil)
	log.Info().Int("program", p.ID).Str("name", p.Name).Msg("Program started manually")
	return nil
}

// Programs returns a copy of the program list.
func (c *Controller) Programs() []model.Program {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Program, len(c.programs))
	copy(out, c.programs)
	return out
}

// SetProgram updates program idx, or appends when idx is -1.
func (c *Controller) SetProgram(idx int, p model.Program) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(p.Durations) > len(c.stations) {
		p.Durations = p.Durations[:len(c.stations)]
	}
	if idx == -1 {
		if len(c.programs) >= model.MaxPrograms {
			return ErrCapacity
		}
		p.ID = c.nextProgramIDLocked()
		c.programs = append(c.programs, p)
	} else {
		if idx < 0 || idx >= len(c.programs) {
			return ErrOutOfRange
		}
		p.ID = c.programs[idx].ID
		c.programs[idx] = p
	}
	c.persistProgramsLocked()
	return nil
}

func (c *Controller) nextProgramIDLocked() int {
	next := 1
	for i := range c.programs {
		if c.programs[i].ID >= next {
			next = c.programs[i].ID + 1
		}
	}
	// reserved ids are never handed out
	for next == model.ManualProgramID || next == model.RunOnceProgramID {
		next++
	}
	return next
}

// DeleteProgram removes program idx and rebuilds the sequential fences so a
// deleted program's queued future runs cannot leave stale serialization.
func (c *Controller) DeleteProgram(idx int, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.programs) {
		return ErrOutOfRange
	}
	pid := c.programs[idx].ID
	c.programs = append(c.programs[:idx], c.programs[idx+1:]...)

	// drop this program's queued items
	for _, it := range c.q.Items() {
		if it.ProgramID == pid {
			c.q.DequeueStation(it.Station)
		}
	}
	c.sched.ClearSeqStops()
	c.sched.UpdateSeqStops(c.stations, now.Unix())
	c.persistProgramsLocked()
	return nil
}

// MoveProgramUp swaps program idx with its predecessor.
func (c *Controller) MoveProgramUp(idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx <= 0 || idx >= len(c.programs) {
		return ErrOutOfRange
	}
	c.programs[idx-1], c.programs[idx] = c.programs[idx], c.programs[idx-1]
	c.persistProgramsLocked()
	return nil
}

// EnableProgram flips a program's enabled bit, clearing its queued runs on
// disable.
func (c *Controller) EnableProgram(idx int, enabled bool, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.programs) {
		return ErrOutOfRange
	}
	c.programs[idx].Enabled = enabled
	if !enabled {
		pid := c.programs[idx].ID
		for _, it := range c.q.Items() {
			if it.ProgramID == pid {
				c.q.DequeueStation(it.Station)
			}
		}
		c.sched.ClearSeqStops()
		c.sched.UpdateSeqStops(c.stations, now.Unix())
	}
	c.persistProgramsLocked()
	return nil
}

// Stations returns a copy of the station set.
func (c *Controller) Stations() []model.Station {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// UpdateStation replaces one station's attributes.
func (c *Controller) UpdateStation(idx int, st model.Station) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.stations) {
		return ErrOutOfRange
	}
	c.stations[idx] = st
	c.persistStationsLocked()
	return nil
}

// ReplaceStations swaps the whole station set, used by the bulk /cs write.
func (c *Controller) ReplaceStations(stations []model.Station) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(stations) != len(c.stations) {
		return ErrBadInput
	}
	c.stations = stations
	c.persistStationsLocked()
	return nil
}

// SetIntOption writes one integer option by wire name and reapplies derived
// settings.
func (c *Controller) SetIntOption(wire string, value int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := config.IntOptionByWire(wire)
	if !ok {
		return ErrBadInput
	}
	if err := c.opts.SetInt(k, value); err != nil {
		return ErrNotPermitted
	}
	c.applyOptionsLocked()
	c.persistOptionsLocked()
	return nil
}

// SetStrOption writes one string option by wire name.
func (c *Controller) SetStrOption(wire string, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := config.StrOptionByWire(wire)
	if !ok {
		return ErrBadInput
	}
	c.opts.SetStr(k, value)
	c.applyOptionsLocked()
	c.persistOptionsLocked()
	return nil
}

// OptionsSnapshot copies the option tables for read endpoints.
func (c *Controller) OptionsSnapshot() (map[string]int, map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.IntWireMap(), c.opts.StrWireMap()
}

func (c *Controller) persistOptionsLocked() {
	if c.dataDir == "" {
		return
	}
	if err := config.SaveOptions(c.dataDir, c.opts); err != nil {
		log.Error().Err(err).Msg("Failed to persist options.yml")
	}
}

// Snapshot is the typed view behind /jc.
type Snapshot struct {
	DeviceTime    int64
	NumBoards     int
	Enabled       bool
	RainDelayed   bool
	RainDelayStop int64
	RainSensed    bool
	Sensor1       bool
	Sensor2       bool
	StationBits   []uint8
	Status        []scheduler.StationStatus
	LastRun       logstore.Record
	HaveLastRun   bool
	Paused        bool
	PauseTimer    int64
	SunriseMin    int
	SunsetMin     int
}

// Snapshot captures the live state for the API under one lock hold.
func (c *Controller) Snapshot(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	boards := c.opts.Int(config.OptNumBoards)
	bits := make([]uint8, boards)
	for _, id := range c.sr.ActiveStations() {
		bits[id>>3] |= 1 << (id & 7)
	}

	return Snapshot{
		DeviceTime:    now.In(c.loc).Unix(),
		NumBoards:     boards,
		Enabled:       c.opts.Bool(config.OptDeviceEnable),
		RainDelayed:   c.rainDelayed,
		RainDelayStop: c.rainDelayStop,
		RainSensed:    c.rainSensed(),
		Sensor1:       c.sensors[0] != nil && c.sensors[0].Active(),
		Sensor2:       c.sensors[1] != nil && c.sensors[1].Active(),
		StationBits:   bits,
		Status:        c.sched.ProgramStatus(len(c.stations), now.Unix()),
		LastRun:       c.lastRun,
		HaveLastRun:   c.haveLastRun,
		Paused:        c.paused,
		PauseTimer:    c.pauseTimer,
		SunriseMin:    c.sched.SunriseMin,
		SunsetMin:     c.sched.SunsetMin,
	}
}

// ReadLog returns run records between two epoch seconds.
func (c *Controller) ReadLog(start, end int64) ([]logstore.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logs == nil {
		return nil, nil
	}
	return c.logs.Read(start, end)
}

// DeleteLog removes one day file or all of them.
func (c *Controller) DeleteLog(day string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logs == nil {
		return nil
	}
	return c.logs.Delete(day)
}
