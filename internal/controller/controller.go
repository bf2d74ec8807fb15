package controller

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greenside/irrigation-controller/internal/config"
	"github.com/greenside/irrigation-controller/internal/datadog"
	"github.com/greenside/irrigation-controller/internal/logstore"
	"github.com/greenside/irrigation-controller/internal/model"
	"github.com/greenside/irrigation-controller/internal/program"
	"github.com/greenside/irrigation-controller/internal/queue"
	"github.com/greenside/irrigation-controller/internal/scheduler"
	"github.com/greenside/irrigation-controller/internal/sensor"
	"github.com/greenside/irrigation-controller/internal/shiftreg"
	"github.com/greenside/irrigation-controller/internal/solar"
	"github.com/greenside/irrigation-controller/internal/store"
)

// Telemetry receives valve state changes. Implementations must not block
// the tick; failures are theirs to swallow.
type Telemetry interface {
	ValveChanged(station int, on bool, ts time.Time)
	ActiveHighest(highest int, ts time.Time)
}

type NoopTelemetry struct{}

func (NoopTelemetry) ValveChanged(int, bool, time.Time) {}
func (NoopTelemetry) ActiveHighest(int, time.Time)      {}

// Controller owns the scheduler, queue, station set, sensors and shift
// register, and advances them once per wall-clock second. The HTTP layer
// holds a shared handle; every externally visible method takes the lock so
// API mutations are totally ordered with respect to ticks.
type Controller struct {
	mu sync.Mutex

	opts     *config.Options
	stations []model.Station
	programs []model.Program

	sched    *scheduler.Scheduler
	q        *queue.Queue
	sr       *shiftreg.Driver
	sensors  [2]*sensor.Debouncer
	effector Effector
	telem    Telemetry

	st      *store.Store
	logs    *logstore.Store
	dataDir string
	loc     *time.Location

	rainDelayStop int64
	rainDelayed   bool
	paused        bool
	pauseTimer    int64
	lastTickSec   int64
	lastMinute    int
	solarDay      int
	prevRunning   map[int]queue.Item
	lastRun       logstore.Record
	haveLastRun   bool
}

// Deps collects the collaborators the controller drives.
type Deps struct {
	Options  *config.Options
	Store    *store.Store
	Logs     *logstore.Store
	DataDir  string
	Register *shiftreg.Driver
	Sensor1  *sensor.Debouncer
	Sensor2  *sensor.Debouncer
	Effector Effector
	Telem    Telemetry
}

func New(d Deps) *Controller {
	c := &Controller{
		opts:        d.Options,
		q:           queue.New(),
		sr:          d.Register,
		sensors:     [2]*sensor.Debouncer{d.Sensor1, d.Sensor2},
		effector:    d.Effector,
		telem:       d.Telem,
		st:          d.Store,
		logs:        d.Logs,
		dataDir:     d.DataDir,
		lastMinute:  -1,
		solarDay:    -1,
		prevRunning: make(map[int]queue.Item),
	}
	if c.effector == nil {
		c.effector = NoopEffector{}
	}
	if c.telem == nil {
		c.telem = NoopTelemetry{}
	}
	c.sched = scheduler.New(c.q)
	c.loc = config.Timezone(c.opts)
	c.applyOptionsLocked()
	return c
}

// LoadState hydrates stations and programs from disk, padding the station
// set out to the configured board count.
func (c *Controller) LoadState() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stations, err := c.st.LoadStations()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load stations.yml, starting with defaults")
		stations = nil
	}
	c.stations = stations

	programs, err := c.st.LoadPrograms()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load programs.yml, starting with none")
		programs = nil
	}
	c.programs = programs

	c.normalizeStationsLocked()
	log.Info().
		Int("stations", len(c.stations)).
		Int("programs", len(c.programs)).
		Msg("Loaded persisted state")
	return nil
}

// normalizeStationsLocked pads or trims the station set to nbrd*8 slots.
func (c *Controller) normalizeStationsLocked() {
	want := c.opts.Int(config.OptNumBoards) * 8
	for len(c.stations) < want {
		c.stations = append(c.stations, store.DefaultStation(len(c.stations)))
	}
	if len(c.stations) > want {
		c.stations = c.stations[:want]
	}
}

// applyOptionsLocked pushes option-derived settings into the subsystems.
// Called at boot and after any option write.
func (c *Controller) applyOptionsLocked() {
	c.loc = config.Timezone(c.opts)
	if c.logs != nil {
		c.logs.SetLocation(c.loc)
	}
	c.sched.WaterPercent = c.opts.Int(config.OptWaterLevel)
	c.sched.StationDelay = c.opts.Int(config.OptStationDelay)
	c.sched.Master1OffAdj = c.opts.Int(config.OptMaster1OffAdj)
	c.sched.Master2OffAdj = c.opts.Int(config.OptMaster2OffAdj)
	if c.sr != nil {
		c.sr.SetBoards(c.opts.Int(config.OptNumBoards))
	}
	c.normalizeStationsLocked()
	// day change detection also reruns after a timezone move
	c.solarDay = -1

	if c.sensors[0] != nil {
		c.sensors[0].Configure(
			sensor.Type(c.opts.Int(config.OptSensor1Type)),
			c.opts.Int(config.OptSensor1Option),
			c.opts.Int(config.OptSensor1OnDelay),
			c.opts.Int(config.OptSensor1OffDelay),
		)
	}
	if c.sensors[1] != nil {
		c.sensors[1].Configure(
			sensor.Type(c.opts.Int(config.OptSensor2Type)),
			c.opts.Int(config.OptSensor2Option),
			c.opts.Int(config.OptSensor2OnDelay),
			c.opts.Int(config.OptSensor2OffDelay),
		)
	}
}

// rainSensed reports whether any rain-type sensor is debounced active.
func (c *Controller) rainSensed() bool {
	for _, s := range c.sensors {
		if s != nil && s.Type() == sensor.TypeRain && s.Active() {
			return true
		}
	}
	return false
}

// soilSensed reports whether any soil-type sensor is debounced active.
func (c *Controller) soilSensed() bool {
	for _, s := range c.sensors {
		if s != nil && s.Type() == sensor.TypeSoil && s.Active() {
			return true
		}
	}
	return false
}

// Tick advances the controller to now. Calling it again within the same
// integer second is a no-op.
func (c *Controller) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	epoch := now.Unix()
	if epoch == c.lastTickSec {
		return
	}
	c.lastTickSec = epoch
	tickStart := time.Now()

	local := now.In(c.loc)

	// rain delay window
	if !c.rainDelayed && c.rainDelayStop > epoch {
		c.rainDelayed = true
		log.Info().Time("until", time.Unix(c.rainDelayStop, 0)).Msg("Rain delay active")
	}
	if c.rainDelayed && epoch >= c.rainDelayStop {
		c.rainDelayed = false
		c.rainDelayStop = 0
		log.Info().Msg("Rain delay expired")
	}

	// refresh solar times when the calendar day changes
	if local.YearDay() != c.solarDay {
		c.solarDay = local.YearDay()
		c.refreshSolarLocked(local)
	}

	// sensors
	for i, s := range c.sensors {
		if s == nil {
			continue
		}
		tr, err := s.Poll(epoch)
		if err != nil {
			log.Error().Err(err).Int("sensor", i+1).Msg("Sensor read failed")
			continue
		}
		if tr == sensor.NoTransition {
			continue
		}
		active := tr == sensor.Activated
		log.Info().Int("sensor", i+1).Bool("active", active).Msg("Sensor state changed")
		if c.logs != nil {
			if err := c.logs.Append(logstore.SensorRecord(i+1, active, epoch)); err != nil {
				log.Warn().Err(err).Msg("Failed to log sensor event")
			}
		}
	}

	// minute boundary: evaluate programs exactly once per observed minute
	minute := local.Hour()*60 + local.Minute()
	if minute != c.lastMinute {
		c.lastMinute = minute
		c.matchProgramsLocked(local, epoch)
	}

	// pause countdown; the queue was shifted when the pause was applied
	if c.paused {
		c.pauseTimer--
		if c.pauseTimer <= 0 {
			c.paused = false
			c.pauseTimer = 0
			log.Info().Msg("Pause expired")
		}
	}

	// active set
	var active map[int]bool
	if c.paused {
		active = map[int]bool{}
	} else {
		active = c.sched.ProcessQueue(epoch)
	}

	mas1 := c.opts.Int(config.OptMaster1)
	mas2 := c.opts.Int(config.OptMaster2)

	// station bits, masters excluded
	var changes []valveChange
	for id := range c.stations {
		if id == mas1-1 || id == mas2-1 {
			continue
		}
		if ch := c.sr.SetBit(id, active[id]); ch != shiftreg.NoChange {
			changes = append(changes, valveChange{id, ch == shiftreg.TurnedOn})
		}
	}

	// master bits follow the predicate over their bound stations
	for i, mas := range []int{mas1, mas2} {
		if mas == 0 {
			continue
		}
		onAdj, offAdj := c.masterAdjustments(i + 1)
		on := !c.paused && c.sched.MasterShouldBeOn(epoch, i+1, mas, c.stations, onAdj, offAdj)
		if ch := c.sr.SetBit(mas-1, on); ch != shiftreg.NoChange {
			changes = append(changes, valveChange{mas - 1, ch == shiftreg.TurnedOn})
		}
	}

	// completed-run records come from the running-set diff, which still
	// holds the admitting item for stations that just switched off
	running := c.runningItemsLocked(epoch)
	for id, prev := range c.prevRunning {
		if _, still := running[id]; still {
			continue
		}
		// a pause shifts the item without finishing it; only a real end
		// (elapsed or dequeued) produces a completed-run record
		if epoch >= prev.EndTime() || !c.q.StationQueued(id) {
			c.recordCompletedLocked(prev, epoch)
		}
	}
	c.prevRunning = running

	// side effects for non-standard kinds, then telemetry
	for _, ch := range changes {
		if ch.station < len(c.stations) {
			c.effector.SetStation(ch.station, &c.stations[ch.station], ch.on)
		}
		c.telem.ValveChanged(ch.station, ch.on, now)
	}
	if len(changes) > 0 {
		c.telem.ActiveHighest(highestSet(c.sr), now)
	}

	enabled := c.opts.Bool(config.OptDeviceEnable)
	if err := c.sr.Apply(enabled); err != nil {
		log.Error().Err(err).Msg("Shift register apply failed")
	}

	c.sched.UpdateSeqStops(c.stations, epoch)

	datadog.Gauge("irrigation.active_stations", float64(countActive(active)))
	datadog.Gauge("irrigation.queue_length", float64(c.q.Len()))
	datadog.Gauge("irrigation.tick_seconds", time.Since(tickStart).Seconds())
}

type valveChange struct {
	station int
	on      bool
}

func countActive(active map[int]bool) int {
	n := 0
	for _, on := range active {
		if on {
			n++
		}
	}
	return n
}

func highestSet(sr *shiftreg.Driver) int {
	highest := 0
	for _, id := range sr.ActiveStations() {
		if id+1 > highest {
			highest = id + 1
		}
	}
	return highest
}

func (c *Controller) masterAdjustments(index int) (onAdj, offAdj int) {
	if index == 2 {
		return c.opts.Int(config.OptMaster2OnAdj), c.opts.Int(config.OptMaster2OffAdj)
	}
	return c.opts.Int(config.OptMaster1OnAdj), c.opts.Int(config.OptMaster1OffAdj)
}

func (c *Controller) runningItemsLocked(epoch int64) map[int]queue.Item {
	out := make(map[int]queue.Item)
	if c.paused {
		return out
	}
	for _, it := range c.q.Items() {
		if it.Running(epoch) {
			out[it.Station] = it
		}
	}
	return out
}

func (c *Controller) recordCompletedLocked(it queue.Item, epoch int64) {
	rec := logstore.Record{
		ProgramID: it.ProgramID,
		StationID: it.Station,
		Duration:  it.Duration,
		End:       epoch,
		Type:      model.RecordTypeFor(it.ProgramID),
	}
	c.lastRun = rec
	c.haveLastRun = true
	if c.logs != nil {
		if err := c.logs.Append(rec); err != nil {
			log.Warn().Err(err).Msg("Failed to log completed run")
		}
	}
	log.Info().
		Int("station", it.Station).
		Int("program", it.ProgramID).
		Int64("duration", it.Duration).
		Msg("Station run completed")
}

// refreshSolarLocked recomputes sunrise and sunset minutes for the local
// day from the configured coordinates.
func (c *Controller) refreshSolarLocked(local time.Time) {
	lat, lon, err := c.opts.Location()
	if err != nil {
		log.Warn().Err(err).Msg("Malformed location option, keeping previous solar times")
		return
	}
	c.sched.SunriseMin, c.sched.SunsetMin = solar.Times(lat, lon, local)
	log.Debug().
		Int("sunrise", c.sched.SunriseMin).
		Int("sunset", c.sched.SunsetMin).
		Msg("Solar times refreshed")
}

// matchProgramsLocked fires every program matching this minute, then drops
// matched single_run programs.
func (c *Controller) matchProgramsLocked(local time.Time, epoch int64) {
	rainGated := c.rainDelayed ||
		(c.rainSensed() && !c.opts.Bool(config.OptIgnoreRain))
	soilGated := c.soilSensed()

	var matchedSingleRun []int
	for i := range c.programs {
		p := &c.programs[i]
		n, ok := program.Match(p, local, c.sched.SunriseMin, c.sched.SunsetMin)
		if !ok {
			continue
		}
		log.Info().Int("program", p.ID).Str("name", p.Name).Int("run", n).Msg("Program matched")

		skip := func(station int) bool {
			st := &c.stations[station]
			if rainGated && !st.IgnoreRain {
				return true
			}
			if soilGated && !c.stationIgnoresSoilLocked(st) {
				return true
			}
			return false
		}
		c.sched.ScheduleProgram(c.stations, p, epoch, scheduler.OptNone, skip)

		// single_run programs die after their last start of the day
		if p.Type == model.ProgramSingleRun {
			minute := local.Hour()*60 + local.Minute()
			if minute >= program.LastStartOfDay(p, c.sched.SunriseMin, c.sched.SunsetMin) {
				matchedSingleRun = append(matchedSingleRun, i)
			}
		}
	}

	if len(matchedSingleRun) > 0 {
		for i := len(matchedSingleRun) - 1; i >= 0; i-- {
			idx := matchedSingleRun[i]
			c.programs = append(c.programs[:idx], c.programs[idx+1:]...)
		}
		c.persistProgramsLocked()
	}
}

// stationIgnoresSoilLocked maps the station's per-sensor ignore flags onto
// whichever sensor slots are soil type.
func (c *Controller) stationIgnoresSoilLocked(st *model.Station) bool {
	for i, s := range c.sensors {
		if s == nil || s.Type() != sensor.TypeSoil || !s.Active() {
			continue
		}
		ignore := st.IgnoreSensor1
		if i == 1 {
			ignore = st.IgnoreSensor2
		}
		if !ignore {
			return false
		}
	}
	return true
}

func (c *Controller) persistProgramsLocked() {
	if c.st == nil {
		return
	}
	if err := c.st.SavePrograms(c.programs); err != nil {
		log.Error().Err(err).Msg("Failed to persist programs.yml")
	}
}

func (c *Controller) persistStationsLocked() {
	if c.st == nil {
		return
	}
	if err := c.st.SaveStations(c.stations); err != nil {
		log.Error().Err(err).Msg("Failed to persist stations.yml")
	}
}
