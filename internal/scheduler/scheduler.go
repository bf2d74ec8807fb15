package scheduler

import (
	"github.com/greenside/irrigation-controller/internal/model"
	"github.com/greenside/irrigation-controller/internal/queue"
)

// Result is the outcome of a station admission.
type Result int

const (
	Scheduled Result = iota
	AlreadyQueued
	StationDisabled
	OutOfRange
	Skipped // non-positive duration; nothing admitted
)

// Opts modify admission placement.
type Opts uint8

const (
	OptNone Opts = 0
	// OptInsertFront starts the run immediately, bypassing sequential
	// placement. Used by manual station commands.
	OptInsertFront Opts = 1 << 0
	// OptReplace clears the queue and the sequential fences before
	// admitting. Run-once requests default to this.
	OptReplace Opts = 1 << 1
)

// Scheduler owns admission into the runtime queue: sequential-group
// placement, weather scaling and the master predicate. It is ignorant of
// rain state; the controller gates admissions before they reach here.
type Scheduler struct {
	Queue *queue.Queue

	// solar minutes for the current day, refreshed by the controller
	SunriseMin int
	SunsetMin  int

	// WaterPercent scales weather-adjusted durations.
	WaterPercent int

	// StationDelay is the inter-station dwell in seconds added after each
	// sequential run before the next station in the group may start.
	StationDelay int

	// Master off-lag seconds. Items for bound stations keep a dequeue
	// tail this long so the master predicate still sees them while the
	// pump winds down.
	Master1OffAdj int
	Master2OffAdj int

	lastSeqStop [model.NumSequentialGroups]int64
}

func New(q *queue.Queue) *Scheduler {
	return &Scheduler{Queue: q, WaterPercent: 100}
}

// AdjustedDuration applies weather scaling to a base duration. Scaled runs
// that fall under ten seconds at low percentages are dropped entirely
// rather than pulsing the valve.
func (s *Scheduler) AdjustedDuration(base int, useWeather bool) int {
	if !useWeather {
		return base
	}
	adjusted := base * s.WaterPercent / 100
	if s.WaterPercent < 20 && adjusted < 10 {
		return 0
	}
	return adjusted
}

// ScheduleStation admits one run. Sequential stations are placed after the
// last scheduled stop of their group; parallel stations start immediately.
func (s *Scheduler) ScheduleStation(stations []model.Station, station, programID int, duration, now int64, opts Opts) Result {
	if station < 0 || station >= len(stations) {
		return OutOfRange
	}
	st := &stations[station]
	if st.Disabled {
		return StationDisabled
	}
	if duration <= 0 {
		return Skipped
	}
	if opts&OptReplace != 0 {
		s.StopAll()
	}
	if s.Queue.StationQueued(station) {
		return AlreadyQueued
	}

	var start int64
	if opts&OptInsertFront != 0 || st.Parallel() {
		start = now
	} else {
		g := st.SeqGroup()
		start = now
		if s.lastSeqStop[g] > start {
			start = s.lastSeqStop[g]
		}
		s.lastSeqStop[g] = start + duration + int64(s.StationDelay)
	}

	tail := int64(0)
	if st.Master1Bound && s.Master1OffAdj > 0 {
		tail = int64(s.Master1OffAdj)
	}
	if st.Master2Bound && int64(s.Master2OffAdj) > tail {
		tail = int64(s.Master2OffAdj)
	}

	if !s.Queue.Enqueue(station, programID, start, duration, start+duration+tail) {
		return AlreadyQueued
	}
	return Scheduled
}

// ScheduleProgram admits every station the program waters. skip, when non
// nil, lets the caller filter stations (the controller's rain gate).
func (s *Scheduler) ScheduleProgram(stations []model.Station, p *model.Program, now int64, opts Opts, skip func(station int) bool) int {
	if opts&OptReplace != 0 {
		s.StopAll()
		opts &^= OptReplace
	}
	admitted := 0
	for i := range stations {
		base := p.DurationFor(i)
		if base == 0 {
			continue
		}
		if skip != nil && skip(i) {
			continue
		}
		duration := s.AdjustedDuration(base, p.UseWeather)
		if duration == 0 {
			continue
		}
		if s.ScheduleStation(stations, i, p.ID, int64(duration), now, opts) == Scheduled {
			admitted++
		}
	}
	return admitted
}

// MasterShouldBeOn reports whether a master/pump station must be energized
// at now. masterStation is 1-based; zero means no master configured. onAdj
// and offAdj are signed lead/lag seconds widening (or narrowing) the window
// around each bound station's run.
func (s *Scheduler) MasterShouldBeOn(now int64, masterIndex int, masterStation int, stations []model.Station, onAdj, offAdj int) bool {
	if masterStation == 0 {
		return false
	}
	for _, it := range s.Queue.Items() {
		if it.Station < 0 || it.Station >= len(stations) {
			continue
		}
		st := &stations[it.Station]
		if it.Station == masterStation-1 {
			continue
		}
		bound := st.Master1Bound
		if masterIndex == 2 {
			bound = st.Master2Bound
		}
		if !bound {
			continue
		}
		if it.StartTime-int64(onAdj) <= now && now < it.EndTime()+int64(offAdj) {
			return true
		}
	}
	return false
}

// ProcessQueue drops every item past its dequeue time and returns the
// stations watering at now.
func (s *Scheduler) ProcessQueue(now int64) map[int]bool {
	s.Queue.DequeueExpired(now)
	return s.Queue.ActiveStations(now)
}

// StopAll clears the queue and the sequential fences.
func (s *Scheduler) StopAll() {
	s.Queue.Clear()
	s.ClearSeqStops()
}

// ClearSeqStops zeroes the sequential stop-time array.
func (s *Scheduler) ClearSeqStops() {
	for i := range s.lastSeqStop {
		s.lastSeqStop[i] = 0
	}
}

// ShiftSeqStops moves the fences by delta seconds, used by pause/resume so
// serialized placement stays aligned with the shifted queue.
func (s *Scheduler) ShiftSeqStops(delta int64) {
	for i := range s.lastSeqStop {
		if s.lastSeqStop[i] != 0 {
			s.lastSeqStop[i] += delta
		}
	}
}

// UpdateSeqStops raises each group fence to cover queued items whose end is
// still ahead, guarding against a concurrent admission slipping under a
// running item.
func (s *Scheduler) UpdateSeqStops(stations []model.Station, now int64) {
	for _, it := range s.Queue.Items() {
		if it.EndTime() <= now {
			continue
		}
		if it.Station < 0 || it.Station >= len(stations) {
			continue
		}
		st := &stations[it.Station]
		if st.Parallel() {
			continue
		}
		g := st.SeqGroup()
		stop := it.EndTime() + int64(s.StationDelay)
		if stop > s.lastSeqStop[g] {
			s.lastSeqStop[g] = stop
		}
	}
}

// StationStatus is one row of the program status table.
type StationStatus struct {
	ProgramID int
	Remaining int64
	StartTime int64
	Duration  int64
}

// ProgramStatus returns, per station id, the queued run's program id,
// remaining seconds, start and duration, or a zero row when idle.
func (s *Scheduler) ProgramStatus(numStations int, now int64) []StationStatus {
	out := make([]StationStatus, numStations)
	for _, it := range s.Queue.Items() {
		if it.Station < 0 || it.Station >= numStations {
			continue
		}
		rem := it.EndTime() - now
		if rem < 0 {
			rem = 0
		}
		out[it.Station] = StationStatus{
			ProgramID: it.ProgramID,
			Remaining: rem,
			StartTime: it.StartTime,
			Duration:  it.Duration,
		}
	}
	return out
}
