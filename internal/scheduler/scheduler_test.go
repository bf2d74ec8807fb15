package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenside/irrigation-controller/internal/model"
	"github.com/greenside/irrigation-controller/internal/queue"
)

func testStations(n int, group uint8) []model.Station {
	stations := make([]model.Station, n)
	for i := range stations {
		stations[i] = model.Station{
			Name:    "S" + string(rune('0'+i)),
			Type:    model.StationStandard,
			GroupID: group,
		}
	}
	return stations
}

func TestSequentialOrdering(t *testing.T) {
	s := New(queue.New())
	stations := testStations(2, 0)

	require.Equal(t, Scheduled, s.ScheduleStation(stations, 0, model.ManualProgramID, 300, 1000, OptNone))
	require.Equal(t, Scheduled, s.ScheduleStation(stations, 1, model.ManualProgramID, 300, 1000, OptNone))

	it0, _ := s.Queue.FindByStation(0)
	it1, _ := s.Queue.FindByStation(1)
	assert.Equal(t, it0.StartTime+300, it1.StartTime)

	// intervals within the group must be disjoint
	assert.True(t, it0.EndTime() <= it1.StartTime)
}

func TestParallelBypass(t *testing.T) {
	s := New(queue.New())
	stations := testStations(2, model.ParallelGroup)

	s.ScheduleStation(stations, 0, model.ManualProgramID, 300, 1000, OptNone)
	s.ScheduleStation(stations, 1, model.ManualProgramID, 300, 1000, OptNone)

	it0, _ := s.Queue.FindByStation(0)
	it1, _ := s.Queue.FindByStation(1)
	assert.Equal(t, it0.StartTime, it1.StartTime)
	assert.Equal(t, int64(1000), it1.StartTime)
}

func TestIndependentGroupsDoNotSerialize(t *testing.T) {
	s := New(queue.New())
	stations := testStations(2, 0)
	stations[1].GroupID = 1

	s.ScheduleStation(stations, 0, 1, 300, 1000, OptNone)
	s.ScheduleStation(stations, 1, 1, 300, 1000, OptNone)

	it1, _ := s.Queue.FindByStation(1)
	assert.Equal(t, int64(1000), it1.StartTime)
}

func TestAdmissionRejections(t *testing.T) {
	s := New(queue.New())
	stations := testStations(2, 0)
	stations[1].Disabled = true

	assert.Equal(t, OutOfRange, s.ScheduleStation(stations, 5, 1, 60, 1000, OptNone))
	assert.Equal(t, StationDisabled, s.ScheduleStation(stations, 1, 1, 60, 1000, OptNone))

	require.Equal(t, Scheduled, s.ScheduleStation(stations, 0, 1, 60, 1000, OptNone))
	assert.Equal(t, AlreadyQueued, s.ScheduleStation(stations, 0, 1, 60, 1000, OptNone))
}

func TestInsertFrontStartsNow(t *testing.T) {
	s := New(queue.New())
	stations := testStations(2, 0)

	s.ScheduleStation(stations, 0, 1, 300, 1000, OptNone)
	s.ScheduleStation(stations, 1, model.ManualProgramID, 120, 1000, OptInsertFront)

	it1, _ := s.Queue.FindByStation(1)
	assert.Equal(t, int64(1000), it1.StartTime)
	assert.Equal(t, int64(1120), it1.DequeueTime)
}

func TestReplaceClearsQueueAndFences(t *testing.T) {
	s := New(queue.New())
	stations := testStations(3, 0)

	s.ScheduleStation(stations, 0, 1, 300, 1000, OptNone)
	s.ScheduleStation(stations, 1, 1, 300, 1000, OptNone)

	require.Equal(t, Scheduled, s.ScheduleStation(stations, 2, model.RunOnceProgramID, 60, 2000, OptReplace))

	assert.Equal(t, 1, s.Queue.Len())
	it, _ := s.Queue.FindByStation(2)
	assert.Equal(t, int64(2000), it.StartTime, "fences were zeroed by the replace")
}

func TestWeatherScaling(t *testing.T) {
	s := New(queue.New())

	s.WaterPercent = 10
	assert.Equal(t, 0, s.AdjustedDuration(10, true), "scaled under 10s at low percentage is skipped")
	assert.Equal(t, 10, s.AdjustedDuration(10, false), "weather-exempt duration passes through")

	s.WaterPercent = 50
	assert.Equal(t, 150, s.AdjustedDuration(300, true))

	s.WaterPercent = 10
	assert.Equal(t, 30, s.AdjustedDuration(300, true), "long runs survive low percentages")

	s.WaterPercent = 200
	assert.Equal(t, 600, s.AdjustedDuration(300, true))
}

func TestScheduleProgram(t *testing.T) {
	s := New(queue.New())
	stations := testStations(4, 0)
	p := &model.Program{
		ID:        1,
		Enabled:   true,
		Durations: []int{60, 0, 120, 60},
	}

	admitted := s.ScheduleProgram(stations, p, 1000, OptNone, func(station int) bool {
		return station == 3 // rain gate stands in
	})

	assert.Equal(t, 2, admitted)
	assert.True(t, s.Queue.StationQueued(0))
	assert.False(t, s.Queue.StationQueued(1), "zero duration is not in the program")
	assert.True(t, s.Queue.StationQueued(2))
	assert.False(t, s.Queue.StationQueued(3), "skipped by the gate")

	it0, _ := s.Queue.FindByStation(0)
	it2, _ := s.Queue.FindByStation(2)
	assert.Equal(t, it0.EndTime(), it2.StartTime, "same group serializes")
}

func TestStationDelayExtendsFence(t *testing.T) {
	s := New(queue.New())
	s.StationDelay = 15
	stations := testStations(2, 0)

	s.ScheduleStation(stations, 0, 1, 300, 1000, OptNone)
	s.ScheduleStation(stations, 1, 1, 300, 1000, OptNone)

	it1, _ := s.Queue.FindByStation(1)
	assert.Equal(t, int64(1315), it1.StartTime, "inter-station dwell applies")
}

func TestMasterLeadLag(t *testing.T) {
	s := New(queue.New())
	stations := testStations(3, model.ParallelGroup)
	stations[0].Master1Bound = true
	// station 2 is the master itself
	const masterStation = 3 // 1-based

	require.Equal(t, Scheduled, s.ScheduleStation(stations, 0, model.ManualProgramID, 300, 1000, OptNone))

	cases := []struct {
		now  int64
		want bool
	}{
		{939, false},
		{940, true},  // start minus the 60s lead
		{970, true},  // t0 - 30
		{1100, true}, // mid-run
		{1330, true}, // t0 + 330, inside the 60s lag
		{1359, true},
		{1360, false}, // end + 60 lag is exclusive
		{1361, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, s.MasterShouldBeOn(c.now, 1, masterStation, stations, 60, 60), "now=%d", c.now)
	}

	// no master configured
	assert.False(t, s.MasterShouldBeOn(1100, 1, 0, stations, 60, 60))

	// master 2 has no bound stations
	assert.False(t, s.MasterShouldBeOn(1100, 2, masterStation, stations, 60, 60))
}

func TestMasterIgnoresItself(t *testing.T) {
	s := New(queue.New())
	stations := testStations(2, model.ParallelGroup)
	stations[1].Master1Bound = true

	// the master station somehow holds a queue entry of its own
	s.ScheduleStation(stations, 1, model.ManualProgramID, 300, 1000, OptNone)

	assert.False(t, s.MasterShouldBeOn(1100, 1, 2, stations, 0, 0))
}

func TestProcessQueueDropsExpired(t *testing.T) {
	s := New(queue.New())
	stations := testStations(2, model.ParallelGroup)

	s.ScheduleStation(stations, 0, 1, 60, 1000, OptNone)
	s.ScheduleStation(stations, 1, 1, 300, 1000, OptNone)

	active := s.ProcessQueue(1030)
	assert.True(t, active[0])
	assert.True(t, active[1])

	active = s.ProcessQueue(1100)
	assert.False(t, active[0])
	assert.True(t, active[1])
	assert.False(t, s.Queue.StationQueued(0))
}

func TestUpdateSeqStopsRaisesFence(t *testing.T) {
	s := New(queue.New())
	stations := testStations(2, 0)

	s.ScheduleStation(stations, 0, 1, 300, 1000, OptNone)
	s.ClearSeqStops() // simulate a fence lost to a stop elsewhere

	s.UpdateSeqStops(stations, 1100)
	s.ScheduleStation(stations, 1, 1, 300, 1100, OptNone)

	it0, _ := s.Queue.FindByStation(0)
	it1, _ := s.Queue.FindByStation(1)
	assert.True(t, it1.StartTime >= it0.EndTime(), "fence restored from queued items")
}

func TestProgramStatus(t *testing.T) {
	s := New(queue.New())
	stations := testStations(3, model.ParallelGroup)

	s.ScheduleStation(stations, 1, 7, 300, 1000, OptNone)

	status := s.ProgramStatus(3, 1100)
	assert.Equal(t, StationStatus{}, status[0])
	assert.Equal(t, 7, status[1].ProgramID)
	assert.Equal(t, int64(200), status[1].Remaining)
	assert.Equal(t, int64(1000), status[1].StartTime)
	assert.Equal(t, int64(300), status[1].Duration)
	assert.Equal(t, StationStatus{}, status[2])
}

func TestStopAll(t *testing.T) {
	s := New(queue.New())
	stations := testStations(2, 0)

	s.ScheduleStation(stations, 0, 1, 300, 1000, OptNone)
	s.StopAll()

	assert.Equal(t, 0, s.Queue.Len())
	s.ScheduleStation(stations, 1, 1, 300, 5000, OptNone)
	it, _ := s.Queue.FindByStation(1)
	assert.Equal(t, int64(5000), it.StartTime, "fences were zeroed")
}
