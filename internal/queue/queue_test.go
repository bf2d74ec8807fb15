package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueRefusesDuplicateStation(t *testing.T) {
	q := New()

	require.True(t, q.Enqueue(3, 1, 1000, 60, 0))
	assert.False(t, q.Enqueue(3, 2, 2000, 30, 0), "station already queued")
	assert.Equal(t, 1, q.Len())

	it, ok := q.FindByStation(3)
	require.True(t, ok)
	assert.Equal(t, 1, it.ProgramID)
}

func TestDequeueTimeDefaultsToEnd(t *testing.T) {
	q := New()
	q.Enqueue(0, 1, 1000, 60, 0)

	it, _ := q.FindByStation(0)
	assert.Equal(t, int64(1060), it.DequeueTime)

	q.Enqueue(1, 1, 1000, 60, 1120)
	it, _ = q.FindByStation(1)
	assert.Equal(t, int64(1120), it.DequeueTime)
}

func TestSwapRemoveKeepsMapConsistent(t *testing.T) {
	q := New()
	q.Enqueue(0, 1, 0, 10, 0)
	q.Enqueue(1, 1, 0, 10, 0)
	q.Enqueue(2, 1, 0, 10, 0)

	q.DequeueStation(0)

	assert.False(t, q.StationQueued(0))
	for _, s := range []int{1, 2} {
		it, ok := q.FindByStation(s)
		require.True(t, ok)
		assert.Equal(t, s, it.Station)
	}
	assert.Equal(t, 2, q.Len())
}

func TestActiveStations(t *testing.T) {
	q := New()
	q.Enqueue(0, 1, 1000, 60, 0)
	q.Enqueue(1, 1, 1100, 60, 0)

	active := q.ActiveStations(1030)
	assert.True(t, active[0])
	assert.False(t, active[1], "station 1 has not started")

	active = q.ActiveStations(1060)
	assert.False(t, active[0], "end is exclusive")
}

func TestDequeueExpired(t *testing.T) {
	q := New()
	q.Enqueue(0, 1, 1000, 60, 0)    // dequeue at 1060
	q.Enqueue(1, 1, 1000, 120, 0)   // dequeue at 1120
	q.Enqueue(2, 1, 1000, 60, 1090) // master tail

	removed := q.DequeueExpired(1080)
	require.Len(t, removed, 1)
	assert.Equal(t, 0, removed[0].Station)
	assert.True(t, q.StationQueued(1))
	assert.True(t, q.StationQueued(2), "tail still reserved")

	removed = q.DequeueExpired(1200)
	assert.Len(t, removed, 2)
	assert.Equal(t, 0, q.Len())
}

func TestPauseRunningItemPreservesRemaining(t *testing.T) {
	q := New()
	q.Enqueue(0, 1, 1000, 300, 0)

	// 100s in, pause for 600s
	q.ApplyPause(1100, 600)

	it, _ := q.FindByStation(0)
	assert.Equal(t, int64(200), it.Duration, "remaining run time survives the pause")
	assert.Equal(t, int64(1700), it.StartTime)
	assert.Equal(t, int64(1900), it.DequeueTime)
}

func TestPausePendingItemShiftsWhole(t *testing.T) {
	q := New()
	q.Enqueue(0, 1, 2000, 300, 0)

	q.ApplyPause(1100, 600)

	it, _ := q.FindByStation(0)
	assert.Equal(t, int64(2600), it.StartTime)
	assert.Equal(t, int64(300), it.Duration)
	assert.Equal(t, int64(2900), it.DequeueTime)
}

func TestPauseSkipsFinishedItems(t *testing.T) {
	q := New()
	q.Enqueue(0, 1, 1000, 60, 0)

	q.ApplyPause(1060, 600)

	it, _ := q.FindByStation(0)
	assert.Equal(t, int64(1000), it.StartTime)
	assert.Equal(t, int64(1060), it.DequeueTime)
}

func TestResumeInvertsPauseModuloOneSecond(t *testing.T) {
	q := New()
	q.Enqueue(0, 1, 2000, 300, 0)

	q.ApplyPause(1100, 600)
	q.ApplyResume(600)

	it, _ := q.FindByStation(0)
	assert.Equal(t, int64(2001), it.StartTime, "resume restores start plus exactly one second")
	assert.Equal(t, int64(2301), it.DequeueTime)
}
