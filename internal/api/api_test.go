package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenside/irrigation-controller/internal/config"
	"github.com/greenside/irrigation-controller/internal/controller"
	"github.com/greenside/irrigation-controller/internal/gpio"
	"github.com/greenside/irrigation-controller/internal/logstore"
	"github.com/greenside/irrigation-controller/internal/model"
	"github.com/greenside/irrigation-controller/internal/sensor"
	"github.com/greenside/irrigation-controller/internal/shiftreg"
	"github.com/greenside/irrigation-controller/internal/store"
)

// md5("opendoor"), the factory password
const defaultPW = "a6d82bced638de3def1e9bbb4983225c"

func newTestServer(t *testing.T) (*Server, *controller.Controller) {
	t.Helper()
	dir := t.TempDir()
	mock := gpio.NewMock()

	opts := config.DefaultOptions()
	sr := shiftreg.New(mock, shiftreg.Pins{Latch: 22, Data: 27, Clock: 4, OutputEnable: 17}, 1)
	require.NoError(t, sr.Setup())

	ctrl := controller.New(controller.Deps{
		Options:  opts,
		Store:    store.New(dir),
		Logs:     logstore.New(filepath.Join(dir, "logs"), time.UTC),
		DataDir:  dir,
		Register: sr,
		Sensor1:  sensor.New(mock, 14),
		Sensor2:  sensor.New(mock, 23),
	})
	require.NoError(t, ctrl.LoadState())

	srv := NewServer(ctrl)
	srv.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return srv, ctrl
}

func get(t *testing.T, srv *Server, path string, params url.Values) map[string]interface{} {
	t.Helper()
	if params == nil {
		params = url.Values{}
	}
	req := httptest.NewRequest(http.MethodGet, path+"?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func authed(params url.Values) url.Values {
	if params == nil {
		params = url.Values{}
	}
	params.Set("pw", defaultPW)
	return params
}

func result(body map[string]interface{}) int {
	r, _ := body["result"].(float64)
	return int(r)
}

func TestUnauthorizedWithoutPassword(t *testing.T) {
	srv, _ := newTestServer(t)

	body := get(t, srv, "/jc", nil)
	assert.Equal(t, ResultUnauthorized, result(body))

	body = get(t, srv, "/cv", url.Values{"pw": {"wrong"}})
	assert.Equal(t, ResultUnauthorized, result(body))
}

func TestRootNeedsNoPassword(t *testing.T) {
	srv, _ := newTestServer(t)
	body := get(t, srv, "/", nil)
	assert.Equal(t, "irrigation-controller", body["name"])
}

func TestIgnorePasswordOption(t *testing.T) {
	srv, ctrl := newTestServer(t)
	require.NoError(t, ctrl.SetIntOption("ipas", 1))

	body := get(t, srv, "/jc", nil)
	assert.NotContains(t, body, "result")
	assert.Contains(t, body, "devt")
}

func TestUnknownPage(t *testing.T) {
	srv, _ := newTestServer(t)
	body := get(t, srv, "/nope", authed(nil))
	assert.Equal(t, ResultPageNotFound, result(body))
}

func TestControllerStateShape(t *testing.T) {
	srv, _ := newTestServer(t)

	body := get(t, srv, "/jc", authed(nil))
	for _, key := range []string{"devt", "nbrd", "en", "rd", "rs", "rdst", "sbits", "ps", "lrun", "sn1", "sn2", "pq", "pt"} {
		assert.Contains(t, body, key)
	}
	assert.Equal(t, float64(1), body["en"])
	assert.Equal(t, float64(1), body["nbrd"])

	ps := body["ps"].([]interface{})
	assert.Len(t, ps, 8)
}

func TestOptionsExcludePassword(t *testing.T) {
	srv, _ := newTestServer(t)

	body := get(t, srv, "/jo", authed(nil))
	assert.NotContains(t, body, "pwd")
	assert.Equal(t, float64(100), body["wl"])
	assert.Equal(t, float64(config.FirmwareVersion), body["fwv"])
}

func TestChangeValuesRainDelay(t *testing.T) {
	srv, ctrl := newTestServer(t)

	body := get(t, srv, "/cv", authed(url.Values{"rd": {"2"}}))
	require.Equal(t, ResultSuccess, result(body))

	ctrl.Tick(srv.clock())
	state := get(t, srv, "/jc", authed(nil))
	assert.Equal(t, float64(1), state["rd"])

	// cancel
	get(t, srv, "/cv", authed(url.Values{"rd": {"0"}}))
	state = get(t, srv, "/jc", authed(nil))
	assert.Equal(t, float64(0), state["rd"])
}

func TestChangeValuesStopAll(t *testing.T) {
	srv, ctrl := newTestServer(t)

	require.NoError(t, ctrl.ManualRun(0, 300, srv.clock()))
	body := get(t, srv, "/cv", authed(url.Values{"rsn": {"1"}}))
	require.Equal(t, ResultSuccess, result(body))

	state := get(t, srv, "/jc", authed(nil))
	ps := state["ps"].([]interface{})
	first := ps[0].([]interface{})
	assert.Equal(t, float64(0), first[0])
}

func TestChangeOptions(t *testing.T) {
	srv, ctrl := newTestServer(t)

	body := get(t, srv, "/co", authed(url.Values{"wl": {"55"}}))
	require.Equal(t, ResultSuccess, result(body))

	ints, _ := ctrl.OptionsSnapshot()
	assert.Equal(t, 55, ints["wl"])

	body = get(t, srv, "/co", authed(url.Values{"bogus": {"1"}}))
	assert.Equal(t, ResultFormatError, result(body))

	body = get(t, srv, "/co", authed(url.Values{"wl": {"abc"}}))
	assert.Equal(t, ResultFormatError, result(body))

	// read-only options refuse writes
	body = get(t, srv, "/co", authed(url.Values{"fwv": {"1"}}))
	assert.Equal(t, ResultNotPermitted, result(body))
}

func TestPasswordChange(t *testing.T) {
	srv, ctrl := newTestServer(t)

	body := get(t, srv, "/co", authed(url.Values{"opw": {"wrong"}, "npw": {"newpass"}}))
	assert.Equal(t, ResultMismatch, result(body))

	body = get(t, srv, "/co", authed(url.Values{"opw": {"opendoor"}, "npw": {"newpass"}}))
	require.Equal(t, ResultSuccess, result(body))

	assert.False(t, ctrl.CheckPassword(defaultPW))
}

func TestProgramLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	v := `[1, 127, 0, [390, 32768, 32768, 32768], [60, 120, 0, 0, 0, 0, 0, 0]]`
	body := get(t, srv, "/cp", authed(url.Values{"pid": {"-1"}, "v": {v}, "name": {"Morning"}}))
	require.Equal(t, ResultSuccess, result(body))

	progs := get(t, srv, "/jp", authed(nil))
	assert.Equal(t, float64(1), progs["nprogs"])
	pd := progs["pd"].([]interface{})
	entry := pd[0].([]interface{})
	assert.Equal(t, float64(1), entry[0])
	assert.Equal(t, "Morning", entry[5])

	// move a second program up
	get(t, srv, "/cp", authed(url.Values{"pid": {"-1"}, "v": {v}, "name": {"Evening"}}))
	body = get(t, srv, "/up", authed(url.Values{"pid": {"1"}}))
	require.Equal(t, ResultSuccess, result(body))
	progs = get(t, srv, "/jp", authed(nil))
	pd = progs["pd"].([]interface{})
	assert.Equal(t, "Evening", pd[0].([]interface{})[5])

	// delete
	body = get(t, srv, "/dp", authed(url.Values{"pid": {"0"}}))
	require.Equal(t, ResultSuccess, result(body))
	progs = get(t, srv, "/jp", authed(nil))
	assert.Equal(t, float64(1), progs["nprogs"])

	body = get(t, srv, "/dp", authed(url.Values{"pid": {"9"}}))
	assert.Equal(t, ResultOutOfBounds, result(body))
}

func TestChangeProgramBadShape(t *testing.T) {
	srv, _ := newTestServer(t)

	body := get(t, srv, "/cp", authed(url.Values{"pid": {"-1"}, "v": {"[1, 2]"}}))
	assert.Equal(t, ResultFormatError, result(body))

	body = get(t, srv, "/cp", authed(url.Values{"pid": {"-1"}, "v": {"not json"}}))
	assert.Equal(t, ResultFormatError, result(body))

	body = get(t, srv, "/cp", authed(nil))
	assert.Equal(t, ResultDataMissing, result(body))
}

func TestManualCommand(t *testing.T) {
	srv, ctrl := newTestServer(t)

	body := get(t, srv, "/cm", authed(url.Values{"sid": {"2"}, "en": {"1"}, "t": {"300"}}))
	require.Equal(t, ResultSuccess, result(body))

	state := get(t, srv, "/jc", authed(nil))
	ps := state["ps"].([]interface{})
	entry := ps[2].([]interface{})
	assert.Equal(t, float64(model.ManualProgramID), entry[0])

	body = get(t, srv, "/cm", authed(url.Values{"sid": {"2"}, "en": {"0"}}))
	require.Equal(t, ResultSuccess, result(body))

	body = get(t, srv, "/cm", authed(url.Values{"sid": {"99"}, "en": {"1"}, "t": {"60"}}))
	assert.Equal(t, ResultOutOfBounds, result(body))
	_ = ctrl
}

func TestRunOnce(t *testing.T) {
	srv, _ := newTestServer(t)

	body := get(t, srv, "/cr", authed(url.Values{"t": {"[0, 60, 0, 120, 0, 0, 0, 0]"}}))
	require.Equal(t, ResultSuccess, result(body))

	state := get(t, srv, "/jc", authed(nil))
	ps := state["ps"].([]interface{})
	assert.Equal(t, float64(model.RunOnceProgramID), ps[1].([]interface{})[0])

	body = get(t, srv, "/cr", authed(url.Values{"t": {"oops"}}))
	assert.Equal(t, ResultFormatError, result(body))
}

func TestChangeStations(t *testing.T) {
	srv, ctrl := newTestServer(t)

	body := get(t, srv, "/cs", authed(url.Values{
		"s0": {"Front Lawn"},
		"g0": {"255"},
		"m1": {"1"},
		"r1": {"1"},
		"d2": {"1"},
	}))
	require.Equal(t, ResultSuccess, result(body))

	stations := ctrl.Stations()
	assert.Equal(t, "Front Lawn", stations[0].Name)
	assert.Equal(t, uint8(model.ParallelGroup), stations[0].GroupID)
	assert.True(t, stations[1].Master1Bound)
	assert.True(t, stations[1].IgnoreRain)
	assert.True(t, stations[2].Disabled)

	names := get(t, srv, "/js", authed(nil))
	assert.Equal(t, "Front Lawn", names["snames"].([]interface{})[0])

	attrs := get(t, srv, "/jn", authed(nil))
	masop := attrs["masop"].([]interface{})
	assert.Equal(t, float64(0b10), masop[0])

	body = get(t, srv, "/cs", authed(url.Values{"g0": {"oops"}}))
	assert.Equal(t, ResultFormatError, result(body))

	body = get(t, srv, "/cs", authed(nil))
	assert.Equal(t, ResultDataMissing, result(body))
}

func TestPauseQueue(t *testing.T) {
	srv, _ := newTestServer(t)

	body := get(t, srv, "/pq", authed(url.Values{"dur": {"120"}}))
	require.Equal(t, ResultSuccess, result(body))

	state := get(t, srv, "/jc", authed(nil))
	assert.Equal(t, float64(1), state["pq"])
	assert.Equal(t, float64(120), state["pt"])
}

func TestLogEndpoints(t *testing.T) {
	srv, ctrl := newTestServer(t)

	// drive a short run to completion so a record lands
	require.NoError(t, ctrl.ManualRun(0, 30, srv.clock()))
	ctrl.Tick(srv.clock())
	ctrl.Tick(srv.clock().Add(30 * time.Second))

	req := httptest.NewRequest(http.MethodGet, "/jl?"+authed(url.Values{"hist": {"1"}}).Encode(), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var records [][]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, int64(model.ManualProgramID), records[0][0])

	body := get(t, srv, "/jl", authed(nil))
	assert.Equal(t, ResultDataMissing, result(body))

	day := time.Unix(1700000030, 0).UTC()
	body = get(t, srv, "/dl", authed(url.Values{"day": {fmt.Sprintf("%04d%02d%02d", day.Year(), day.Month(), day.Day())}}))
	require.Equal(t, ResultSuccess, result(body))
}

func TestAggregateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	body := get(t, srv, "/ja", authed(nil))
	for _, key := range []string{"settings", "options", "stations", "programs"} {
		assert.Contains(t, body, key)
	}
}

func TestExportEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	body := get(t, srv, "/je", authed(nil))
	for _, key := range []string{"options", "stations", "programs"} {
		assert.Contains(t, body, key)
	}
}

func TestProgramWireRoundTrip(t *testing.T) {
	p := model.Program{
		Name:       "Roundtrip",
		Enabled:    true,
		UseWeather: true,
		Type:       model.ProgramInterval,
		OddEven:    model.RestrictEven,
		FixedStart: true,
		Days:       [2]uint8{2, 5},
		StartTimes: [4]uint16{390, 0x8000, 0x8000, 0x8000},
		Durations:  []int{60, 0, 120, 0, 0, 0, 0, 0},

		DateRangeEnabled: true,
		DateFrom:         int(time.May)<<5 | 1,
		DateTo:           int(time.September)<<5 | 30,
	}

	wire, err := json.Marshal(ProgramToWire(&p, 8))
	require.NoError(t, err)

	back, err := ProgramFromWire(wire)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestStationWireRoundTrip(t *testing.T) {
	st := model.Station{
		Name:          "Drip",
		Type:          model.StationGPIO,
		GroupID:       model.ParallelGroup,
		Master2Bound:  true,
		IgnoreSensor2: true,
		IgnoreRain:    true,
		ActivateRelay: true,
		Special:       &model.SpecialData{Pin: 12, ActiveHigh: true},
	}
	assert.Equal(t, st, StationFromWire(StationToWire(4, &st)))
}
