package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/greenside/irrigation-controller/internal/config"
	"github.com/greenside/irrigation-controller/internal/logstore"
	"github.com/greenside/irrigation-controller/internal/model"
)

func versionString() string {
	return fmt.Sprintf("%d.%d.%d",
		config.FirmwareVersion/100, config.FirmwareVersion/10%10, config.FirmwareVersion%10)
}

// controllerStatePayload builds the /jc body.
func (s *Server) controllerStatePayload() map[string]interface{} {
	snap := s.ctrl.Snapshot(s.clock())

	ps := make([][]int64, len(snap.Status))
	for i, st := range snap.Status {
		ps[i] = []int64{int64(st.ProgramID), st.Remaining, st.StartTime, st.Duration}
	}

	lrun := []int64{0, 0, 0, 0}
	if snap.HaveLastRun {
		lrun = []int64{
			int64(snap.LastRun.StationID),
			int64(snap.LastRun.ProgramID),
			snap.LastRun.Duration,
			snap.LastRun.End,
		}
	}

	return map[string]interface{}{
		"devt":    snap.DeviceTime,
		"nbrd":    snap.NumBoards,
		"en":      boolBit(snap.Enabled),
		"rd":      boolBit(snap.RainDelayed),
		"rs":      boolBit(snap.RainSensed),
		"rdst":    snap.RainDelayStop,
		"sbits":   snap.StationBits,
		"ps":      ps,
		"lrun":    lrun,
		"sn1":     boolBit(snap.Sensor1),
		"sn2":     boolBit(snap.Sensor2),
		"pq":      boolBit(snap.Paused),
		"pt":      snap.PauseTimer,
		"sunrise": snap.SunriseMin,
		"sunset":  snap.SunsetMin,
	}
}

func (s *Server) handleControllerState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.controllerStatePayload())
}

// optionsPayload builds the /jo body. The password digest never leaves the
// device.
func (s *Server) optionsPayload() map[string]interface{} {
	ints, strs := s.ctrl.OptionsSnapshot()
	out := make(map[string]interface{}, len(ints)+len(strs))
	for k, v := range ints {
		out[k] = v
	}
	for k, v := range strs {
		if k == config.OptPassword.WireName() {
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.optionsPayload())
}

// programsPayload builds the /jp body.
func (s *Server) programsPayload() map[string]interface{} {
	programs := s.ctrl.Programs()
	numStations := len(s.ctrl.Stations())

	pd := make([][]interface{}, len(programs))
	for i := range programs {
		pd[i] = ProgramToWire(&programs[i], numStations)
	}
	return map[string]interface{}{
		"nprogs": len(programs),
		"mnp":    model.MaxPrograms,
		"pd":     pd,
	}
}

func (s *Server) handlePrograms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.programsPayload())
}

// stationNamesPayload builds the /js body.
func (s *Server) stationNamesPayload() map[string]interface{} {
	stations := s.ctrl.Stations()
	names := make([]string, len(stations))
	for i := range stations {
		names[i] = stations[i].Name
	}
	return map[string]interface{}{
		"snames":    names,
		"nstations": len(stations),
	}
}

func (s *Server) handleStationNames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.stationNamesPayload())
}

// handleStationAttrs builds the /jn body: one bitmask byte per board per
// attribute, bit position = station & 7.
func (s *Server) handleStationAttrs(w http.ResponseWriter, r *http.Request) {
	stations := s.ctrl.Stations()
	boards := (len(stations) + 7) / 8

	masop := make([]int, boards)
	masop2 := make([]int, boards)
	ignoreRain := make([]int, boards)
	stnDis := make([]int, boards)
	stnSeq := make([]int, boards)
	stnSpe := make([]int, boards)

	for i := range stations {
		st := &stations[i]
		board, bit := i>>3, 1<<(i&7)
		if st.Master1Bound {
			masop[board] |= bit
		}
		if st.Master2Bound {
			masop2[board] |= bit
		}
		if st.IgnoreRain {
			ignoreRain[board] |= bit
		}
		if st.Disabled {
			stnDis[board] |= bit
		}
		if !st.Parallel() {
			stnSeq[board] |= bit
		}
		if st.Type != model.StationStandard {
			stnSpe[board] |= bit
		}
	}

	writeJSON(w, map[string]interface{}{
		"masop":       masop,
		"masop2":      masop2,
		"ignore_rain": ignoreRain,
		"stn_dis":     stnDis,
		"stn_seq":     stnSeq,
		"stn_spe":     stnSpe,
	})
}

// handleExport dumps options, stations and programs for backup tooling.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	stations := s.ctrl.Stations()
	wires := make([]stationWire, len(stations))
	for i := range stations {
		wires[i] = StationToWire(i, &stations[i])
	}

	writeJSON(w, map[string]interface{}{
		"options":  s.optionsPayload(),
		"stations": wires,
		"programs": s.programsPayload(),
	})
}

// handleLog returns day-log records. Accepts start/end epoch seconds or
// hist=N days back from now.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := s.clock().Unix()

	var start, end int64
	switch {
	case q.Get("hist") != "":
		hist, err := strconv.Atoi(q.Get("hist"))
		if err != nil || hist < 0 {
			writeResult(w, ResultFormatError)
			return
		}
		start, end = now-int64(hist)*86400, now
	case q.Get("start") != "" && q.Get("end") != "":
		var err1, err2 error
		start, err1 = strconv.ParseInt(q.Get("start"), 10, 64)
		end, err2 = strconv.ParseInt(q.Get("end"), 10, 64)
		if err1 != nil || err2 != nil {
			writeResult(w, ResultFormatError)
			return
		}
	default:
		writeResult(w, ResultDataMissing)
		return
	}

	records, err := s.ctrl.ReadLog(start, end)
	if err != nil {
		writeResult(w, ResultFormatError)
		return
	}
	if records == nil {
		records = []logstore.Record{}
	}
	writeJSON(w, records)
}

// handleAll aggregates the four main read bodies into one response.
func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"settings": s.controllerStatePayload(),
		"options":  s.optionsPayload(),
		"stations": s.stationNamesPayload(),
		"programs": s.programsPayload(),
	})
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}
