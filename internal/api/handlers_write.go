package api

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/greenside/irrigation-controller/internal/config"
	"github.com/greenside/irrigation-controller/internal/controller"
	"github.com/greenside/irrigation-controller/internal/model"
)

// resultFor maps controller errors onto legacy result codes.
func resultFor(err error) int {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, controller.ErrOutOfRange):
		return ResultOutOfBounds
	case errors.Is(err, controller.ErrCapacity):
		return ResultOutOfBounds
	case errors.Is(err, controller.ErrBadInput):
		return ResultFormatError
	case errors.Is(err, controller.ErrNotPermitted):
		return ResultNotPermitted
	default:
		return ResultFormatError
	}
}

// handleChangeValues services /cv: device enable, rain delay, stop-all.
func (s *Server) handleChangeValues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if v := q.Get("en"); v != "" {
		en, err := strconv.Atoi(v)
		if err != nil {
			writeResult(w, ResultFormatError)
			return
		}
		s.ctrl.SetDeviceEnable(en != 0)
	}

	if v := q.Get("rd"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours < 0 {
			writeResult(w, ResultFormatError)
			return
		}
		s.ctrl.SetRainDelay(hours, s.clock())
	}

	if v := q.Get("rsn"); v != "" && v != "0" {
		s.ctrl.StopAll()
	}

	writeResult(w, ResultSuccess)
}

// handleChangeOptions services /co. Every query parameter other than pw,
// opw and npw is treated as an option wire name. Password changes require
// the old cleartext in opw and the new one in npw.
func (s *Server) handleChangeOptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if npw := q.Get("npw"); npw != "" {
		sum := md5.Sum([]byte(q.Get("opw")))
		if !s.ctrl.CheckPassword(hex.EncodeToString(sum[:])) {
			writeResult(w, ResultMismatch)
			return
		}
		s.ctrl.SetPassword(npw)
	}

	for name, values := range q {
		if name == "pw" || name == "opw" || name == "npw" || len(values) == 0 {
			continue
		}
		value := values[0]

		if _, ok := config.IntOptionByWire(name); ok {
			n, err := strconv.Atoi(value)
			if err != nil {
				writeResult(w, ResultFormatError)
				return
			}
			if err := s.ctrl.SetIntOption(name, n); err != nil {
				writeResult(w, resultFor(err))
				return
			}
			continue
		}
		if _, ok := config.StrOptionByWire(name); ok {
			if name == config.OptPassword.WireName() {
				// the digest is only writable through opw/npw
				writeResult(w, ResultNotPermitted)
				return
			}
			if err := s.ctrl.SetStrOption(name, value); err != nil {
				writeResult(w, resultFor(err))
				return
			}
			continue
		}
		writeResult(w, ResultFormatError)
		return
	}

	writeResult(w, ResultSuccess)
}

// handleChangeProgram services /cp. pid=-1 appends; v carries the wire
// array; a bare en parameter toggles the program without a full rewrite.
func (s *Server) handleChangeProgram(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pidStr := q.Get("pid")
	if pidStr == "" {
		writeResult(w, ResultDataMissing)
		return
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		writeResult(w, ResultFormatError)
		return
	}

	if v := q.Get("en"); v != "" && q.Get("v") == "" {
		en, err := strconv.Atoi(v)
		if err != nil {
			writeResult(w, ResultFormatError)
			return
		}
		writeResult(w, resultFor(s.ctrl.EnableProgram(pid, en != 0, s.clock())))
		return
	}

	v := q.Get("v")
	if v == "" {
		writeResult(w, ResultDataMissing)
		return
	}
	p, err := ProgramFromWire([]byte(v))
	if err != nil {
		writeResult(w, ResultFormatError)
		return
	}
	if name := q.Get("name"); name != "" {
		p.Name = name
	}
	writeResult(w, resultFor(s.ctrl.SetProgram(pid, p)))
}

// handleDeleteProgram services /dp; pid=-1 wipes every program.
func (s *Server) handleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(r.URL.Query().Get("pid"))
	if err != nil {
		writeResult(w, ResultFormatError)
		return
	}

	if pid == -1 {
		for len(s.ctrl.Programs()) > 0 {
			if err := s.ctrl.DeleteProgram(0, s.clock()); err != nil {
				writeResult(w, resultFor(err))
				return
			}
		}
		writeResult(w, ResultSuccess)
		return
	}
	writeResult(w, resultFor(s.ctrl.DeleteProgram(pid, s.clock())))
}

// handleMoveProgramUp services /up.
func (s *Server) handleMoveProgramUp(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(r.URL.Query().Get("pid"))
	if err != nil {
		writeResult(w, ResultFormatError)
		return
	}
	writeResult(w, resultFor(s.ctrl.MoveProgramUp(pid)))
}

// handleManualProgram services /mp: start a stored program now. uwt=0
// waters the raw durations.
func (s *Server) handleManualProgram(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pid, err := strconv.Atoi(q.Get("pid"))
	if err != nil {
		writeResult(w, ResultFormatError)
		return
	}
	useWeather := q.Get("uwt") != "0"
	writeResult(w, resultFor(s.ctrl.RunProgram(pid, useWeather, s.clock())))
}

// handleChangeStations services /cs. Per-station parameters are suffixed
// with the station id: s3=name, g3=group, m3/n3=master bindings, r3=ignore
// rain, d3=disabled, u3/v3=sensor ignores, t3=kind, sd3=special data JSON.
func (s *Server) handleChangeStations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stations := s.ctrl.Stations()
	touched := false

	for i := range stations {
		suffix := strconv.Itoa(i)
		st := &stations[i]

		if v, ok := queryHas(q, "s"+suffix); ok {
			st.Name = v
			touched = true
		}
		if v, ok := queryHas(q, "g"+suffix); ok {
			g, err := strconv.Atoi(v)
			if err != nil || g < 0 || g > 255 {
				writeResult(w, ResultFormatError)
				return
			}
			st.GroupID = uint8(g)
			touched = true
		}
		if bv, ok, bad := queryBit(q, "m"+suffix); bad {
			writeResult(w, ResultFormatError)
			return
		} else if ok {
			st.Master1Bound = bv
			touched = true
		}
		if bv, ok, bad := queryBit(q, "n"+suffix); bad {
			writeResult(w, ResultFormatError)
			return
		} else if ok {
			st.Master2Bound = bv
			touched = true
		}
		if bv, ok, bad := queryBit(q, "r"+suffix); bad {
			writeResult(w, ResultFormatError)
			return
		} else if ok {
			st.IgnoreRain = bv
			touched = true
		}
		if bv, ok, bad := queryBit(q, "d"+suffix); bad {
			writeResult(w, ResultFormatError)
			return
		} else if ok {
			st.Disabled = bv
			touched = true
		}
		if bv, ok, bad := queryBit(q, "u"+suffix); bad {
			writeResult(w, ResultFormatError)
			return
		} else if ok {
			st.IgnoreSensor1 = bv
			touched = true
		}
		if bv, ok, bad := queryBit(q, "v"+suffix); bad {
			writeResult(w, ResultFormatError)
			return
		} else if ok {
			st.IgnoreSensor2 = bv
			touched = true
		}
		if v, ok := queryHas(q, "t"+suffix); ok {
			st.Type = model.StationType(v)
			touched = true
		}
		if v, ok := queryHas(q, "sd"+suffix); ok {
			var sd model.SpecialData
			if err := json.Unmarshal([]byte(v), &sd); err != nil {
				writeResult(w, ResultFormatError)
				return
			}
			st.Special = &sd
			touched = true
		}
	}

	if !touched {
		writeResult(w, ResultDataMissing)
		return
	}
	writeResult(w, resultFor(s.ctrl.ReplaceStations(stations)))
}

// handleManualCommand services /cm: sid, en, t seconds.
func (s *Server) handleManualCommand(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sid, err := strconv.Atoi(q.Get("sid"))
	if err != nil {
		writeResult(w, ResultFormatError)
		return
	}
	en, err := strconv.Atoi(q.Get("en"))
	if err != nil {
		writeResult(w, ResultFormatError)
		return
	}

	if en == 0 {
		writeResult(w, resultFor(s.ctrl.ManualRun(sid, 0, s.clock())))
		return
	}

	seconds, err := strconv.Atoi(q.Get("t"))
	if err != nil || seconds <= 0 {
		writeResult(w, ResultFormatError)
		return
	}
	writeResult(w, resultFor(s.ctrl.ManualRun(sid, seconds, s.clock())))
}

// handleRunOnce services /cr: t is a JSON array of per-station seconds.
func (s *Server) handleRunOnce(w http.ResponseWriter, r *http.Request) {
	t := r.URL.Query().Get("t")
	if t == "" {
		writeResult(w, ResultDataMissing)
		return
	}
	var durations []int
	if err := json.Unmarshal([]byte(t), &durations); err != nil {
		writeResult(w, ResultFormatError)
		return
	}
	writeResult(w, resultFor(s.ctrl.RunOnce(durations, s.clock())))
}

// handlePauseQueue services /pq: toggles a pause of dur seconds.
func (s *Server) handlePauseQueue(w http.ResponseWriter, r *http.Request) {
	dur, err := strconv.Atoi(r.URL.Query().Get("dur"))
	if err != nil || dur < 0 {
		writeResult(w, ResultFormatError)
		return
	}
	s.ctrl.TogglePause(dur, s.clock())
	writeResult(w, ResultSuccess)
}

// handleDeleteLog services /dl: day=yyyymmdd or "all".
func (s *Server) handleDeleteLog(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		writeResult(w, ResultDataMissing)
		return
	}
	if err := s.ctrl.DeleteLog(day); err != nil {
		writeResult(w, ResultFormatError)
		return
	}
	writeResult(w, ResultSuccess)
}

func queryHas(q map[string][]string, key string) (string, bool) {
	if vs, ok := q[key]; ok && len(vs) > 0 {
		return vs[0], true
	}
	return "", false
}

func queryBit(q map[string][]string, key string) (value, present, malformed bool) {
	v, ok := queryHas(q, key)
	if !ok {
		return false, false, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || (n != 0 && n != 1) {
		return false, false, true
	}
	return n == 1, true, false
}
