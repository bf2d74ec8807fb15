package api

import (
	"encoding/json"
	"fmt"

	"github.com/greenside/irrigation-controller/internal/model"
)

// ProgramToWire renders a program as the legacy pd[] entry:
// [flag, days0, days1, [4 start times], [durations], name, [dr_en, from, to]].
// Durations are zero-padded out to numStations.
func ProgramToWire(p *model.Program, numStations int) []interface{} {
	starts := make([]int, model.NumStartTimes)
	for i, st := range p.StartTimes {
		starts[i] = int(st)
	}
	durations := make([]int, numStations)
	copy(durations, p.Durations)

	drEn := 0
	if p.DateRangeEnabled {
		drEn = 1
	}

	return []interface{}{
		p.FlagByte(),
		p.Days[0],
		p.Days[1],
		starts,
		durations,
		p.Name,
		[]int{drEn, p.DateFrom, p.DateTo},
	}
}

// ProgramFromWire parses a pd[]-shaped JSON array back into a program. The
// name and date-range elements are optional, matching what older UIs send.
func ProgramFromWire(data []byte) (model.Program, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return model.Program{}, fmt.Errorf("program array: %w", err)
	}
	if len(parts) < 5 {
		return model.Program{}, fmt.Errorf("program array has %d elements, need 5", len(parts))
	}

	var flag uint8
	var days0, days1 uint8
	var starts []uint16
	var durations []int

	if err := json.Unmarshal(parts[0], &flag); err != nil {
		return model.Program{}, fmt.Errorf("flag byte: %w", err)
	}
	if err := json.Unmarshal(parts[1], &days0); err != nil {
		return model.Program{}, fmt.Errorf("days0: %w", err)
	}
	if err := json.Unmarshal(parts[2], &days1); err != nil {
		return model.Program{}, fmt.Errorf("days1: %w", err)
	}
	if err := json.Unmarshal(parts[3], &starts); err != nil {
		return model.Program{}, fmt.Errorf("start times: %w", err)
	}
	if len(starts) != model.NumStartTimes {
		return model.Program{}, fmt.Errorf("expected %d start times, got %d", model.NumStartTimes, len(starts))
	}
	if err := json.Unmarshal(parts[4], &durations); err != nil {
		return model.Program{}, fmt.Errorf("durations: %w", err)
	}

	var p model.Program
	p.ApplyFlagByte(flag)
	p.Days = [2]uint8{days0, days1}
	copy(p.StartTimes[:], starts)
	p.Durations = durations

	if len(parts) > 5 {
		if err := json.Unmarshal(parts[5], &p.Name); err != nil {
			return model.Program{}, fmt.Errorf("name: %w", err)
		}
	}
	if len(parts) > 6 {
		var dr []int
		if err := json.Unmarshal(parts[6], &dr); err != nil || len(dr) != 3 {
			return model.Program{}, fmt.Errorf("date range: bad shape")
		}
		p.DateRangeEnabled = dr[0] != 0
		p.DateFrom = dr[1]
		p.DateTo = dr[2]
	}
	return p, nil
}

// stationWire is the per-station record used by /je exports and /cs bulk
// imports.
type stationWire struct {
	ID            int                `json:"id"`
	Name          string             `json:"name"`
	Type          model.StationType  `json:"type"`
	GroupID       uint8              `json:"group_id"`
	Master1Bound  bool               `json:"master1_bound"`
	Master2Bound  bool               `json:"master2_bound"`
	IgnoreSensor1 bool               `json:"ignore_sensor1"`
	IgnoreSensor2 bool               `json:"ignore_sensor2"`
	IgnoreRain    bool               `json:"ignore_rain"`
	Disabled      bool               `json:"disabled"`
	ActivateRelay bool               `json:"activate_relay"`
	Special       *model.SpecialData `json:"special_data,omitempty"`
}

// StationToWire renders one station record.
func StationToWire(id int, st *model.Station) stationWire {
	return stationWire{
		ID:            id,
		Name:          st.Name,
		Type:          st.Type,
		GroupID:       st.GroupID,
		Master1Bound:  st.Master1Bound,
		Master2Bound:  st.Master2Bound,
		IgnoreSensor1: st.IgnoreSensor1,
		IgnoreSensor2: st.IgnoreSensor2,
		IgnoreRain:    st.IgnoreRain,
		Disabled:      st.Disabled,
		ActivateRelay: st.ActivateRelay,
		Special:       st.Special,
	}
}

// StationFromWire converts a record back into a station.
func StationFromWire(w stationWire) model.Station {
	return model.Station{
		Name:          w.Name,
		Type:          w.Type,
		GroupID:       w.GroupID,
		Master1Bound:  w.Master1Bound,
		Master2Bound:  w.Master2Bound,
		IgnoreSensor1: w.IgnoreSensor1,
		IgnoreSensor2: w.IgnoreSensor2,
		IgnoreRain:    w.IgnoreRain,
		Disabled:      w.Disabled,
		ActivateRelay: w.ActivateRelay,
		Special:       w.Special,
	}
}
