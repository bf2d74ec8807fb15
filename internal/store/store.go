package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/greenside/irrigation-controller/internal/model"
)

// Store persists the station set and the program list as YAML in the data
// directory, the on-disk contract the legacy tooling shares. Writes go
// through a temp file and rename so a crash mid-save cannot truncate state.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

type stationRecord struct {
	ID            int                `yaml:"id"`
	Name          string             `yaml:"name"`
	Type          model.StationType  `yaml:"type"`
	GroupID       uint8              `yaml:"group_id"`
	Master1Bound  bool               `yaml:"master1_bound"`
	Master2Bound  bool               `yaml:"master2_bound"`
	IgnoreSensor1 bool               `yaml:"ignore_sensor1"`
	IgnoreSensor2 bool               `yaml:"ignore_sensor2"`
	IgnoreRain    bool               `yaml:"ignore_rain"`
	Disabled      bool               `yaml:"disabled"`
	ActivateRelay bool               `yaml:"activate_relay"`
	Special       *model.SpecialData `yaml:"special_data,omitempty"`
}

type stationsFile struct {
	Stations []stationRecord `yaml:"stations"`
}

type programsFile struct {
	Programs []model.Program `yaml:"programs"`
}

// LoadStations reads stations.yml. A missing file returns an empty set and
// no error; boot treats that as first run. Read and parse failures are
// returned as errors.
func (s *Store) LoadStations() ([]model.Station, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "stations.yml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var file stationsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	// records carry explicit ids so hand-edited files with gaps still land
	// on the right indexes
	maxID := -1
	for _, r := range file.Stations {
		if r.ID > maxID {
			maxID = r.ID
		}
	}
	if maxID < 0 {
		return nil, nil
	}
	stations := make([]model.Station, maxID+1)
	for i := range stations {
		stations[i] = DefaultStation(i)
	}
	for _, r := range file.Stations {
		if r.ID < 0 || r.ID >= len(stations) {
			continue
		}
		stations[r.ID] = model.Station{
			Name:          r.Name,
			Type:          r.Type,
			GroupID:       r.GroupID,
			Master1Bound:  r.Master1Bound,
			Master2Bound:  r.Master2Bound,
			IgnoreSensor1: r.IgnoreSensor1,
			IgnoreSensor2: r.IgnoreSensor2,
			IgnoreRain:    r.IgnoreRain,
			Disabled:      r.Disabled,
			ActivateRelay: r.ActivateRelay,
			Special:       r.Special,
		}
	}
	return stations, nil
}

// SaveStations writes stations.yml atomically.
func (s *Store) SaveStations(stations []model.Station) error {
	file := stationsFile{Stations: make([]stationRecord, len(stations))}
	for i, st := range stations {
		file.Stations[i] = stationRecord{
			ID:            i,
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
	return s.writeYAML("stations.yml", &file)
}

// LoadPrograms reads programs.yml; missing file means no programs.
func (s *Store) LoadPrograms() ([]model.Program, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "programs.yml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var file programsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Programs, nil
}

// SavePrograms writes programs.yml atomically.
func (s *Store) SavePrograms(programs []model.Program) error {
	return s.writeYAML("programs.yml", &programsFile{Programs: programs})
}

func (s *Store) writeYAML(name string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.dir, name))
}

// DefaultStation is the factory state of a station slot.
func DefaultStation(id int) model.Station {
	return model.Station{
		Name:       defaultName(id),
		Type:       model.StationStandard,
		GroupID:    0,
		IgnoreRain: false,
	}
}

func defaultName(id int) string {
	// match the legacy S01..Snn naming
	return fmt.Sprintf("S%02d", id+1)
}
