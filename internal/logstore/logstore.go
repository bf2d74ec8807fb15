package logstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/greenside/irrigation-controller/internal/model"
)

// Record is one completed run or sensor event. On disk it is the legacy
// five-element array [program_id, station_id, duration, epoch_end, type].
type Record struct {
	ProgramID int
	StationID int
	Duration  int64
	End       int64
	Type      model.RunRecordType
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal([5]int64{int64(r.ProgramID), int64(r.StationID), r.Duration, r.End, int64(r.Type)})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var arr [5]int64
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	r.ProgramID = int(arr[0])
	r.StationID = int(arr[1])
	r.Duration = arr[2]
	r.End = arr[3]
	r.Type = model.RunRecordType(arr[4])
	return nil
}

// SensorRecord builds the pseudo-station record for a sensor transition.
// sensorNum is 1-based; duration 1 marks activation, 0 deactivation.
func SensorRecord(sensorNum int, active bool, now int64) Record {
	dur := int64(0)
	if active {
		dur = 1
	}
	return Record{
		ProgramID: 0,
		StationID: model.SensorLogStationBase + sensorNum - 1,
		Duration:  dur,
		End:       now,
		Type:      model.RecordSensor,
	}
}

// Store owns the logs/ directory of day files. Bucketing follows the
// controller's wall clock, not UTC, so a day file matches what the user saw.
type Store struct {
	dir string
	loc *time.Location
}

func New(dir string, loc *time.Location) *Store {
	return &Store{dir: dir, loc: loc}
}

// SetLocation repoints day bucketing after a timezone option change.
func (s *Store) SetLocation(loc *time.Location) {
	s.loc = loc
}

func (s *Store) dayFile(epochSec int64) string {
	t := time.Unix(epochSec, 0).In(s.loc)
	return filepath.Join(s.dir, fmt.Sprintf("%04d%02d%02d.json", t.Year(), t.Month(), t.Day()))
}

// Append adds a record to its day file, creating the directory and file on
// first use.
func (s *Store) Append(rec Record) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	path := s.dayFile(rec.End)
	records, err := readFile(path)
	if err != nil {
		return err
	}
	records = append(records, rec)

	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Read returns every record whose day file falls inside [start, end], both
// epoch seconds. Missing day files are skipped.
func (s *Store) Read(start, end int64) ([]Record, error) {
	var out []Record
	startDay := time.Unix(start, 0).In(s.loc)
	startDay = time.Date(startDay.Year(), startDay.Month(), startDay.Day(), 0, 0, 0, 0, s.loc)

	for day := startDay; day.Unix() <= end; day = day.AddDate(0, 0, 1) {
		records, err := readFile(s.dayFile(day.Unix()))
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// Delete removes one day file (yyyymmdd) or, with "all", every day file.
func (s *Store) Delete(day string) error {
	if day == "all" {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		for _, e := range entries {
			if filepath.Ext(e.Name()) == ".json" {
				if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
					return err
				}
			}
		}
		return nil
	}

	err := os.Remove(filepath.Join(s.dir, day+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func readFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		// a corrupt day file loses that day, not the whole store
		return nil, nil
	}
	return records, nil
}
