package model

const (
	// MaxBoards is the number of stacked 74HC595 boards supported, eight
	// stations per board.
	MaxBoards   = 25
	MaxStations = MaxBoards * 8

	MaxPrograms = 40

	// ParallelGroup is the sequential-group id that opts a station out of
	// group serialization.
	ParallelGroup = 255

	// NumSequentialGroups is the number of real serialization buckets.
	// Group ids above the last bucket (other than ParallelGroup) are
	// clamped into the last bucket.
	NumSequentialGroups = 4

	// Reserved program ids for non-program admissions.
	ManualProgramID  = 99
	RunOnceProgramID = 254

	// Pseudo station id base for sensor events in the run log.
	SensorLogStationBase = 200
)

type StationType string

const (
	StationStandard StationType = "standard"
	StationGPIO     StationType = "gpio"
	StationHTTP     StationType = "http"
	StationRemoteIP StationType = "remote_ip"
	StationRF       StationType = "rf"
)

// SpecialData carries the per-kind payload for non-standard stations. Only
// the fields for the station's type are meaningful.
type SpecialData struct {
	// gpio
	Pin        int  `yaml:"pin,omitempty"`
	ActiveHigh bool `yaml:"active_high,omitempty"`

	// http
	Host   string `yaml:"host,omitempty"`
	Port   int    `yaml:"port,omitempty"`
	OnCmd  string `yaml:"on_cmd,omitempty"`
	OffCmd string `yaml:"off_cmd,omitempty"`

	// remote_ip
	IP              string `yaml:"ip,omitempty"`
	RemoteStationID int    `yaml:"remote_station_id,omitempty"`

	// rf
	RFCode string `yaml:"rf_code,omitempty"`
}

// Station is one solenoid output channel. Identity is the stable zero-based
// index into the station set; board index is id>>3, bit position id&7.
type Station struct {
	Name          string       `yaml:"name"`
	Type          StationType  `yaml:"type"`
	GroupID       uint8        `yaml:"group_id"`
	Master1Bound  bool         `yaml:"master1_bound"`
	Master2Bound  bool         `yaml:"master2_bound"`
	IgnoreSensor1 bool         `yaml:"ignore_sensor1"`
	IgnoreSensor2 bool         `yaml:"ignore_sensor2"`
	IgnoreRain    bool         `yaml:"ignore_rain"`
	Disabled      bool         `yaml:"disabled"`
	ActivateRelay bool         `yaml:"activate_relay"`
	Special       *SpecialData `yaml:"special_data,omitempty"`
}

// Parallel reports whether the station ignores group serialization.
func (s *Station) Parallel() bool {
	return s.GroupID == ParallelGroup
}

// SeqGroup returns the serialization bucket for a sequential station.
func (s *Station) SeqGroup() int {
	g := int(s.GroupID)
	if g >= NumSequentialGroups {
		g = NumSequentialGroups - 1
	}
	return g
}

type ProgramType uint8

const (
	ProgramWeekly ProgramType = iota
	ProgramSingleRun
	ProgramMonthly
	ProgramInterval
)

type OddEven uint8

const (
	RestrictNone OddEven = iota
	RestrictOdd
	RestrictEven
)

// NumStartTimes is the number of start-time slots per program. Fixed mode
// uses all four as independent starts; repeating mode uses slot 0 as the
// first start, slot 1 as the repeat count and slot 2 as the interval in
// minutes.
const NumStartTimes = 4

type Program struct {
	ID         int         `yaml:"id"`
	Name       string      `yaml:"name"`
	Enabled    bool        `yaml:"enabled"`
	UseWeather bool        `yaml:"use_weather"`
	Type       ProgramType `yaml:"type"`
	OddEven    OddEven     `yaml:"oddeven"`
	FixedStart bool        `yaml:"fixed_start"`

	// Days interpretation depends on Type: weekly = weekday bitmask in
	// Days[0] (Monday bit 0); single_run = epoch day (Days[0]<<8)|Days[1];
	// monthly = day of month in Days[0]&0x1f, zero meaning last day;
	// interval = remainder Days[0], interval Days[1].
	Days [2]uint8 `yaml:"days"`

	StartTimes [NumStartTimes]uint16 `yaml:"starttimes"`

	// Durations holds seconds per station; zero means the station is not
	// in this program.
	Durations []int `yaml:"durations"`

	DateRangeEnabled bool `yaml:"date_range_enabled"`
	// DateFrom and DateTo encode (month<<5)|day. A from greater than to
	// wraps the year.
	DateFrom int `yaml:"date_from"`
	DateTo   int `yaml:"date_to"`
}

// DurationFor returns the program's base watering seconds for a station, or
// zero when the station is out of range or not in the program.
func (p *Program) DurationFor(station int) int {
	if station < 0 || station >= len(p.Durations) {
		return 0
	}
	return p.Durations[station]
}

// Program wire flag byte layout.
const (
	FlagEnabled    = 1 << 0
	FlagUseWeather = 1 << 1
	flagOddEvenPos = 2
	flagTypePos    = 4
	FlagFixedStart = 1 << 6
	FlagDateRange  = 1 << 7
)

// FlagByte packs the program's boolean and enum attributes into the legacy
// wire flag byte.
func (p *Program) FlagByte() uint8 {
	var b uint8
	if p.Enabled {
		b |= FlagEnabled
	}
	if p.UseWeather {
		b |= FlagUseWeather
	}
	b |= (uint8(p.OddEven) & 0x3) << flagOddEvenPos
	b |= (uint8(p.Type) & 0x3) << flagTypePos
	if p.FixedStart {
		b |= FlagFixedStart
	}
	if p.DateRangeEnabled {
		b |= FlagDateRange
	}
	return b
}

// ApplyFlagByte unpacks a legacy wire flag byte into the program.
func (p *Program) ApplyFlagByte(b uint8) {
	p.Enabled = b&FlagEnabled != 0
	p.UseWeather = b&FlagUseWeather != 0
	p.OddEven = OddEven((b >> flagOddEvenPos) & 0x3)
	p.Type = ProgramType((b >> flagTypePos) & 0x3)
	p.FixedStart = b&FlagFixedStart != 0
	p.DateRangeEnabled = b&FlagDateRange != 0
}

// RunRecordType classifies completed-run log records.
type RunRecordType int

const (
	RecordProgram RunRecordType = 0
	RecordManual  RunRecordType = 1
	RecordRunOnce RunRecordType = 2
	RecordSensor  RunRecordType = 3
	RecordFlow    RunRecordType = 4
)

// RecordTypeFor derives the run-record type from the admitting program id.
func RecordTypeFor(programID int) RunRecordType {
	switch programID {
	case ManualProgramID:
		return RecordManual
	case RunOnceProgramID:
		return RecordRunOnce
	default:
		return RecordProgram
	}
}
