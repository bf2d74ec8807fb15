package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/greenside/irrigation-controller/internal/model"
)

// IntOption is one entry in the closed integer option table. The legacy
// firmware kept an open-ended named option dictionary; here the set is a
// fixed enumeration with per-option metadata, and the API layer translates
// wire parameter names into these variants.
type IntOption int

const (
	OptFirmwareVersion IntOption = iota
	OptTimezone
	OptHTTPPort
	OptNumBoards
	OptDeviceEnable
	OptIgnorePassword
	OptWaterLevel
	OptStationDelay
	OptMaster1
	OptMaster1OnAdj
	OptMaster1OffAdj
	OptMaster2
	OptMaster2OnAdj
	OptMaster2OffAdj
	OptSensor1Type
	OptSensor1Option
	OptSensor1OnDelay
	OptSensor1OffDelay
	OptSensor2Type
	OptSensor2Option
	OptSensor2OnDelay
	OptSensor2OffDelay
	OptIgnoreRain
	OptIdleDisplayEnable
	OptTelemetryEnable

	numIntOptions
)

// StringOption is one entry in the closed string option table.
type StringOption int

const (
	OptPassword StringOption = iota // MD5 hex digest
	OptDeviceName
	OptLocation // "lat,lon"
	OptTelemetryURL
	OptTelemetryToken
	OptTelemetryOrg
	OptTelemetryBucket

	numStringOptions
)

type intMeta struct {
	wire     string
	def      int
	min      int
	max      int
	readOnly bool
}

// FirmwareVersion is reported through the read-only fwv option.
const FirmwareVersion = 300

var intMetaTable = [numIntOptions]intMeta{
	OptFirmwareVersion:   {"fwv", FirmwareVersion, 0, 65535, true},
	OptTimezone:          {"tz", 48, 0, 96, false}, // quarter-hour steps, 48 = UTC
	OptHTTPPort:          {"htp", 8080, 1, 65535, false},
	OptNumBoards:         {"nbrd", 1, 1, model.MaxBoards, false},
	OptDeviceEnable:      {"den", 1, 0, 1, false},
	OptIgnorePassword:    {"ipas", 0, 0, 1, false},
	OptWaterLevel:        {"wl", 100, 0, 250, false},
	OptStationDelay:      {"sdt", 0, 0, 240, false},
	OptMaster1:           {"mas", 0, 0, model.MaxStations, false},
	OptMaster1OnAdj:      {"mton", 0, -600, 600, false},
	OptMaster1OffAdj:     {"mtof", 0, -600, 600, false},
	OptMaster2:           {"mas2", 0, 0, model.MaxStations, false},
	OptMaster2OnAdj:      {"mton2", 0, -600, 600, false},
	OptMaster2OffAdj:     {"mtof2", 0, -600, 600, false},
	OptSensor1Type:       {"sn1t", 0, 0, 2, false},
	OptSensor1Option:     {"sn1o", 0, 0, 1, false},
	OptSensor1OnDelay:    {"sn1on", 5, 0, 3600, false},
	OptSensor1OffDelay:   {"sn1of", 5, 0, 3600, false},
	OptSensor2Type:       {"sn2t", 0, 0, 2, false},
	OptSensor2Option:     {"sn2o", 0, 0, 1, false},
	OptSensor2OnDelay:    {"sn2on", 5, 0, 3600, false},
	OptSensor2OffDelay:   {"sn2of", 5, 0, 3600, false},
	OptIgnoreRain:        {"ir", 0, 0, 1, false},
	OptIdleDisplayEnable: {"ide", 0, 0, 1, false},
	OptTelemetryEnable:   {"tle", 0, 0, 1, false},
}

type strMeta struct {
	wire string
	def  string
}

var strMetaTable = [numStringOptions]strMeta{
	OptPassword:       {"pwd", "a6d82bced638de3def1e9bbb4983225c"}, // md5("opendoor")
	OptDeviceName:     {"name", "Irrigation Controller"},
	OptLocation:       {"loc", "0.0,0.0"},
	OptTelemetryURL:   {"tlurl", ""},
	OptTelemetryToken: {"tltok", ""},
	OptTelemetryOrg:    {"tlorg", ""},
	OptTelemetryBucket: {"tlbkt", "irrigation"},
}

// Options holds the live option values. Not safe for unlocked concurrent
// use; callers go through the controller lock.
type Options struct {
	ints [numIntOptions]int
	strs [numStringOptions]string
}

// DefaultOptions returns a table populated with every default.
func DefaultOptions() *Options {
	o := &Options{}
	for i := range intMetaTable {
		o.ints[i] = intMetaTable[i].def
	}
	for i := range strMetaTable {
		o.strs[i] = strMetaTable[i].def
	}
	return o
}

func (o *Options) Int(k IntOption) int {
	return o.ints[k]
}

func (o *Options) Bool(k IntOption) bool {
	return o.ints[k] != 0
}

func (o *Options) Str(k StringOption) string {
	return o.strs[k]
}

// SetInt stores a value after clamping it into the option's range. Read-only
// options refuse the write.
func (o *Options) SetInt(k IntOption, v int) error {
	m := intMetaTable[k]
	if m.readOnly {
		return fmt.Errorf("option %s is read-only", m.wire)
	}
	if v < m.min {
		v = m.min
	}
	if v > m.max {
		v = m.max
	}
	o.ints[k] = v
	return nil
}

func (o *Options) SetStr(k StringOption, v string) {
	o.strs[k] = v
}

// IntOptionByWire resolves a wire parameter name to its option variant.
func IntOptionByWire(name string) (IntOption, bool) {
	for k, m := range intMetaTable {
		if m.wire == name {
			return IntOption(k), true
		}
	}
	return 0, false
}

// StrOptionByWire resolves a wire parameter name to its option variant.
func StrOptionByWire(name string) (StringOption, bool) {
	for k, m := range strMetaTable {
		if m.wire == name {
			return StringOption(k), true
		}
	}
	return 0, false
}

// WireName returns the legacy wire name of an integer option.
func (k IntOption) WireName() string {
	return intMetaTable[k].wire
}

// WireName returns the legacy wire name of a string option.
func (k StringOption) WireName() string {
	return strMetaTable[k].wire
}

// IntWireMap dumps every integer option keyed by wire name.
func (o *Options) IntWireMap() map[string]int {
	out := make(map[string]int, numIntOptions)
	for k, m := range intMetaTable {
		out[m.wire] = o.ints[k]
	}
	return out
}

// StrWireMap dumps every string option keyed by wire name. The password
// digest is included; callers exporting to untrusted surfaces blank it.
func (o *Options) StrWireMap() map[string]string {
	out := make(map[string]string, numStringOptions)
	for k, m := range strMetaTable {
		out[m.wire] = o.strs[k]
	}
	return out
}

// Location parses the "lat,lon" location option.
func (o *Options) Location() (lat, lon float64, err error) {
	parts := strings.Split(o.strs[OptLocation], ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed location %q", o.strs[OptLocation])
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}
