package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	o := DefaultOptions()

	assert.Equal(t, FirmwareVersion, o.Int(OptFirmwareVersion))
	assert.Equal(t, 100, o.Int(OptWaterLevel))
	assert.Equal(t, 1, o.Int(OptDeviceEnable))
	assert.Equal(t, 1, o.Int(OptNumBoards))
	assert.Equal(t, "Irrigation Controller", o.Str(OptDeviceName))
}

func TestSetIntClampsToRange(t *testing.T) {
	o := DefaultOptions()

	require.NoError(t, o.SetInt(OptWaterLevel, 999))
	assert.Equal(t, 250, o.Int(OptWaterLevel))

	require.NoError(t, o.SetInt(OptWaterLevel, -5))
	assert.Equal(t, 0, o.Int(OptWaterLevel))

	require.NoError(t, o.SetInt(OptMaster1OnAdj, -9999))
	assert.Equal(t, -600, o.Int(OptMaster1OnAdj))
}

func TestReadOnlyOptionRefusesWrite(t *testing.T) {
	o := DefaultOptions()
	assert.Error(t, o.SetInt(OptFirmwareVersion, 1))
	assert.Equal(t, FirmwareVersion, o.Int(OptFirmwareVersion))
}

func TestWireNameLookup(t *testing.T) {
	k, ok := IntOptionByWire("wl")
	require.True(t, ok)
	assert.Equal(t, OptWaterLevel, k)

	_, ok = IntOptionByWire("nope")
	assert.False(t, ok)

	sk, ok := StrOptionByWire("loc")
	require.True(t, ok)
	assert.Equal(t, OptLocation, sk)
}

func TestLocationParsing(t *testing.T) {
	o := DefaultOptions()

	o.SetStr(OptLocation, "51.5072, -0.1276")
	lat, lon, err := o.Location()
	require.NoError(t, err)
	assert.InDelta(t, 51.5072, lat, 1e-9)
	assert.InDelta(t, -0.1276, lon, 1e-9)

	o.SetStr(OptLocation, "junk")
	_, _, err = o.Location()
	assert.Error(t, err)
}

func TestOptionsRoundTrip(t *testing.T) {
	dir := t.TempDir()

	o := DefaultOptions()
	require.NoError(t, o.SetInt(OptWaterLevel, 65))
	require.NoError(t, o.SetInt(OptMaster1, 3))
	o.SetStr(OptDeviceName, "Back Garden")

	require.NoError(t, SaveOptions(dir, o))

	loaded := LoadOptions(dir)
	assert.Equal(t, 65, loaded.Int(OptWaterLevel))
	assert.Equal(t, 3, loaded.Int(OptMaster1))
	assert.Equal(t, "Back Garden", loaded.Str(OptDeviceName))
}

func TestLoadOptionsMissingFileUsesDefaults(t *testing.T) {
	o := LoadOptions(t.TempDir())
	assert.Equal(t, 100, o.Int(OptWaterLevel))
}

func TestLoadOptionsCorruptFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "options.yml"), []byte("{{not yaml"), 0644))

	o := LoadOptions(dir)
	assert.Equal(t, 100, o.Int(OptWaterLevel))
}

func TestTimezone(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, time.UTC, Timezone(o))

	require.NoError(t, o.SetInt(OptTimezone, 56)) // UTC+2
	_, offset := time.Now().In(Timezone(o)).Zone()
	assert.Equal(t, 2*3600, offset)
}
