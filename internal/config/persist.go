package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// optionsFile is the on-disk shape of options.yml: two wire-name keyed maps,
// the format the legacy tooling reads.
type optionsFile struct {
	Integers map[string]int    `yaml:"integers"`
	Strings  map[string]string `yaml:"strings"`
}

// LoadOptions reads options.yml from dir. A missing or corrupt file yields
// defaults; unknown keys are logged and dropped so stale files from older
// firmware do not wedge startup.
func LoadOptions(dir string) *Options {
	o := DefaultOptions()

	data, err := os.ReadFile(filepath.Join(dir, "options.yml"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Msg("Failed to read options.yml, using defaults")
		}
		return o
	}

	var file optionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		log.Warn().Err(err).Msg("Corrupt options.yml, using defaults")
		return o
	}

	for name, v := range file.Integers {
		k, ok := IntOptionByWire(name)
		if !ok {
			log.Warn().Str("option", name).Msg("Unknown integer option in options.yml")
			continue
		}
		if err := o.SetInt(k, v); err != nil {
			log.Debug().Str("option", name).Msg("Skipping read-only option from file")
		}
	}
	for name, v := range file.Strings {
		k, ok := StrOptionByWire(name)
		if !ok {
			log.Warn().Str("option", name).Msg("Unknown string option in options.yml")
			continue
		}
		o.SetStr(k, v)
	}
	return o
}

// SaveOptions writes options.yml atomically. Failures are reported so the
// caller can log and keep the in-memory state.
func SaveOptions(dir string, o *Options) error {
	file := optionsFile{
		Integers: o.IntWireMap(),
		Strings:  o.StrWireMap(),
	}
	data, err := yaml.Marshal(&file)
	if err != nil {
		return err
	}

	tmp := filepath.Join(dir, "options.yml.tmp")
	out := filepath.Join(dir, "options.yml")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, out)
}
