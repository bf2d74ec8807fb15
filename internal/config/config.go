package config

import (
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is the daemon's process configuration: file locations and runtime
// switches. Persistent settings live in the option table, not here.
type Config struct {
	DataDir  string
	LogLevel zerolog.Level

	// Demo swaps the pinctrl backend for the in-memory one so the daemon
	// runs on machines without a header.
	Demo bool

	// SafeMode keeps every hardware write disabled, for dry runs on the Pi.
	SafeMode bool

	// MetricsAddr is the DogStatsD agent address; empty disables metrics.
	MetricsAddr string

	// InstallBoot writes the boot pin script and systemd unit, then exits.
	InstallBoot bool
}

// Load parses flags and environment. A .env file in the working directory
// is honored the way the deployment scripts expect.
func Load() Config {
	_ = godotenv.Load()

	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.DataDir, "data-dir", envOr("DATA_DIR", "data"), "Directory holding options.yml, stations.yml, programs.yml and logs/")
	flag.StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.Demo, "demo", os.Getenv("DEMO_MODE") == "1", "Run without real GPIO hardware")
	flag.BoolVar(&cfg.SafeMode, "safe-mode", os.Getenv("SAFE_MODE") == "1", "Disable all hardware writes")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", envOr("DD_AGENT_ADDR", ""), "DogStatsD agent address (empty disables metrics)")
	flag.BoolVar(&cfg.InstallBoot, "install-boot", false, "Install the boot pin script and systemd unit, then exit")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Timezone builds the controller's wall-clock location from the tz option,
// which counts quarter hours with 48 meaning UTC.
func Timezone(o *Options) *time.Location {
	offsetMin := (o.Int(OptTimezone) - 48) * 15
	if offsetMin == 0 {
		return time.UTC
	}
	return time.FixedZone("controller", offsetMin*60)
}
