package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greenside/irrigation-controller/internal/api"
	"github.com/greenside/irrigation-controller/internal/config"
	"github.com/greenside/irrigation-controller/internal/controller"
	"github.com/greenside/irrigation-controller/internal/datadog"
	"github.com/greenside/irrigation-controller/internal/gpio"
	"github.com/greenside/irrigation-controller/internal/logging"
	"github.com/greenside/irrigation-controller/internal/logstore"
	"github.com/greenside/irrigation-controller/internal/sensor"
	"github.com/greenside/irrigation-controller/internal/shiftreg"
	"github.com/greenside/irrigation-controller/internal/store"
	"github.com/greenside/irrigation-controller/internal/telemetry"
	"github.com/greenside/irrigation-controller/system/shutdown"
	"github.com/greenside/irrigation-controller/system/startup"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.Demo)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Bool("demo", cfg.Demo).
		Msg("Starting irrigation controller")

	if cfg.InstallBoot {
		scriptPath := "/usr/local/sbin/irrigation-gpio-boot.sh"
		if err := startup.WriteBootScript(scriptPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to write boot script")
		}
		if err := startup.InstallStartupService(scriptPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to install startup service")
		}
		log.Info().Str("script", scriptPath).Msg("Boot configuration installed")
		return
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}

	opts := config.LoadOptions(cfg.DataDir)

	datadog.InitMetrics(cfg.MetricsAddr, "irrigation.", nil)

	var backend gpio.Backend
	if cfg.Demo || cfg.SafeMode {
		if cfg.SafeMode {
			log.Warn().Msg("SAFE MODE ENABLED — hardware writes are disabled system-wide")
		}
		backend = gpio.NewDemo()
	} else {
		backend = gpio.NewPinctrl()
		if err := gpio.ValidateBootPins(config.PinOutputEnable); err != nil {
			log.Fatal().Err(err).Msg("Refusing to enable output boards due to unsafe pin states")
		}
	}

	sr := shiftreg.New(backend, shiftreg.Pins{
		Latch:        config.PinLatch,
		Data:         config.PinData,
		Clock:        config.PinClock,
		OutputEnable: config.PinOutputEnable,
	}, opts.Int(config.OptNumBoards))
	if err := sr.Setup(); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure shift register pins")
	}
	shutdown.Install(sr)

	s1 := sensor.New(backend, config.PinSensor1)
	s2 := sensor.New(backend, config.PinSensor2)
	for i, s := range []*sensor.Debouncer{s1, s2} {
		if err := s.Setup(); err != nil {
			log.Error().Err(err).Int("sensor", i+1).Msg("Failed to configure sensor pin")
			shutdown.Shutdown(1)
		}
	}

	var telem controller.Telemetry
	if opts.Bool(config.OptTelemetryEnable) {
		if influx := telemetry.NewInflux(
			opts.Str(config.OptTelemetryURL),
			opts.Str(config.OptTelemetryToken),
			opts.Str(config.OptTelemetryOrg),
			opts.Str(config.OptTelemetryBucket),
		); influx != nil {
			telem = influx
			defer influx.Close()
		}
	}

	ctrl := controller.New(controller.Deps{
		Options:  opts,
		Store:    store.New(cfg.DataDir),
		Logs:     logstore.New(filepath.Join(cfg.DataDir, "logs"), config.Timezone(opts)),
		DataDir:  cfg.DataDir,
		Register: sr,
		Sensor1:  s1,
		Sensor2:  s2,
		Effector: controller.NewKindEffector(backend),
		Telem:    telem,
	})
	if err := ctrl.LoadState(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load persisted state")
	}

	server := api.NewServer(ctrl)
	go func() {
		if err := server.Start(opts.Int(config.OptHTTPPort)); err != nil {
			shutdown.ShutdownWithError(err, "HTTP server failed")
		}
	}()

	// 10 Hz poll; the controller gates real work on the second boundary
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		ctrl.Tick(time.Now())
	}
}
