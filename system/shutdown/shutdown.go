package shutdown

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/greenside/irrigation-controller/internal/shiftreg"
)

var register *shiftreg.Driver

// Install arms the terminal handler: on SIGINT or SIGTERM the shift
// register is driven to all zeros before the process exits, so no solenoid
// is left energized by a restart or crash-stop.
func Install(sr *shiftreg.Driver) {
	register = sr

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		Shutdown(0)
	}()
}

// Shutdown parks every output low and exits.
func Shutdown(code int) {
	if register != nil {
		register.ClearAll()
		if err := register.Apply(false); err != nil {
			log.Error().Err(err).Msg("Failed to zero shift register on exit")
		} else {
			log.Info().Msg("Shift register cleared")
		}
	}
	os.Exit(code)
}

// ShutdownWithError logs a fatal condition and exits through the terminal
// handler so outputs are still parked safe.
func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Shutdown(1)
}
