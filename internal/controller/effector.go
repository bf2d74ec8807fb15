package controller

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greenside/irrigation-controller/internal/gpio"
	"github.com/greenside/irrigation-controller/internal/model"
)

// Effector performs the side effect for non-standard station kinds when a
// station transitions. Standard stations need nothing here; the shift
// register covers them.
type Effector interface {
	SetStation(id int, st *model.Station, on bool)
}

// NoopEffector ignores every transition. Used in tests.
type NoopEffector struct{}

func (NoopEffector) SetStation(int, *model.Station, bool) {}

// KindEffector dispatches on the station's kind. Network kinds are fired on
// a goroutine with a short timeout so a dead remote cannot stall the tick;
// failures are warned and swallowed.
type KindEffector struct {
	Backend gpio.Backend
	Client  *http.Client
}

func NewKindEffector(backend gpio.Backend) *KindEffector {
	return &KindEffector{
		Backend: backend,
		Client:  &http.Client{Timeout: 3 * time.Second},
	}
}

func (e *KindEffector) SetStation(id int, st *model.Station, on bool) {
	switch st.Type {
	case model.StationGPIO:
		if st.Special == nil {
			return
		}
		level := on == st.Special.ActiveHigh
		if err := e.Backend.DigitalWrite(st.Special.Pin, level); err != nil {
			log.Error().Err(err).Int("station", id).Int("pin", st.Special.Pin).Msg("Failed to drive station pin")
		}
	case model.StationHTTP:
		if st.Special == nil {
			return
		}
		cmd := st.Special.OffCmd
		if on {
			cmd = st.Special.OnCmd
		}
		url := fmt.Sprintf("http://%s:%d%s", st.Special.Host, st.Special.Port, cmd)
		e.fire(id, url)
	case model.StationRemoteIP:
		if st.Special == nil {
			return
		}
		en := 0
		if on {
			en = 1
		}
		url := fmt.Sprintf("http://%s/cm?sid=%d&en=%d", st.Special.IP, st.Special.RemoteStationID, en)
		e.fire(id, url)
	default:
		// standard stations ride the shift register; rf actuation is
		// delegated to external hardware
	}
}

func (e *KindEffector) fire(id int, url string) {
	go func() {
		resp, err := e.Client.Get(url)
		if err != nil {
			log.Warn().Err(err).Int("station", id).Str("url", url).Msg("Remote station request failed")
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Warn().Int("station", id).Str("url", url).Int("status", resp.StatusCode).Msg("Remote station request rejected")
		}
	}()
}
