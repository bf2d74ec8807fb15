package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/greenside/irrigation-controller/internal/controller"
)

// Legacy result codes. Third-party UIs switch on these verbatim.
const (
	ResultSuccess      = 1
	ResultUnauthorized = 2
	ResultMismatch     = 3
	ResultDataMissing  = 16
	ResultOutOfBounds  = 17
	ResultFormatError  = 18
	ResultPageNotFound = 32
	ResultNotPermitted = 48
)

// Server exposes the legacy HTTP/JSON surface over a shared controller
// handle. Every handler serializes against the controller lock through the
// controller's methods.
type Server struct {
	ctrl  *controller.Controller
	clock func() time.Time
}

func NewServer(ctrl *controller.Controller) *Server {
	return &Server{ctrl: ctrl, clock: time.Now}
}

// Router builds the fixed legacy route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleRoot)

	// read endpoints
	r.Get("/jc", s.auth(s.handleControllerState))
	r.Get("/jo", s.auth(s.handleOptions))
	r.Get("/jp", s.auth(s.handlePrograms))
	r.Get("/js", s.auth(s.handleStationNames))
	r.Get("/jn", s.auth(s.handleStationAttrs))
	r.Get("/je", s.auth(s.handleExport))
	r.Get("/jl", s.auth(s.handleLog))
	r.Get("/ja", s.auth(s.handleAll))

	// write endpoints
	r.Get("/cv", s.auth(s.handleChangeValues))
	r.Get("/co", s.auth(s.handleChangeOptions))
	r.Get("/cp", s.auth(s.handleChangeProgram))
	r.Get("/dp", s.auth(s.handleDeleteProgram))
	r.Get("/up", s.auth(s.handleMoveProgramUp))
	r.Get("/mp", s.auth(s.handleManualProgram))
	r.Get("/cs", s.auth(s.handleChangeStations))
	r.Get("/cm", s.auth(s.handleManualCommand))
	r.Get("/cr", s.auth(s.handleRunOnce))
	r.Get("/pq", s.auth(s.handlePauseQueue))
	r.Get("/dl", s.auth(s.handleDeleteLog))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, ResultPageNotFound)
	})
	return r
}

// Start serves the API on port, blocking.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting HTTP API")
	return http.ListenAndServe(addr, s.Router())
}

// auth enforces the pw query parameter unless ignore_password is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.ctrl.CheckPassword(r.URL.Query().Get("pw")) {
			writeResult(w, ResultUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"name":    "irrigation-controller",
		"version": versionString(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode API response")
	}
}

func writeResult(w http.ResponseWriter, code int) {
	writeJSON(w, map[string]int{"result": code})
}
