package ingest

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/webhookhub/webhookhub/config"
	"github.com/webhookhub/webhookhub/errs"
	"github.com/webhookhub/webhookhub/internal/domain/relay"
)

// Server exposes the ingest, admin, and read surfaces over one mux.
type Server struct {
	pipeline     *Pipeline
	sources      relay.SourceStore
	destinations relay.DestinationStore
	events       relay.EventStore
	deliveries   relay.DeliveryStore
	limiter      *sourceLimiter
	settings     config.IngestSettings
}

// NewServer wires the HTTP surface. Admin routes register only when an admin
// token is configured.
func NewServer(
	settings config.IngestSettings,
	pipeline *Pipeline,
	sources relay.SourceStore,
	destinations relay.DestinationStore,
	events relay.EventStore,
	deliveries relay.DeliveryStore,
) *Server {
	return &Server{
		pipeline:     pipeline,
		sources:      sources,
		destinations: destinations,
		events:       events,
		deliveries:   deliveries,
		limiter:      newSourceLimiter(settings.SourceRatePerSec, settings.SourceBurst),
		settings:     settings,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ingest/{source}", s.handleIngest)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /deliveries", s.handleListDeliveries)
	mux.HandleFunc("GET /events/{id}", s.handleGetEvent)
	if s.settings.AdminToken != "" {
		mux.HandleFunc("POST /admin/sources", s.requireAdmin(s.handleCreateSource))
		mux.HandleFunc("GET /admin/sources", s.requireAdmin(s.handleListSources))
		mux.HandleFunc("POST /admin/destinations", s.requireAdmin(s.handleCreateDestination))
		mux.HandleFunc("GET /admin/destinations", s.requireAdmin(s.handleListDestinations))
		mux.HandleFunc("POST /admin/destinations/{id}/rules", s.requireAdmin(s.handleAppendRule))
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	detail := errorDetail{Code: string(errs.CodeInternal), Message: "internal error"}
	var e *errs.E
	if errors.As(err, &e) {
		detail.Code = string(e.Code)
		detail.Message = e.Message
		if detail.Message == "" {
			detail.Message = string(e.Code)
		}
	}
	writeJSON(w, status, errorBody{Error: detail})
}
