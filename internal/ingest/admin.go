package ingest

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/webhookhub/webhookhub/errs"
	"github.com/webhookhub/webhookhub/internal/domain/relay"
	"github.com/webhookhub/webhookhub/internal/signature"
)

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.settings.AdminToken)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, errs.New("admin", errs.CodeUnauthorized, errs.WithMessage("admin token required")))
			return
		}
		next(w, r)
	}
}

type createSourceRequest struct {
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New("admin", errs.CodeInvalid, errs.WithMessage("malformed json body")))
		return
	}
	if err := relay.ValidateName(req.Name); err != nil {
		writeError(w, errs.New("admin", errs.CodeInvalid, errs.WithMessage(err.Error())))
		return
	}
	secret, err := signature.NewSecret()
	if err != nil {
		writeError(w, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	src, err := s.sources.Create(r.Context(), relay.Source{
		ID:         uuid.New(),
		Name:       strings.TrimSpace(req.Name),
		HMACSecret: secret,
		Active:     active,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	// The secret appears in this response and never again.
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         src.ID.String(),
		"name":       src.Name,
		"hmacSecret": src.HMACSecret,
		"active":     src.Active,
		"createdAt":  src.CreatedAt,
	})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.List(r.Context())
	if err != nil {
		writeError(w, errs.New("admin", errs.CodeInternal,
			errs.WithMessage("source listing failed"), errs.WithCause(err)))
		return
	}
	items := make([]map[string]any, 0, len(sources))
	for _, src := range sources {
		items = append(items, map[string]any{
			"id":        src.ID.String(),
			"name":      src.Name,
			"active":    src.Active,
			"createdAt": src.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type ruleRequest struct {
	SourceName string `json:"sourceName"`
	EventType  string `json:"eventType"`
}

type createDestinationRequest struct {
	Name      string        `json:"name"`
	TargetURL string        `json:"targetUrl"`
	Active    *bool         `json:"active"`
	Rules     []ruleRequest `json:"rules"`
}

func (s *Server) handleCreateDestination(w http.ResponseWriter, r *http.Request) {
	var req createDestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New("admin", errs.CodeInvalid, errs.WithMessage("malformed json body")))
		return
	}
	id := uuid.New()
	rules := make([]relay.DestinationRule, 0, len(req.Rules))
	for _, rule := range req.Rules {
		rules = append(rules, relay.DestinationRule{
			ID:            uuid.New(),
			DestinationID: id,
			SourceName:    strings.TrimSpace(rule.SourceName),
			EventType:     strings.TrimSpace(rule.EventType),
		})
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	dst, err := s.destinations.Create(r.Context(), relay.Destination{
		ID:        id,
		Name:      strings.TrimSpace(req.Name),
		TargetURL: strings.TrimSpace(req.TargetURL),
		Active:    active,
		CreatedAt: time.Now().UTC(),
		Rules:     rules,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, destinationView(dst))
}

func (s *Server) handleListDestinations(w http.ResponseWriter, r *http.Request) {
	destinations, err := s.destinations.List(r.Context())
	if err != nil {
		writeError(w, errs.New("admin", errs.CodeInternal,
			errs.WithMessage("destination listing failed"), errs.WithCause(err)))
		return
	}
	items := make([]map[string]any, 0, len(destinations))
	for _, dst := range destinations {
		items = append(items, destinationView(dst))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleAppendRule(w http.ResponseWriter, r *http.Request) {
	destinationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, errs.New("admin", errs.CodeInvalid, errs.WithMessage("invalid destination id")))
		return
	}
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New("admin", errs.CodeInvalid, errs.WithMessage("malformed json body")))
		return
	}
	rule, err := s.destinations.AppendRule(r.Context(), relay.DestinationRule{
		ID:            uuid.New(),
		DestinationID: destinationID,
		SourceName:    strings.TrimSpace(req.SourceName),
		EventType:     strings.TrimSpace(req.EventType),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":            rule.ID.String(),
		"destinationId": rule.DestinationID.String(),
		"sourceName":    rule.SourceName,
		"eventType":     rule.EventType,
	})
}

func destinationView(dst relay.Destination) map[string]any {
	rules := make([]map[string]any, 0, len(dst.Rules))
	for _, rule := range dst.Rules {
		rules = append(rules, map[string]any{
			"id":         rule.ID.String(),
			"sourceName": rule.SourceName,
			"eventType":  rule.EventType,
		})
	}
	return map[string]any{
		"id":        dst.ID.String(),
		"name":      dst.Name,
		"targetUrl": dst.TargetURL,
		"active":    dst.Active,
		"createdAt": dst.CreatedAt,
		"rules":     rules,
	}
}
