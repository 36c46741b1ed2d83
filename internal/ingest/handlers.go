package ingest

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/webhookhub/webhookhub/errs"
	"github.com/webhookhub/webhookhub/internal/domain/relay"
	"github.com/webhookhub/webhookhub/internal/signature"
	"github.com/webhookhub/webhookhub/internal/wire"
)

// CorrelationIDHeader lets callers thread their own correlation id through
// logs and event rows; absent, the pipeline mints one.
const CorrelationIDHeader = "X-Correlation-Id"

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	sourceName := r.PathValue("source")
	if !s.limiter.Allow(sourceName) {
		writeError(w, errs.New("ingest", errs.CodeInvalid,
			errs.WithHTTP(http.StatusTooManyRequests), errs.WithMessage("rate limit exceeded")))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, errs.New("ingest", errs.CodeInvalid,
				errs.WithHTTP(http.StatusRequestEntityTooLarge), errs.WithMessage("request body too large")))
			return
		}
		writeError(w, errs.New("ingest", errs.CodeInvalid, errs.WithMessage("unreadable request body")))
		return
	}

	outcome, err := s.pipeline.Ingest(r.Context(), Request{
		SourceName:     sourceName,
		EventType:      r.URL.Query().Get("type"),
		Body:           body,
		Signature:      r.Header.Get(signature.Header),
		IdempotencyKey: r.Header.Get(wire.IdempotencyKeyHeader),
		CorrelationID:  r.Header.Get(CorrelationIDHeader),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"eventId":    outcome.EventID.String(),
		"duplicate":  outcome.Duplicate,
		"deliveries": outcome.Deliveries,
	})
}

func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	filter := relay.DeliveryFilter{}
	query := r.URL.Query()
	if v := query.Get("eventId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, errs.New("deliveries", errs.CodeInvalid, errs.WithMessage("invalid eventId")))
			return
		}
		filter.EventID = id
	}
	if v := query.Get("destinationId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, errs.New("deliveries", errs.CodeInvalid, errs.WithMessage("invalid destinationId")))
			return
		}
		filter.DestinationID = id
	}
	if v := query.Get("status"); v != "" {
		status := relay.DeliveryStatus(v)
		if !status.Valid() {
			writeError(w, errs.New("deliveries", errs.CodeInvalid, errs.WithMessage("unknown status")))
			return
		}
		filter.Status = status
	}

	deliveries, err := s.deliveries.List(r.Context(), filter)
	if err != nil {
		writeError(w, errs.New("deliveries", errs.CodeInternal,
			errs.WithMessage("delivery listing failed"), errs.WithCause(err)))
		return
	}
	items := make([]map[string]any, 0, len(deliveries))
	for _, d := range deliveries {
		items = append(items, deliveryView(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func deliveryView(d relay.Delivery) map[string]any {
	view := map[string]any{
		"id":            d.ID.String(),
		"eventId":       d.EventID.String(),
		"destinationId": d.DestinationID.String(),
		"status":        string(d.Status),
		"attempts":      d.Attempts,
		"maxAttempts":   d.MaxAttempts,
		"createdAt":     d.CreatedAt,
	}
	if d.LastError != nil {
		view["lastError"] = *d.LastError
	}
	if d.LastAttemptAt != nil {
		view["lastAttemptAt"] = *d.LastAttemptAt
	}
	if d.DeliveredAt != nil {
		view["deliveredAt"] = *d.DeliveredAt
	}
	return view
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, errs.New("events", errs.CodeInvalid, errs.WithMessage("invalid event id")))
		return
	}
	evt, found, err := s.events.Get(r.Context(), id)
	if err != nil {
		writeError(w, errs.New("events", errs.CodeInternal,
			errs.WithMessage("event lookup failed"), errs.WithCause(err)))
		return
	}
	if !found {
		writeError(w, errs.New("events", errs.CodeNotFound, errs.WithMessage("unknown event")))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             evt.ID.String(),
		"sourceName":     evt.SourceName,
		"eventType":      evt.EventType,
		"idempotencyKey": evt.IdempotencyKey,
		"correlationId":  evt.CorrelationID,
		"receivedAt":     evt.ReceivedAt,
		"payload":        string(evt.Payload),
	})
}
