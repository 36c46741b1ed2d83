// Package relay defines the WebhookHub domain model: sources that post
// events in, destinations that receive them, and the deliveries that bind
// one event to one destination.
package relay

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxNameLength bounds source and destination names.
const MaxNameLength = 100

// MaxDeliveryAttempts is the single authority for how often a delivery is
// tried. The deliveries.max_attempts column is written from this constant at
// fan-out time and is informational thereafter.
const MaxDeliveryAttempts = 5

// Source is an external system allowed to POST events. The HMAC secret is
// handed out exactly once, at creation.
type Source struct {
	ID         uuid.UUID
	Name       string
	HMACSecret string
	Active     bool
	CreatedAt  time.Time
}

// DestinationRule is one (sourceName, eventType) selector owned by a destination.
type DestinationRule struct {
	ID            uuid.UUID
	DestinationID uuid.UUID
	SourceName    string
	EventType     string
}

// Destination is an HTTP receiver with at least one routing rule.
type Destination struct {
	ID        uuid.UUID
	Name      string
	TargetURL string
	Active    bool
	CreatedAt time.Time
	Rules     []DestinationRule
}

// Event is one ingested inbound webhook. Payload holds the raw request body
// verbatim; it is re-emitted byte-for-byte on delivery.
type Event struct {
	ID             uuid.UUID
	SourceName     string
	EventType      string
	IdempotencyKey string
	Payload        []byte
	CorrelationID  string
	ReceivedAt     time.Time
}

// Delivery is one scheduled attempt-set targeting one destination for one event.
type Delivery struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	DestinationID uuid.UUID
	Status        DeliveryStatus
	Attempts      int32
	MaxAttempts   int32
	LastError     *string
	LastAttemptAt *time.Time
	DeliveredAt   *time.Time
	CreatedAt     time.Time
}

// ValidateName checks the shared naming rule for sources and destinations.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("name required")
	}
	if len(trimmed) > MaxNameLength {
		return fmt.Errorf("name exceeds %d characters", MaxNameLength)
	}
	return nil
}

// ValidateTargetURL enforces the destination URL contract: http or https with a host.
func ValidateTargetURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target url: scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("target url: host required")
	}
	return nil
}

// ValidateRule checks a rule selector before it is attached to a destination.
func ValidateRule(rule DestinationRule) error {
	if strings.TrimSpace(rule.SourceName) == "" {
		return fmt.Errorf("rule source name required")
	}
	if strings.TrimSpace(rule.EventType) == "" {
		return fmt.Errorf("rule event type required")
	}
	return nil
}
