// Package wire defines the on-the-wire delivery job contract shared by the
// ingest publisher and the delivery worker.
package wire

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// DeliveryJob carries the identity and payload of one pending attempt. Field
// names are a cross-process contract; changing them breaks in-flight messages.
type DeliveryJob struct {
	DeliveryID  string `json:"deliveryId"`
	EventID     string `json:"eventId"`
	TargetURL   string `json:"targetUrl"`
	PayloadJSON string `json:"payloadJson"`
	Attempt     int    `json:"attempt"`
}

// Validate checks the invariants every published job must satisfy.
func (j DeliveryJob) Validate() error {
	if strings.TrimSpace(j.DeliveryID) == "" {
		return fmt.Errorf("delivery job: deliveryId required")
	}
	if strings.TrimSpace(j.EventID) == "" {
		return fmt.Errorf("delivery job: eventId required")
	}
	if strings.TrimSpace(j.TargetURL) == "" {
		return fmt.Errorf("delivery job: targetUrl required")
	}
	if j.Attempt < 1 {
		return fmt.Errorf("delivery job: attempt must be >= 1, got %d", j.Attempt)
	}
	return nil
}

// Next returns a copy of the job advanced to the following attempt.
func (j DeliveryJob) Next() DeliveryJob {
	next := j
	next.Attempt = j.Attempt + 1
	return next
}

// EncodeJob serializes a validated job as compact JSON.
func EncodeJob(job DeliveryJob) ([]byte, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("delivery job: encode: %w", err)
	}
	return raw, nil
}

// DecodeJob parses and validates a job payload received from the broker.
func DecodeJob(raw []byte) (DeliveryJob, error) {
	var job DeliveryJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return DeliveryJob{}, fmt.Errorf("delivery job: decode: %w", err)
	}
	if err := job.Validate(); err != nil {
		return DeliveryJob{}, err
	}
	return job, nil
}
