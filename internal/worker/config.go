// Package worker runs CommutePulse background jobs delivered over Pub/Sub.
package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Job types carried in the job_type field.
const (
	JobDepartureRecalc = "departure_recalc"
	JobDelayCheck      = "delay_check"
)

// ErrUnknownJob is returned for messages with an unrecognised job_type.
var ErrUnknownJob = errors.New("unknown job type")

// JobMessage is the JSON body of a worker Pub/Sub message.
type JobMessage struct {
	JobType string `json:"job_type"`

	// SettingIDs and Date drive departure_recalc. Date is YYYY-MM-DD and
	// defaults to today.
	SettingIDs []string `json:"settingIds,omitempty"`
	Date       string   `json:"date,omitempty"`

	// RouteIDs drives delay_check.
	RouteIDs []string `json:"routeIds,omitempty"`
}

// DecodeJob parses a message body.
func DecodeJob(data []byte) (JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return JobMessage{}, fmt.Errorf("decoding job message: %w", err)
	}
	return msg, nil
}

// ProcessorConfig tunes job execution.
type ProcessorConfig struct {
	// Concurrency is the number of items processed in parallel per job.
	// Default: 4
	Concurrency int

	// Timeout bounds a single item (one setting or one route).
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultProcessorConfig returns the default processor configuration.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Concurrency: 4,
		Timeout:     30 * time.Second,
	}
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	d := DefaultProcessorConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}
