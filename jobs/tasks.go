// Package jobs holds the background task definitions and the Asynq worker
// that runs them: periodic rate-feed refreshes and the recovery sweep.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRateRefresh pulls the exchange-rate feed into the quote store.
	TaskTypeRateRefresh = "rates:refresh"
	// TaskTypeRecoverySweep forwards engine-held balances to the treasury.
	TaskTypeRecoverySweep = "recovery:sweep"
)

// RateRefreshPayload parameterises a rate refresh run.
type RateRefreshPayload struct {
	Reason string `json:"reason"`
}

// NewRateRefreshTask constructs an Asynq task for a feed refresh.
func NewRateRefreshTask(payload RateRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRateRefresh, data), nil
}

// RecoverySweepPayload parameterises a recovery sweep run.
type RecoverySweepPayload struct {
	Reason string `json:"reason"`
}

// NewRecoverySweepTask constructs an Asynq task for a recovery sweep.
func NewRecoverySweepTask(payload RecoverySweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRecoverySweep, data), nil
}
