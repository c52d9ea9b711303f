package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/paystream-io/paystream/internal/recovery"
)

// RecoverySweepJob forwards engine-held balances to the treasury.
type RecoverySweepJob struct {
	service *recovery.Service
	logger  *slog.Logger
}

// NewRecoverySweepJob wires a sweep job.
func NewRecoverySweepJob(service *recovery.Service, logger *slog.Logger) *RecoverySweepJob {
	return &RecoverySweepJob{service: service, logger: logger}
}

// Handle processes TaskTypeRecoverySweep tasks.
func (j *RecoverySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RecoverySweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	swept, err := j.service.RecoverAll(ctx)
	if err != nil {
		j.logger.Error("recovery sweep failed", slog.Any("error", err))
		return err
	}
	if swept > 0 {
		j.logger.Info("recovery sweep complete",
			slog.Int("assets", swept),
			slog.String("reason", payload.Reason))
	}
	return nil
}
