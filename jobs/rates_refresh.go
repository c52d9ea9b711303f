package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/paystream-io/paystream/internal/rates"
)

// RateRefreshJob pulls the upstream feed into the Redis quote store.
type RateRefreshJob struct {
	refresher *rates.Refresher
	logger    *slog.Logger
}

// NewRateRefreshJob wires a refresh job.
func NewRateRefreshJob(refresher *rates.Refresher, logger *slog.Logger) *RateRefreshJob {
	return &RateRefreshJob{refresher: refresher, logger: logger}
}

// Handle processes TaskTypeRateRefresh tasks.
func (j *RateRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RateRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	stored, err := j.refresher.Refresh(ctx)
	if err != nil {
		j.logger.Error("rate refresh failed", slog.Any("error", err))
		return err
	}
	j.logger.Info("rate refresh complete",
		slog.Int("quotes", stored),
		slog.String("reason", payload.Reason))
	return nil
}
