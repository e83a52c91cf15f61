package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"FinPeer/pkg/logger"
	"FinPeer/pkg/queue"
)

// RunJobType is the queue message type of an exchange run.
const RunJobType = "exchange_run"

// RunRequest is the payload of an exchange run message.
type RunRequest struct {
	Exchange string `json:"exchange"`
}

// ExchangeRunJob executes queued exchange runs.
type ExchangeRunJob struct {
	runner *ExchangeRunner
	log    *logger.Logger
}

func NewExchangeRunJob(runner *ExchangeRunner, log *logger.Logger) *ExchangeRunJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ExchangeRunJob{runner: runner, log: log}
}

func (j *ExchangeRunJob) Type() string { return RunJobType }

func (j *ExchangeRunJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.ParsePayload[RunRequest](payload)
	if err != nil {
		return err
	}
	exchange := strings.ToUpper(strings.TrimSpace(req.Exchange))
	if exchange == "" {
		return fmt.Errorf("run request without exchange")
	}
	sum, err := j.runner.Run(ctx, exchange)
	if err != nil {
		return fmt.Errorf("run %s: %w", exchange, err)
	}
	j.log.Info("queued run finished", logger.String("run_id", sum.RunID), logger.String("exchange", exchange))
	return nil
}

var _ queue.Job = (*ExchangeRunJob)(nil)
