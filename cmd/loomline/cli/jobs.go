package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/loomline-erp/loomline-erp/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{client: client, inspector: inspector}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name with default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	now := time.Now().UTC()
	switch name {
	case jobs.TaskLedgerIntegrity:
		return c.client.EnqueueLedgerIntegrity(ctx, now)
	case jobs.TaskReorderScan:
		return c.client.EnqueueReorderScan(ctx, now)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Pending reports queued task count for the default queue.
func (c *JobsCLI) Pending() (int, error) {
	if c == nil || c.inspector == nil {
		return 0, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return 0, err
	}
	return info.Pending, nil
}
