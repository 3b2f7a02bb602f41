package redis

import (
	"context"
	"errors"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// OperationRecorder observes Redis traffic. *metrics.RedisMetrics
// implements it.
type OperationRecorder interface {
	RecordOperation(operation string, d time.Duration, err error)
	RecordDialError()
}

// MetricsHook reports every command and connection attempt to a recorder.
type MetricsHook struct {
	recorder OperationRecorder
}

var _ goredis.Hook = (*MetricsHook)(nil)

func NewMetricsHook(recorder OperationRecorder) *MetricsHook {
	return &MetricsHook{recorder: recorder}
}

func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.recorder.RecordDialError()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.recorder.RecordOperation(cmd.Name(), time.Since(start), commandError(err))
		return err
	}
}

// ProcessPipelineHook records a pipeline as a single "pipeline" operation.
func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.recorder.RecordOperation("pipeline", time.Since(start), commandError(err))
		return err
	}
}

// commandError treats a missing key as a successful lookup.
func commandError(err error) error {
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	return err
}
