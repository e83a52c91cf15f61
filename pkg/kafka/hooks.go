package kafka

import (
	"context"
	"time"

	"FinPeer/pkg/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// ConsumerHook runs around message handling. An error from BeforeHandle skips
// the handler and counts as a failed attempt.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message) (context.Context, kafka.Message, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, err error)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message) (context.Context, kafka.Message, error) {
	return ctx, km, nil
}
func (NoopHook) AfterHandle(context.Context, string, kafka.Message, error) {}
func (NoopHook) OnError(context.Context, string, kafka.Message, error)     {}

type ctxKey string

const (
	ctxTraceID   ctxKey = "kafka_trace_id"
	ctxStartTime ctxKey = "kafka_start_time"
)

// TraceID returns the trace id attached by TracingHook, if any.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}

// TracingHook attaches a trace id (from the trace_id header, or a fresh one)
// and logs slow or failed messages.
type TracingHook struct {
	Log  *logger.Logger
	Slow time.Duration
}

func (h TracingHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message) (context.Context, kafka.Message, error) {
	id := headerValue(km, "trace_id")
	if id == "" {
		id = uuid.NewString()
	}
	ctx = context.WithValue(ctx, ctxTraceID, id)
	ctx = context.WithValue(ctx, ctxStartTime, time.Now())
	return ctx, km, nil
}

func (h TracingHook) AfterHandle(ctx context.Context, topic string, km kafka.Message, err error) {
	if h.Log == nil || err != nil {
		return
	}
	start, ok := ctx.Value(ctxStartTime).(time.Time)
	if !ok || h.Slow <= 0 {
		return
	}
	if d := time.Since(start); d > h.Slow {
		h.Log.Warn("slow message",
			logger.String("topic", topic),
			logger.String("key", string(km.Key)),
			logger.String("trace_id", TraceID(ctx)),
			logger.Duration("elapsed", d))
	}
}

func (h TracingHook) OnError(ctx context.Context, topic string, km kafka.Message, err error) {
	if h.Log == nil {
		return
	}
	h.Log.Warn("message attempt failed",
		logger.String("topic", topic),
		logger.String("key", string(km.Key)),
		logger.String("trace_id", TraceID(ctx)),
		logger.Error(err))
}

func headerValue(km kafka.Message, key string) string {
	for _, h := range km.Headers {
		if h.Key == key && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return ""
}
