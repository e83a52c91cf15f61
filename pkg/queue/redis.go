package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"FinPeer/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Redis list backed work queue. Failed messages wait in a
// sorted set until their retry time and end up in a dead-letter list.
type RedisQueue struct {
	log       *logger.Logger
	cfg       Config
	client    *redis.Client
	jobs      map[string]Job
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	cancel    context.CancelFunc
	now       func() time.Time
}

func NewRedisQueue(log *logger.Logger, client *redis.Client, cfg Config) *RedisQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "finpeer:queue"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisQueue{
		log:    log.With(logger.String("component", "queue")),
		cfg:    cfg,
		client: client,
		jobs:   make(map[string]Job),
		now:    time.Now,
	}
}

// Register routes messages of job.Type() to job.
func (r *RedisQueue) Register(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		return fmt.Errorf("job already registered for type %s", job.Type())
	}
	r.jobs[job.Type()] = job
	return nil
}

// Start pings Redis and launches the workers and the retry mover.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return fmt.Errorf("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	r.cancel = stop
	r.isRunning = true
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(runCtx, i)
	}
	r.wg.Add(1)
	go r.retryLoop(runCtx)

	r.log.Info("redis queue started", logger.Int("workers", r.cfg.Workers), logger.Int("jobs", len(r.jobs)))
	return nil
}

// Stop cancels the workers and waits for in-flight messages.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for queue workers: %w", ctx.Err())
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes a message. Producers do not need to call Start.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: raw, EnqueuedAt: r.now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		result, err := r.client.BRPop(ctx, time.Second, r.queueKey()).Result()
		switch {
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
			continue
		case err != nil:
			r.log.Error("brpop error", logger.Int("worker_id", id), logger.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}
		r.process(ctx, []byte(result[1]))
	}
}

// outcome of one delivery
type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
)

func (r *RedisQueue) process(ctx context.Context, data []byte) {
	msg, out := r.dispatch(ctx, data)
	switch out {
	case outcomeRetry:
		r.schedule(msg, r.now().Add(r.cfg.RetryDelay))
	case outcomeDead:
		r.deadLetter(data, msg)
	}
}

// dispatch runs the job of one raw message and classifies the result.
func (r *RedisQueue) dispatch(ctx context.Context, data []byte) (*Message, outcome) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		r.log.Error("unmarshal message", logger.Error(err))
		return nil, outcomeDead
	}
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job registered", logger.String("type", msg.Type), logger.String("id", msg.ID))
		return &msg, outcomeDead
	}

	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		r.log.Debug("message done", logger.String("id", msg.ID), logger.Duration("elapsed", time.Since(start)))
		return &msg, outcomeDone
	}
	if errors.Is(err, context.Canceled) {
		// requeue untouched; the process is shutting down
		return &msg, outcomeRetry
	}

	msg.Attempts++
	msg.LastError = err.Error()
	r.log.Error("message failed",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempt", msg.Attempts),
		logger.Error(err),
	)
	if msg.Attempts > r.cfg.RetryLimit {
		return &msg, outcomeDead
	}
	return &msg, outcomeRetry
}

func (r *RedisQueue) schedule(msg *Message, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal retry", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{Score: float64(at.Unix()), Member: data}).Err()
	if err != nil {
		r.log.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) deadLetter(raw []byte, msg *Message) {
	data := raw
	if msg != nil {
		if b, err := json.Marshal(msg); err == nil {
			data = b
		}
	}
	if err := r.client.LPush(context.Background(), r.deadLetterKey(), data).Err(); err != nil {
		r.log.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.moveDue(ctx)
		}
	}
}

// moveDue moves retries whose time has come back onto the main list.
func (r *RedisQueue) moveDue(ctx context.Context) {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(r.now().Unix(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error("fetch retry messages", logger.Error(err))
		}
		return
	}
	for _, member := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, r.retryKey(), member)
		pipe.LPush(ctx, r.queueKey(), member)
		if _, err := pipe.Exec(ctx); err != nil {
			if ctx.Err() == nil {
				r.log.Error("move retry to queue", logger.Error(err))
			}
			return
		}
	}
}

func (r *RedisQueue) queueKey() string { return r.cfg.Prefix + ":messages" }
func (r *RedisQueue) retryKey() string { return r.cfg.Prefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.cfg.Prefix + ":dlq" }

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

var _ Enqueuer = (*RedisQueue)(nil)
