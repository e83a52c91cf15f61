package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"FinPeer/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, key, value []byte) error
}

// Consumer reads registered topics and dispatches messages to worker lanes
// chosen by key hash.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	lanes    []chan *message
	dlq      *kafka.Writer
	hook     ConsumerHook

	stop     chan struct{}
	stopOnce sync.Once
	readWG   sync.WaitGroup
	laneWG   sync.WaitGroup
}

type message struct {
	topic  string
	km     kafka.Message
	reader *kafka.Reader
}

func NewConsumer(log *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:    "finpeer",
		Lanes:      1,
		LaneBuffer: 16,
		RetryMax:   3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
		MinBytes:   1,
		MaxBytes:   10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Consumer{
		cfg:      cfg,
		log:      log.With(logger.String("component", "kafka_consumer")),
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		stop:     make(chan struct{}),
		hook:     NoopHook{},
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// RegisterHandler registers h for its topic. A second handler for the same
// topic is rejected.
func (c *Consumer) RegisterHandler(h MessageHandler) error {
	topic := h.Topic()
	if _, ok := c.handlers[topic]; ok {
		return fmt.Errorf("handler already registered for topic %s", topic)
	}
	c.handlers[topic] = h
	return nil
}

// WithHook sets the lifecycle hook.
func (c *Consumer) WithHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	c.lanes = make([]chan *message, c.cfg.Lanes)
	for i := range c.lanes {
		c.lanes[i] = make(chan *message, c.cfg.LaneBuffer)
		c.laneWG.Add(1)
		go c.runLane(c.lanes[i])
	}
	for topic := range c.handlers {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers[topic] = reader
		c.readWG.Add(1)
		go c.consume(topic, reader)
	}
	c.log.Info("kafka consumer started", logger.Int("lanes", c.cfg.Lanes), logger.Int("topics", len(c.readers)))
	return nil
}

// Stop stops readers first, drains the lanes, then closes connections.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stop)
		c.readWG.Wait()
		for _, lane := range c.lanes {
			close(lane)
		}

		done := make(chan struct{})
		go func() {
			c.laneWG.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("close dlq writer", logger.Error(err))
			}
		}
	})
	return stopErr
}

func (c *Consumer) consume(topic string, reader *kafka.Reader) {
	defer c.readWG.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.stop
		cancel()
	}()

	for {
		km, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch message", logger.String("topic", topic), logger.Error(err))
			continue
		}
		lane := c.lanes[laneFor(km.Key, len(c.lanes))]
		select {
		case lane <- &message{topic: topic, km: km, reader: reader}:
			consumerLaneDepth.WithLabelValues(topic).Set(float64(len(lane)))
		case <-c.stop:
			return
		}
	}
}

func laneFor(key []byte, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(n))
}

func (c *Consumer) runLane(lane <-chan *message) {
	defer c.laneWG.Done()
	for msg := range lane {
		c.process(msg)
	}
}

func (c *Consumer) process(msg *message) {
	handler := c.handlers[msg.topic]
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in message handler", logger.String("topic", msg.topic), logger.Any("panic", r))
		}
		consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
	}()

	var err error
	attempts := 0
	for {
		attempts++
		ctx, km, berr := c.hook.BeforeHandle(context.Background(), msg.topic, msg.km)
		if berr != nil {
			err = berr
			break
		}
		err = handler.Handle(ctx, km.Key, km.Value)
		c.hook.AfterHandle(ctx, msg.topic, km, err)
		if err == nil || attempts > c.cfg.RetryMax || IsPermanent(err) {
			break
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.stop:
			// uncommitted; redelivered after restart
			return
		}
	}

	if err != nil {
		c.hook.OnError(context.Background(), msg.topic, msg.km, err)
		consumerFailures.WithLabelValues(msg.topic).Inc()
		c.log.Error("message handling failed",
			logger.String("topic", msg.topic),
			logger.String("key", string(msg.km.Key)),
			logger.Int("attempts", attempts),
			logger.Error(err))
		if !c.deadLetter(msg, err) {
			return
		}
	}
	c.commit(msg)
}

func (c *Consumer) deadLetter(msg *message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   msg.km.Key,
		Value: msg.km.Value,
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(msg.topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.log.Error("write dlq", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(msg *message) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = msg.reader.CommitMessages(ctx, msg.km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit offset", logger.String("topic", msg.topic), logger.Error(err))
}

// PermanentError marks a handler failure that retrying cannot fix.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

var (
	consumerLaneDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "finpeer_kafka_consumer_lane_depth", Help: "Messages waiting in a consumer lane"},
		[]string{"topic"},
	)
	consumerHandleLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "finpeer_kafka_consumer_handle_seconds", Help: "Handling time per message"},
		[]string{"topic"},
	)
	consumerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "finpeer_kafka_consumer_failures_total", Help: "Messages that exhausted retries"},
		[]string{"topic"},
	)
)

// Collectors returns the producer and consumer metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		producerMessages, producerBytes, producerLatency,
		consumerLaneDepth, consumerHandleLatency, consumerFailures,
	}
}
