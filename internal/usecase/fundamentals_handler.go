package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	pkgkafka "FinPeer/pkg/kafka"
	"FinPeer/pkg/logger"

	"github.com/go-playground/validator/v10"
)

// FundamentalsHandler values companies pushed as fundamentals messages.
type FundamentalsHandler struct {
	topic    string
	engine   *ValuationEngine
	prices   drepo.PriceSource
	reports  ReportSink
	validate *validator.Validate
	metrics  drepo.Metrics
	log      *logger.Logger
}

func NewFundamentalsHandler(topic string, engine *ValuationEngine, prices drepo.PriceSource, reports ReportSink, metrics drepo.Metrics, log *logger.Logger) *FundamentalsHandler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FundamentalsHandler{
		topic:    topic,
		engine:   engine,
		prices:   prices,
		reports:  reports,
		validate: validator.New(),
		metrics:  metrics,
		log:      log,
	}
}

func (h *FundamentalsHandler) Topic() string { return h.topic }

// Handle decodes a FundamentalsMessage. Payloads that cannot be decoded or
// validated, and corrupt bucket documents, are permanent failures.
func (h *FundamentalsHandler) Handle(ctx context.Context, key, value []byte) error {
	var msg models.FundamentalsMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode fundamentals message: %w", err))
	}
	if msg.Code == "" && len(key) > 0 {
		msg.Code = string(key)
	}

	start := time.Now()
	_, err := h.Ingest(ctx, &msg)
	h.metrics.RecordLatency("consumer_ingest", time.Since(start).Seconds())
	if err != nil {
		if isPermanent(err) {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	return nil
}

// Ingest validates and values one message.
func (h *FundamentalsHandler) Ingest(ctx context.Context, msg *models.FundamentalsMessage) (*models.CompanyValuation, error) {
	if err := h.validate.Struct(msg); err != nil {
		h.metrics.RecordError("ingest_validate")
		return nil, &InvalidMessageError{Err: err}
	}
	if !msg.Fundamentals.IsCommonStock() && msg.Fundamentals.General.Type != "" {
		return nil, fmt.Errorf("%s.%s: %w", msg.Code, msg.Exchange, ErrNotCommonStock)
	}

	price, err := resolvePrice(ctx, h.prices, msg.Price, msg.Code, msg.Exchange)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h.log.Debug("ingesting without price", logger.String("code", msg.Code), logger.Error(err))
	}

	v, err := h.engine.Process(ctx, msg.Code, msg.Exchange, msg.Fundamentals, price)
	if err != nil {
		return nil, err
	}
	if h.reports != nil {
		if _, err := h.reports.Render(v); err != nil {
			h.log.Warn("render report failed", logger.String("code", msg.Code), logger.Error(err))
		}
	}
	return v, nil
}

// InvalidMessageError wraps a validation failure of an ingested message.
type InvalidMessageError struct {
	Err error
}

func (e *InvalidMessageError) Error() string { return "invalid fundamentals message: " + e.Err.Error() }

func (e *InvalidMessageError) Unwrap() error { return e.Err }

func isPermanent(err error) bool {
	var inv *InvalidMessageError
	return errors.As(err, &inv) || errors.Is(err, ErrNotCommonStock) || drepo.IsCorrupt(err)
}

var _ pkgkafka.MessageHandler = (*FundamentalsHandler)(nil)
