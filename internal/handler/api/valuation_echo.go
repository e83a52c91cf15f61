package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	models "FinPeer/internal/domain/models"
	domrepo "FinPeer/internal/domain/repository"
	"FinPeer/internal/services/numeric"
	"FinPeer/internal/usecase"
	xhttp "FinPeer/pkg/http"
	xlogger "FinPeer/pkg/logger"
	"FinPeer/pkg/queue"

	"github.com/labstack/echo/v4"
)

// BucketLister lists the buckets persisted for an exchange.
type BucketLister interface {
	List(ctx context.Context, exchange string) ([]models.BucketKey, error)
}

// HTMLRenderer writes a valuation as an HTML page.
type HTMLRenderer interface {
	Write(w io.Writer, v *models.CompanyValuation) error
}

// ValuationEchoHandler serves buckets, snapshots and company valuations.
type ValuationEchoHandler struct {
	logger   *xlogger.Logger
	engine   *usecase.ValuationEngine
	ingest   *usecase.FundamentalsHandler
	buckets  BucketLister
	renderer HTMLRenderer
	runs     queue.Enqueuer
}

func NewValuationEchoHandler(
	logger *xlogger.Logger,
	engine *usecase.ValuationEngine,
	ingest *usecase.FundamentalsHandler,
	buckets BucketLister,
	renderer HTMLRenderer,
) *ValuationEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ValuationEchoHandler{
		logger:   logger,
		engine:   engine,
		ingest:   ingest,
		buckets:  buckets,
		renderer: renderer,
	}
}

// SetRunQueue enables asynchronous exchange runs.
func (h *ValuationEchoHandler) SetRunQueue(q queue.Enqueuer) { h.runs = q }

func (h *ValuationEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/exchanges/:exchange/buckets", h.Buckets)
	g.GET("/buckets/:exchange/:industry/companies", h.Companies)
	g.GET("/buckets/:exchange/:industry/snapshot", h.Snapshot)
	g.POST("/buckets/:exchange/:industry/recompute", h.Recompute)
	g.GET("/buckets/:exchange/:industry/companies/:code", h.Company)
	g.GET("/buckets/:exchange/:industry/companies/:code/report", h.Report)
	g.POST("/encode", h.Encode)
	g.POST("/companies", h.Ingest)
	if h.runs != nil {
		g.POST("/exchanges/:exchange/runs", h.EnqueueRun)
	}
}

func (h *ValuationEchoHandler) Buckets(c echo.Context) error {
	req := &models.ExchangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	keys, err := h.buckets.List(c.Request().Context(), req.Exchange)
	if err != nil {
		return h.fail(c, "list buckets", err)
	}
	return xhttp.ListResponse(c, keys, len(keys))
}

func (h *ValuationEchoHandler) Companies(c echo.Context) error {
	req := &models.BucketRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := models.BucketKey{Exchange: req.Exchange, Industry: req.Industry}
	entries, err := h.engine.Companies(c.Request().Context(), key)
	if err != nil {
		return h.fail(c, "read bucket", err)
	}
	if len(entries) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("bucket %s not found", key))
	}
	return xhttp.ListResponse(c, entries, len(entries))
}

func (h *ValuationEchoHandler) Snapshot(c echo.Context) error {
	req := &models.BucketRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := models.BucketKey{Exchange: req.Exchange, Industry: req.Industry}
	snap, err := h.engine.Snapshot(c.Request().Context(), key)
	if err != nil {
		return h.fail(c, "read snapshot", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, snap)
}

func (h *ValuationEchoHandler) Recompute(c echo.Context) error {
	req := &models.BucketRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := models.BucketKey{Exchange: req.Exchange, Industry: req.Industry}
	snap, err := h.engine.Recompute(c.Request().Context(), key)
	if err != nil {
		return h.fail(c, "recompute", err)
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *ValuationEchoHandler) Company(c echo.Context) error {
	v, err := h.valuation(c)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return xhttp.SuccessResponse(c, v)
}

func (h *ValuationEchoHandler) Report(c echo.Context) error {
	if h.renderer == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("reports are disabled"))
	}
	v, err := h.valuation(c)
	if err != nil || v == nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.renderer.Write(&buf, v); err != nil {
		return h.fail(c, "render report", err)
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// valuation writes the error response itself and returns a nil valuation
// when the request cannot be served.
func (h *ValuationEchoHandler) valuation(c echo.Context) (*models.CompanyValuation, error) {
	req := &models.CompanyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return nil, xhttp.BadRequestResponse(c, verr)
	}
	key := models.BucketKey{Exchange: req.Exchange, Industry: req.Industry}
	v, err := h.engine.Valuation(c.Request().Context(), key, req.Code)
	if err != nil {
		return nil, h.fail(c, "company valuation", err)
	}
	return v, nil
}

func (h *ValuationEchoHandler) Encode(c echo.Context) error {
	req := &models.EncodeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	style := models.Style{
		Polarity:      req.Polarity,
		RedIfNegative: req.RedIfNegative,
		Percent:       req.Percent,
		DontRound:     req.DontRound,
	}
	enc := h.engine.Encode(numeric.FromPtr(req.Value), numeric.FromPtr(req.Median), numeric.FromPtr(req.MAD), style)
	return xhttp.SuccessResponse(c, enc)
}

func (h *ValuationEchoHandler) Ingest(c echo.Context) error {
	req := &models.FundamentalsMessage{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.ingest.Ingest(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "ingest", err)
	}
	return xhttp.DataResponse(c, http.StatusCreated, v)
}

func (h *ValuationEchoHandler) EnqueueRun(c echo.Context) error {
	req := &models.ExchangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	exchange := strings.ToUpper(req.Exchange)
	id, err := h.runs.Enqueue(c.Request().Context(), usecase.RunJobType, usecase.RunRequest{Exchange: exchange})
	if err != nil {
		return h.fail(c, "enqueue run", err)
	}
	return xhttp.AcceptedResponse(c, map[string]string{"id": id, "exchange": exchange})
}

func (h *ValuationEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.String("path", c.Path()), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	var invalid *usecase.InvalidMessageError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrInvalidBucketKey), errors.As(err, &invalid):
		return xhttp.BadRequestErrorf("%v", err).WithError(err)
	case errors.Is(err, domrepo.ErrBucketNotFound),
		errors.Is(err, domrepo.ErrSnapshotNotFound),
		errors.Is(err, usecase.ErrCompanyNotFound):
		return xhttp.NotFoundErrorf("%v", err).WithError(err)
	case errors.Is(err, usecase.ErrNotCommonStock):
		return xhttp.UnprocessableErrorf("%v", err).WithError(err)
	case domrepo.IsCorrupt(err):
		return xhttp.CorruptDataErrorf("%v", err).WithError(err)
	default:
		return xhttp.InternalErrorf("internal error").WithError(err)
	}
}
