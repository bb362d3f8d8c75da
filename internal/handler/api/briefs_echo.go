package api

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/labstack/echo/v4"

	"BriefMaker/internal/domain/models"
	domrepo "BriefMaker/internal/domain/repository"
	"BriefMaker/internal/usecase"
	xhttp "BriefMaker/pkg/http"
	xlogger "BriefMaker/pkg/logger"
	"BriefMaker/pkg/tinytime"
)

// BriefReader is the part of usecase.BriefService the HTTP surface needs.
type BriefReader interface {
	Status(now time.Time) models.PipelineStatus
	Latest(ctx context.Context) (models.BriefView, error)
	Range(ctx context.Context, req models.BriefRangeRequest) ([]models.BriefView, error)
	Decoded(ctx context.Context, id uint32) (models.DecodedBriefView, error)
	IDAt(t time.Time) (uint32, error)
	Submit(ctx context.Context, raw []byte) error
}

// BriefsEchoHandler serves pipeline status and stored briefs, and accepts raw
// tick batches.
type BriefsEchoHandler struct {
	logger  *xlogger.Logger
	svc     BriefReader
	maxBody int64
	now     func() time.Time
}

func NewBriefsEchoHandler(logger *xlogger.Logger, svc BriefReader, maxBody int64) *BriefsEchoHandler {
	if maxBody <= 0 {
		maxBody = 1 << 16
	}
	return &BriefsEchoHandler{logger: logger, svc: svc, maxBody: maxBody, now: time.Now}
}

// TicksPath is the only route that takes writes.
const TicksPath = "/api/ticks"

// gapRetryAfter is one window, in seconds.
const gapRetryAfter = "6"

func (h *BriefsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/briefs/latest", h.Latest)
	g.GET("/briefs", h.Range)
	g.GET("/briefs/:id/decoded", h.Decoded)
	g.POST("/ticks", h.SubmitTicks)
}

func (h *BriefsEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Status(h.now()))
}

func (h *BriefsEchoHandler) Latest(c echo.Context) error {
	v, err := h.svc.Latest(c.Request().Context())
	if err != nil {
		return h.fail(c, "latest brief", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=3")
	return xhttp.SuccessResponse(c, v)
}

func (h *BriefsEchoHandler) Range(c echo.Context) error {
	req := &models.BriefRangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.resolveTimes(req); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	rows, err := h.svc.Range(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "brief range", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *BriefsEchoHandler) resolveTimes(req *models.BriefRangeRequest) error {
	for _, bound := range []struct {
		raw string
		dst *uint32
	}{{req.Since, &req.From}, {req.Until, &req.To}} {
		if bound.raw == "" {
			continue
		}
		t, ok := xhttp.ParseTime(bound.raw)
		if !ok {
			return xhttp.BadRequestErrorf("cannot parse time %q", bound.raw)
		}
		id, err := h.svc.IDAt(t)
		if err != nil {
			return xhttp.BadRequestError(err.Error())
		}
		*bound.dst = id
	}
	if req.To < req.From {
		return xhttp.BadRequestError("range ends before it starts")
	}
	return nil
}

func (h *BriefsEchoHandler) Decoded(c echo.Context) error {
	req := &models.BriefIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.svc.Decoded(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "decoded brief", err)
	}
	return xhttp.SuccessResponse(c, v)
}

// SubmitTicks takes one tick batch in the binary wire format as the body.
func (h *BriefsEchoHandler) SubmitTicks(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, h.maxBody+1))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("cannot read body").WithError(err))
	}
	if int64(len(raw)) > h.maxBody {
		return xhttp.AppErrorResponse(c, xhttp.TooLargeError("tick batch too large"))
	}
	if err := h.svc.Submit(c.Request().Context(), raw); err != nil {
		return h.fail(c, "submit ticks", err)
	}
	return xhttp.AcceptedResponse(c)
}

// fail maps domain errors to API errors. Anything unknown is logged and
// answered with 500.
func (h *BriefsEchoHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, domrepo.ErrNoBriefs):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no brief found").WithError(err))
	case errors.Is(err, models.ErrBatchTooShort), errors.Is(err, models.ErrRecordSize), errors.Is(err, tinytime.ErrOutOfDomain):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	case errors.Is(err, usecase.ErrSequenceViolation):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError(err.Error()))
	case errors.Is(err, usecase.ErrGapUnfilled):
		// the batch is valid, it just arrived before the backfill caught up
		c.Response().Header().Set(echo.HeaderRetryAfter, gapRetryAfter)
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError(err.Error()))
	}
	h.logger.Error(op+" failed", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

var (
	_ xhttp.Handler = (*BriefsEchoHandler)(nil)
	_ BriefReader   = (*usecase.BriefService)(nil)
)
