package overviewhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/outletdash/internal/daterange"
	"github.com/odyssey-erp/outletdash/internal/overview"
	"github.com/odyssey-erp/outletdash/internal/overview/export"
	"github.com/odyssey-erp/outletdash/internal/platform/httpx"
)

// OverviewService defines the snapshot contract used by the handler.
type OverviewService interface {
	BuildSnapshot(ctx context.Context, outletIDs []string, rng daterange.DateRange) (*overview.Snapshot, error)
	Refresh(ctx context.Context, outletIDs []string, rng daterange.DateRange) (*overview.Snapshot, error)
}

// Handler serves the outlet overview dashboard.
type Handler struct {
	logger         *slog.Logger
	service        OverviewService
	validate       *validator.Validate
	requestTimeout time.Duration
	csvPool        sync.Pool
	now            func() time.Time
}

// NewHandler constructs the overview HTTP handler. requestTimeout bounds a
// foreground build; zero leaves the request context untouched.
func NewHandler(logger *slog.Logger, service OverviewService, requestTimeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:         logger,
		service:        service,
		validate:       validator.New(),
		requestTimeout: requestTimeout,
		now:            time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type overviewQuery struct {
	Outlets []string `validate:"max=100,dive,max=64"`
	Range   string   `validate:"max=32"`
	From    string   `validate:"max=10"`
	To      string   `validate:"max=10"`
	Refresh bool
}

type rangeResponse struct {
	Range    daterange.DateRange `json:"range"`
	Previous daterange.DateRange `json:"previous"`
	Days     int                 `json:"days"`
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadSnapshot(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleRange(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r)
	if err != nil {
		h.handleError(w, "parse query", err)
		return
	}
	rng := h.resolve(q)
	httpx.JSON(w, http.StatusOK, rangeResponse{
		Range:    rng,
		Previous: daterange.PreviousRange(rng.From, rng.To),
		Days:     rng.Days(),
	})
}

func (h *Handler) handleLedgerCSV(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadSnapshot(w, r)
	if !ok {
		return
	}
	h.writeCSV(w, export.LedgerFilename(snap.Range), func(buf *bytes.Buffer) error {
		return export.WriteLedgerCSV(buf, snap.Ledger)
	})
}

func (h *Handler) handleSummaryCSV(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadSnapshot(w, r)
	if !ok {
		return
	}
	h.writeCSV(w, export.SummaryFilename(snap.Range), func(buf *bytes.Buffer) error {
		return export.WriteSummaryCSV(buf, snap)
	})
}

func (h *Handler) loadSnapshot(w http.ResponseWriter, r *http.Request) (*overview.Snapshot, bool) {
	q, err := h.parseQuery(r)
	if err != nil {
		h.handleError(w, "parse query", err)
		return nil, false
	}
	rng := h.resolve(q)

	ctx := r.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	var snap *overview.Snapshot
	if q.Refresh {
		snap, err = h.service.Refresh(ctx, q.Outlets, rng)
	} else {
		snap, err = h.service.BuildSnapshot(ctx, q.Outlets, rng)
	}
	if err != nil {
		h.handleError(w, "build snapshot", err)
		return nil, false
	}
	if snap.Partial {
		w.Header().Set("X-Overview-Partial", "true")
	}
	return snap, true
}

func (h *Handler) writeCSV(w http.ResponseWriter, filename string, write func(*bytes.Buffer) error) {
	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := write(buf); err != nil {
		h.handleError(w, "write csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

func (h *Handler) parseQuery(r *http.Request) (overviewQuery, error) {
	values := r.URL.Query()
	q := overviewQuery{
		Outlets: parseOutlets(values["outlets"], values["outlet"]),
		Range:   strings.TrimSpace(values.Get("range")),
		From:    strings.TrimSpace(values.Get("from")),
		To:      strings.TrimSpace(values.Get("to")),
	}
	if raw := strings.TrimSpace(values.Get("refresh")); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			return overviewQuery{}, fmt.Errorf("%w: refresh must be a boolean", httpx.ErrValidation)
		}
		q.Refresh = refresh
	}
	if err := h.validate.Struct(q); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return overviewQuery{}, fmt.Errorf("%w: %s", httpx.ErrValidation, fieldErrs[0].Field())
		}
		return overviewQuery{}, err
	}
	return q, nil
}

func (h *Handler) resolve(q overviewQuery) daterange.DateRange {
	return daterange.Resolve(daterange.ParseSelector(q.Range), q.From, q.To, h.now())
}

// parseOutlets accepts comma separated and repeated parameters.
func parseOutlets(groups ...[]string) []string {
	out := make([]string, 0)
	for _, group := range groups {
		for _, raw := range group {
			for _, id := range strings.Split(raw, ",") {
				if id = strings.TrimSpace(id); id != "" {
					out = append(out, id)
				}
			}
		}
	}
	return out
}

func (h *Handler) handleError(w http.ResponseWriter, op string, err error) {
	var total *overview.TotalAggregationError
	switch {
	case errors.Is(err, overview.ErrEmptyScope):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "select at least one outlet")
	case errors.As(err, &total):
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnavailable, total))
	case errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
