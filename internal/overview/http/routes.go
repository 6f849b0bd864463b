package overviewhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/outletdash/internal/platform/httpx"
)

// ExportRequestsPerMinute caps CSV downloads per client.
const ExportRequestsPerMinute = 10

// MountRoutes registers the overview endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(ExportRequestsPerMinute, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			httpx.RespondError(w, httpx.ErrRateLimited)
		}),
	)

	r.Get("/overview", h.handleOverview)
	r.Get("/overview/range", h.handleRange)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/overview/invoices.csv", h.handleLedgerCSV)
		gr.Get("/overview/summary.csv", h.handleSummaryCSV)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
