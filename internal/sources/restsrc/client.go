// Package restsrc reads dashboard data from the managed backend's REST API.
package restsrc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/outletdash/internal/daterange"
	"github.com/odyssey-erp/outletdash/internal/overview"
)

// Endpoint paths relative to the base URL.
const (
	InvoicesPath        = "/invoices"
	DailyReportsPath    = "/daily-reports"
	AuditLogsPath       = "/audit-logs"
	RevenueSummaryPath  = "/revenue/summary"
	InventoryAlertsPath = "/inventory/alerts"
)

// ErrBaseURLRequired is returned when the client is built without a backend URL.
var ErrBaseURLRequired = errors.New("restsrc: base url required")

// StatusError reports a non-2xx backend response.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("restsrc: %s returned status %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("restsrc: %s returned status %d: %s", e.Path, e.StatusCode, e.Body)
}

// Client wraps the backend endpoints used by the overview.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
}

// NewClient constructs a backend client. timeout applies to every request on
// top of the caller's context deadline.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrBaseURLRequired
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("restsrc: parse base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: parsed,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Sources exposes the client as the overview's data sources.
func (c *Client) Sources() overview.Sources {
	return overview.Sources{
		Invoices:  pageSource[overview.Invoice](c, InvoicesPath),
		Reports:   pageSource[overview.DailyReport](c, DailyReportsPath),
		Activity:  pageSource[overview.AuditEntry](c, AuditLogsPath),
		Revenue:   c,
		Inventory: c,
	}
}

// Ping checks that the backend answers on its base URL.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/health", url.Values{}, nil)
}

// RevenueSummary implements overview.RevenueSource.
func (c *Client) RevenueSummary(ctx context.Context, q overview.RevenueQuery) (overview.RevenueSummary, error) {
	query := url.Values{}
	query.Set("outlet_ids", strings.Join(q.OutletIDs, ","))
	query.Set("date_from", q.Current.From)
	query.Set("date_to", q.Current.To)
	if q.Previous.From != "" {
		query.Set("prev_date_from", q.Previous.From)
		query.Set("prev_date_to", q.Previous.To)
	}
	var out overview.RevenueSummary
	if err := c.get(ctx, RevenueSummaryPath, query, &out); err != nil {
		return overview.RevenueSummary{}, err
	}
	return out, nil
}

// InventoryAlerts implements overview.InventorySource.
func (c *Client) InventoryAlerts(ctx context.Context, outletID string, rng daterange.DateRange) (overview.InventoryAlerts, error) {
	query := url.Values{}
	query.Set("outlet_id", outletID)
	query.Set("date_from", rng.From)
	query.Set("date_to", rng.To)
	var out overview.InventoryAlerts
	if err := c.get(ctx, InventoryAlertsPath, query, &out); err != nil {
		return overview.InventoryAlerts{}, err
	}
	return out, nil
}

func pageSource[T any](c *Client, endpoint string) overview.PageSourceFunc[T] {
	return func(ctx context.Context, req overview.PageRequest) (overview.Page[T], error) {
		query := url.Values{}
		query.Set("outlet_id", req.OutletID)
		query.Set("page", strconv.Itoa(req.Page))
		query.Set("size", strconv.Itoa(req.Size))
		if req.DateFrom != "" {
			query.Set("date_from", req.DateFrom)
		}
		if req.DateTo != "" {
			query.Set("date_to", req.DateTo)
		}
		for k, v := range req.Filters {
			query.Set(k, v)
		}
		var page overview.Page[T]
		if err := c.get(ctx, endpoint, query, &page); err != nil {
			return overview.Page[T]{}, err
		}
		return page, nil
	}
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	target := *c.baseURL
	target.Path = path.Join(target.Path, endpoint)
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("restsrc: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("restsrc: %s: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Path: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("restsrc: decode %s: %w", endpoint, err)
	}
	return nil
}
