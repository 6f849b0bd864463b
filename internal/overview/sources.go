package overview

import (
	"context"

	"github.com/odyssey-erp/outletdash/internal/daterange"
)

// PageRequest is the query sent to a paged list endpoint.
type PageRequest struct {
	OutletID string
	Page     int
	Size     int
	DateFrom string
	DateTo   string
	Filters  map[string]string
}

// Page is one page of a paged list endpoint.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

// PageSource is a paged list endpoint scoped to one outlet per request.
type PageSource[T any] interface {
	ListPage(ctx context.Context, req PageRequest) (Page[T], error)
}

// PageSourceFunc adapts a function to PageSource.
type PageSourceFunc[T any] func(ctx context.Context, req PageRequest) (Page[T], error)

// ListPage implements PageSource.
func (f PageSourceFunc[T]) ListPage(ctx context.Context, req PageRequest) (Page[T], error) {
	return f(ctx, req)
}

// RevenueSource serves aggregated sales for the current and previous period.
type RevenueSource interface {
	RevenueSummary(ctx context.Context, query RevenueQuery) (RevenueSummary, error)
}

// InventorySource serves low-stock, out-of-stock and expiring counts.
type InventorySource interface {
	InventoryAlerts(ctx context.Context, outletID string, rng daterange.DateRange) (InventoryAlerts, error)
}

// Sources bundles the collaborators consulted when building a snapshot. A nil
// source is treated as failed.
type Sources struct {
	Invoices  PageSource[Invoice]
	Reports   PageSource[DailyReport]
	Activity  PageSource[AuditEntry]
	Revenue   RevenueSource
	Inventory InventorySource
}
