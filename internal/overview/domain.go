package overview

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/outletdash/internal/daterange"
)

// ErrEmptyScope indicates no outlet was selected.
var ErrEmptyScope = errors.New("overview: outlet scope is empty")

// Source names used in warnings, errors and metrics.
const (
	SourceRevenue   = "revenue"
	SourceInvoices  = "invoices"
	SourceReports   = "daily_reports"
	SourceActivity  = "activity"
	SourceInventory = "inventory"
)

// Invoice is a vendor invoice as exposed by the persistence layer.
type Invoice struct {
	ID            string     `json:"id"`
	OutletID      string     `json:"outlet_id"`
	Number        string     `json:"invoice_number"`
	Vendor        string     `json:"vendor_name"`
	IssueDate     time.Time  `json:"issue_date"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status,omitempty"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`
	Amount        float64    `json:"amount"`
	Notes         string     `json:"notes,omitempty"`
}

// DailyReport is an end-of-day report submitted by an outlet.
type DailyReport struct {
	ID           string    `json:"id"`
	OutletID     string    `json:"outlet_id"`
	BusinessDate time.Time `json:"report_date"`
	Sales        float64   `json:"total_sales"`
	Expenses     float64   `json:"total_expenses"`
	CashOnHand   float64   `json:"cash_on_hand"`
	Status       string    `json:"status"`
}

// AuditEntry is one line of the outlet activity feed.
type AuditEntry struct {
	ID        string    `json:"id"`
	OutletID  string    `json:"outlet_id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity_type"`
	Message   string    `json:"description"`
	Timestamp time.Time `json:"created_at"`
}

// PaymentMethodTotal aggregates revenue per payment method.
type PaymentMethodTotal struct {
	Method       string  `json:"method"`
	Amount       float64 `json:"amount"`
	Transactions int     `json:"transactions"`
}

// ProductSales aggregates sold quantity and revenue per product.
type ProductSales struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	Revenue   float64 `json:"revenue"`
}

// Transaction is a single sale shown in the recent transactions list.
type Transaction struct {
	ID            string    `json:"id"`
	OutletID      string    `json:"outlet_id"`
	Amount        float64   `json:"amount"`
	PaymentMethod string    `json:"payment_method"`
	Items         int       `json:"items"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RevenueQuery scopes a revenue summary request.
type RevenueQuery struct {
	OutletIDs []string
	Current   daterange.DateRange
	Previous  daterange.DateRange
}

// RevenueSummary is the revenue/transaction endpoint response.
type RevenueSummary struct {
	Sales                float64              `json:"total_sales"`
	Transactions         int                  `json:"transaction_count"`
	AverageTransaction   float64              `json:"average_transaction"`
	PreviousSales        float64              `json:"previous_total_sales"`
	PreviousTransactions int                  `json:"previous_transaction_count"`
	PaymentMethods       []PaymentMethodTotal `json:"payment_methods"`
	TopProducts          []ProductSales       `json:"top_products"`
	RecentTransactions   []Transaction        `json:"recent_transactions"`
}

// StockItem is a product that triggered an inventory alert.
type StockItem struct {
	OutletID  string     `json:"outlet_id"`
	ProductID string     `json:"product_id"`
	Name      string     `json:"name"`
	Quantity  float64    `json:"quantity"`
	Threshold float64    `json:"threshold"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// InventoryAlerts summarises stock problems for a scope.
type InventoryAlerts struct {
	LowStockCount   int         `json:"low_stock_count"`
	OutOfStockCount int         `json:"out_of_stock_count"`
	ExpiringCount   int         `json:"expiring_count"`
	LowStock        []StockItem `json:"low_stock"`
	OutOfStock      []StockItem `json:"out_of_stock"`
	Expiring        []StockItem `json:"expiring"`
}

// MetricChange is a directional period-over-period delta.
type MetricChange struct {
	Value           float64 `json:"value"`
	IsPositive      bool    `json:"is_positive"`
	DisplayLabel    string  `json:"display_label,omitempty"`
	ComparisonLabel string  `json:"comparison_label,omitempty"`
}

// SalesSummary holds the revenue headline figures.
type SalesSummary struct {
	Revenue              float64       `json:"revenue"`
	Transactions         int           `json:"transactions"`
	AverageTransaction   float64       `json:"average_transaction"`
	PreviousRevenue      float64       `json:"previous_revenue"`
	PreviousTransactions int           `json:"previous_transactions"`
	RevenueChange        *MetricChange `json:"revenue_change,omitempty"`
	TransactionsChange   *MetricChange `json:"transactions_change,omitempty"`
}

// ExpenseSummary holds expenses recorded in end-of-day reports.
type ExpenseSummary struct {
	Total    float64       `json:"total"`
	Previous float64       `json:"previous"`
	Change   *MetricChange `json:"change,omitempty"`
}

// InvoiceSummary holds the invoice exposure totals.
type InvoiceSummary struct {
	Count        int     `json:"count"`
	PaidCount    int     `json:"paid_count"`
	PaidTotal    float64 `json:"paid_total"`
	UnpaidCount  int     `json:"unpaid_count"`
	UnpaidTotal  float64 `json:"unpaid_total"`
	OverdueCount int     `json:"overdue_count"`
	OverdueTotal float64 `json:"overdue_total"`
}

// ReportCoverage compares submitted end-of-day reports with expected ones.
type ReportCoverage struct {
	Submitted int `json:"submitted"`
	Expected  int `json:"expected"`
}

// LedgerRow is one invoice in the export projection.
type LedgerRow struct {
	OutletID      string       `json:"outlet_id"`
	Number        string       `json:"invoice_number"`
	Vendor        string       `json:"vendor"`
	IssueDate     time.Time    `json:"issue_date"`
	DueDate       *time.Time   `json:"due_date,omitempty"`
	Status        string       `json:"status"`
	PaymentStatus PaymentState `json:"payment_status"`
	PaymentDate   *time.Time   `json:"payment_date,omitempty"`
	Amount        float64      `json:"amount"`
	Notes         string       `json:"notes,omitempty"`
}

// Snapshot is one aggregated dashboard result. Snapshots returned by the
// service are shared with the cache and must not be mutated.
type Snapshot struct {
	ID                 uuid.UUID            `json:"id"`
	Key                string               `json:"key"`
	Version            int64                `json:"version"`
	OutletIDs          []string             `json:"outlet_ids"`
	Range              daterange.DateRange  `json:"range"`
	PreviousRange      daterange.DateRange  `json:"previous_range"`
	Sales              SalesSummary         `json:"sales"`
	Expenses           ExpenseSummary       `json:"expenses"`
	Invoices           InvoiceSummary       `json:"invoices"`
	PaymentBreakdown   []PaymentMethodTotal `json:"payment_breakdown"`
	TopProducts        []ProductSales       `json:"top_products"`
	RecentTransactions []Transaction        `json:"recent_transactions"`
	RecentActivity     []AuditEntry         `json:"recent_activity"`
	Inventory          InventoryAlerts      `json:"inventory"`
	Reports            ReportCoverage       `json:"reports"`
	Ledger             []LedgerRow          `json:"ledger"`
	Insights           []string             `json:"insights"`
	Warnings           []string             `json:"warnings,omitempty"`
	Partial            bool                 `json:"partial"`
	GeneratedAt        time.Time            `json:"generated_at"`
}

// SourceError reports a failed read from one data source for one outlet.
// OutletID is "*" when every outlet in the scope failed.
type SourceError struct {
	Source   string
	OutletID string
	Err      error
}

func (e *SourceError) Error() string {
	if e.OutletID == "" {
		return fmt.Sprintf("overview: source %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("overview: source %s outlet %s: %v", e.Source, e.OutletID, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// TotalAggregationErrorMessage is the user-facing text for a total failure.
const TotalAggregationErrorMessage = "Unable to load dashboard data for the selected outlets"

// TotalAggregationError reports that every source failed for every outlet.
type TotalAggregationError struct {
	Key    string
	Errors []error
}

func (e *TotalAggregationError) Error() string {
	return fmt.Sprintf("overview: all sources failed for %s (%d errors)", e.Key, len(e.Errors))
}

func (e *TotalAggregationError) Unwrap() []error { return e.Errors }

// UserMessage returns the text shown in the dashboard error banner.
func (e *TotalAggregationError) UserMessage() string {
	return TotalAggregationErrorMessage
}
