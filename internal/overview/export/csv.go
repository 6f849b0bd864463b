package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/outletdash/internal/daterange"
	"github.com/odyssey-erp/outletdash/internal/overview"
)

// LedgerHeader lists the columns of the invoice ledger export.
var LedgerHeader = []string{
	"Outlet",
	"Invoice Number",
	"Vendor",
	"Issue Date",
	"Due Date",
	"Workflow Status",
	"Payment Status",
	"Payment Date",
	"Amount",
	"Notes",
}

// WriteLedgerCSV serialises the invoice ledger of a snapshot.
func WriteLedgerCSV(w io.Writer, rows []overview.LedgerRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(LedgerHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.OutletID,
			row.Number,
			row.Vendor,
			formatDate(&row.IssueDate),
			formatDate(row.DueDate),
			row.Status,
			string(row.PaymentStatus),
			formatDate(row.PaymentDate),
			formatMoney(row.Amount),
			row.Notes,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSummaryCSV emits the headline figures of a snapshot as metric/value pairs.
func WriteSummaryCSV(w io.Writer, snap *overview.Snapshot) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	records := [][]string{
		{"Period", snap.Range.String()},
		{"Previous Period", snap.PreviousRange.String()},
		{"Revenue", formatMoney(snap.Sales.Revenue)},
		{"Revenue Change", changeLabel(snap.Sales.RevenueChange)},
		{"Transactions", strconv.Itoa(snap.Sales.Transactions)},
		{"Average Transaction", formatMoney(snap.Sales.AverageTransaction)},
		{"Expenses", formatMoney(snap.Expenses.Total)},
		{"Expenses Change", changeLabel(snap.Expenses.Change)},
		{"Paid Invoices", formatMoney(snap.Invoices.PaidTotal)},
		{"Unpaid Invoices", formatMoney(snap.Invoices.UnpaidTotal)},
		{"Overdue Invoices", formatMoney(snap.Invoices.OverdueTotal)},
		{"Low Stock Items", strconv.Itoa(snap.Inventory.LowStockCount)},
		{"Out Of Stock Items", strconv.Itoa(snap.Inventory.OutOfStockCount)},
		{"Expiring Items", strconv.Itoa(snap.Inventory.ExpiringCount)},
		{"Reports Submitted", strconv.Itoa(snap.Reports.Submitted)},
		{"Reports Expected", strconv.Itoa(snap.Reports.Expected)},
		{"Partial", strconv.FormatBool(snap.Partial)},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	for _, method := range snap.PaymentBreakdown {
		if err := writer.Write([]string{"Payment " + method.Method, formatMoney(method.Amount)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// LedgerFilename names the ledger download for a range.
func LedgerFilename(rng daterange.DateRange) string {
	return "invoices-" + rng.From + "-to-" + rng.To + ".csv"
}

// SummaryFilename names the summary download for a range.
func SummaryFilename(rng daterange.DateRange) string {
	return "overview-" + rng.From + "-to-" + rng.To + ".csv"
}

func formatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(daterange.DateLayout)
}

func changeLabel(ch *overview.MetricChange) string {
	if ch == nil {
		return ""
	}
	return ch.DisplayLabel
}
