package overview

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/outletdash/internal/daterange"
)

// assembler folds collected records into snapshot sections. Each method only
// writes the section it owns.
type assembler struct {
	cfg   Config
	today time.Time
}

func (a assembler) sales(snap *Snapshot, res fanOutResult[RevenueSummary]) {
	var revenue, previous decimal.Decimal
	var transactions, prevTransactions int
	methods := make(map[string]*methodAcc)
	methodOrder := make([]string, 0)
	products := make(map[string]*productAcc)
	productOrder := make([]string, 0)
	recent := make([]Transaction, 0)

	for _, summary := range res.items {
		revenue = revenue.Add(decimal.NewFromFloat(summary.Sales))
		previous = previous.Add(decimal.NewFromFloat(summary.PreviousSales))
		transactions += summary.Transactions
		prevTransactions += summary.PreviousTransactions
		for _, m := range summary.PaymentMethods {
			key := strings.ToLower(strings.TrimSpace(m.Method))
			acc, ok := methods[key]
			if !ok {
				acc = &methodAcc{method: m.Method}
				methods[key] = acc
				methodOrder = append(methodOrder, key)
			}
			acc.amount = acc.amount.Add(decimal.NewFromFloat(m.Amount))
			acc.count += m.Transactions
		}
		for _, p := range summary.TopProducts {
			key := p.ProductID
			if key == "" {
				key = "name:" + p.Name
			}
			acc, ok := products[key]
			if !ok {
				acc = &productAcc{id: p.ProductID, name: p.Name}
				products[key] = acc
				productOrder = append(productOrder, key)
			}
			acc.quantity = acc.quantity.Add(decimal.NewFromFloat(p.Quantity))
			acc.revenue = acc.revenue.Add(decimal.NewFromFloat(p.Revenue))
		}
		recent = append(recent, summary.RecentTransactions...)
	}

	snap.Sales = SalesSummary{
		Revenue:              money(revenue),
		Transactions:         transactions,
		PreviousRevenue:      money(previous),
		PreviousTransactions: prevTransactions,
	}
	if transactions > 0 {
		snap.Sales.AverageTransaction = money(revenue.Div(decimal.NewFromInt(int64(transactions))))
	}
	if res.err == nil {
		snap.Sales.RevenueChange = ComputeChange(snap.Sales.Revenue, snap.Sales.PreviousRevenue, false)
		snap.Sales.TransactionsChange = ComputeChange(float64(transactions), float64(prevTransactions), false)
	}

	breakdown := make([]PaymentMethodTotal, 0, len(methodOrder))
	for _, key := range methodOrder {
		acc := methods[key]
		breakdown = append(breakdown, PaymentMethodTotal{Method: acc.method, Amount: money(acc.amount), Transactions: acc.count})
	}
	sort.SliceStable(breakdown, func(i, j int) bool { return breakdown[i].Amount > breakdown[j].Amount })
	snap.PaymentBreakdown = breakdown

	top := make([]ProductSales, 0, len(productOrder))
	for _, key := range productOrder {
		acc := products[key]
		top = append(top, ProductSales{ProductID: acc.id, Name: acc.name, Quantity: acc.quantity.InexactFloat64(), Revenue: money(acc.revenue)})
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Revenue > top[j].Revenue })
	snap.TopProducts = truncate(top, a.cfg.TopProductsLimit)

	sort.SliceStable(recent, func(i, j int) bool { return recent[i].OccurredAt.After(recent[j].OccurredAt) })
	snap.RecentTransactions = truncate(recent, a.cfg.RecentTransactionsLimit)
}

func (a assembler) invoices(snap *Snapshot, items []Invoice, _ error) {
	today := startOfDay(a.today)
	var paid, unpaid, overdue decimal.Decimal
	summary := InvoiceSummary{Count: len(items)}
	ledger := make([]LedgerRow, 0, len(items))
	for _, inv := range items {
		state := NormalizePaymentStatus(inv)
		amount := decimal.NewFromFloat(inv.Amount)
		switch state {
		case PaymentPaid:
			paid = paid.Add(amount)
			summary.PaidCount++
		case PaymentUnpaid:
			unpaid = unpaid.Add(amount)
			summary.UnpaidCount++
			if inv.DueDate != nil && inv.DueDate.Before(today) {
				overdue = overdue.Add(amount)
				summary.OverdueCount++
			}
		}
		ledger = append(ledger, LedgerRow{
			OutletID:      inv.OutletID,
			Number:        inv.Number,
			Vendor:        inv.Vendor,
			IssueDate:     inv.IssueDate,
			DueDate:       inv.DueDate,
			Status:        inv.Status,
			PaymentStatus: state,
			PaymentDate:   inv.PaymentDate,
			Amount:        inv.Amount,
			Notes:         inv.Notes,
		})
	}
	summary.PaidTotal = money(paid)
	summary.UnpaidTotal = money(unpaid)
	summary.OverdueTotal = money(overdue)
	snap.Invoices = summary
	snap.Ledger = ledger
}

func (a assembler) expenses(snap *Snapshot, current []DailyReport, currentErr error, previous []DailyReport, previousErr error) {
	total := sumExpenses(current)
	prev := sumExpenses(previous)
	snap.Expenses = ExpenseSummary{Total: money(total), Previous: money(prev)}
	if currentErr == nil && previousErr == nil {
		snap.Expenses.Change = ComputeChange(snap.Expenses.Total, snap.Expenses.Previous, true)
	}
}

func (a assembler) coverage(snap *Snapshot, reports []DailyReport, err error, outlets int) {
	if err != nil {
		return
	}
	seen := make(map[string]struct{}, len(reports))
	for _, r := range reports {
		status := strings.ToLower(strings.TrimSpace(r.Status))
		if status == "" || status == WorkflowDraft {
			continue
		}
		seen[r.OutletID+"|"+r.BusinessDate.Format(daterange.DateLayout)] = struct{}{}
	}
	snap.Reports = ReportCoverage{Submitted: len(seen), Expected: outlets * elapsedDays(snap.Range, a.today)}
}

func (a assembler) activity(snap *Snapshot, entries []AuditEntry) {
	sorted := append([]AuditEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.After(sorted[j].Timestamp) })
	snap.RecentActivity = truncate(sorted, a.cfg.ActivityLimit)
}

func (a assembler) inventory(snap *Snapshot, alerts []InventoryAlerts) {
	var merged InventoryAlerts
	for _, al := range alerts {
		merged.LowStockCount += al.LowStockCount
		merged.OutOfStockCount += al.OutOfStockCount
		merged.ExpiringCount += al.ExpiringCount
		merged.LowStock = append(merged.LowStock, al.LowStock...)
		merged.OutOfStock = append(merged.OutOfStock, al.OutOfStock...)
		merged.Expiring = append(merged.Expiring, al.Expiring...)
	}
	merged.LowStock = truncate(merged.LowStock, a.cfg.AlertItemsLimit)
	merged.OutOfStock = truncate(merged.OutOfStock, a.cfg.AlertItemsLimit)
	merged.Expiring = truncate(merged.Expiring, a.cfg.AlertItemsLimit)
	snap.Inventory = merged
}

type methodAcc struct {
	method string
	amount decimal.Decimal
	count  int
}

type productAcc struct {
	id       string
	name     string
	quantity decimal.Decimal
	revenue  decimal.Decimal
}

func sumExpenses(reports []DailyReport) decimal.Decimal {
	total := decimal.Zero
	for _, r := range reports {
		total = total.Add(decimal.NewFromFloat(r.Expenses))
	}
	return total
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// elapsedDays counts the days of rng up to and including today.
func elapsedDays(rng daterange.DateRange, today time.Time) int {
	from, to, err := rng.Bounds()
	if err != nil {
		return 0
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, from.Location())
	if to.After(day) {
		to = day
	}
	if to.Before(from) {
		return 0
	}
	return daterange.DateRange{From: from.Format(daterange.DateLayout), To: to.Format(daterange.DateLayout)}.Days()
}
