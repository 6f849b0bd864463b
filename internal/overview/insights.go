package overview

import "fmt"

// buildInsights derives the narrative lines shown above the dashboard cards.
func buildInsights(snap *Snapshot) []string {
	insights := make([]string, 0, 6)

	if ch := snap.Sales.RevenueChange; ch != nil {
		switch {
		case ch.ComparisonLabel == labelNoBaseline && snap.Sales.Revenue > 0:
			insights = append(insights, "First revenue recorded for this period; there is no prior baseline to compare with.")
		case ch.ComparisonLabel == labelVsPrevious && ch.Value > 0:
			direction := "up"
			if snap.Sales.Revenue < snap.Sales.PreviousRevenue {
				direction = "down"
			}
			insights = append(insights, fmt.Sprintf("Revenue is %s %.1f%% compared with the previous period.", direction, ch.Value))
		}
	}

	if ch := snap.Expenses.Change; ch != nil && ch.ComparisonLabel == labelVsPrevious && ch.Value > 0 {
		direction := "fell"
		if snap.Expenses.Total > snap.Expenses.Previous {
			direction = "rose"
		}
		insights = append(insights, fmt.Sprintf("Expenses %s %.1f%% compared with the previous period.", direction, ch.Value))
	}

	switch inv := snap.Invoices; {
	case inv.OverdueCount > 0:
		insights = append(insights, fmt.Sprintf("%d %s overdue with %.2f outstanding.", inv.OverdueCount, plural(inv.OverdueCount, "invoice is", "invoices are"), inv.OverdueTotal))
	case inv.UnpaidCount > 0:
		insights = append(insights, fmt.Sprintf("%d unpaid %s totalling %.2f.", inv.UnpaidCount, plural(inv.UnpaidCount, "invoice", "invoices"), inv.UnpaidTotal))
	}

	if stock := snap.Inventory; stock.OutOfStockCount > 0 || stock.LowStockCount > 0 {
		insights = append(insights, fmt.Sprintf("%d %s out of stock and %d running low.", stock.OutOfStockCount, plural(stock.OutOfStockCount, "product is", "products are"), stock.LowStockCount))
	}
	if snap.Inventory.ExpiringCount > 0 {
		insights = append(insights, fmt.Sprintf("%d %s expiring soon.", snap.Inventory.ExpiringCount, plural(snap.Inventory.ExpiringCount, "item is", "items are")))
	}

	if len(snap.TopProducts) > 0 {
		best := snap.TopProducts[0]
		insights = append(insights, fmt.Sprintf("Best seller: %s with %.2f in revenue.", best.Name, best.Revenue))
	}

	if cov := snap.Reports; cov.Expected > 0 && cov.Submitted < cov.Expected {
		insights = append(insights, fmt.Sprintf("End-of-day reports submitted for %d of %d outlet days.", cov.Submitted, cov.Expected))
	}
	return insights
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
