// Package pgsrc reads dashboard data straight from the backend's Postgres
// database.
package pgsrc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/outletdash/internal/daterange"
	"github.com/odyssey-erp/outletdash/internal/overview"
	"github.com/odyssey-erp/outletdash/internal/platform/db"
)

// ExpiryWindow is how far ahead inventory expiry alerts look.
const ExpiryWindow = 7 * 24 * time.Hour

type dbtx interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Source implements the overview data sources on Postgres.
type Source struct {
	pool           *pgxpool.Pool
	db             dbtx
	recentLimit    int
	topProducts    int
	alertItemLimit int
	now            func() time.Time
}

// NewSource constructs a Postgres-backed source.
func NewSource(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool, db: pool, recentLimit: 10, topProducts: 10, alertItemLimit: 10, now: time.Now}
}

// Sources exposes the database as the overview's data sources.
func (s *Source) Sources() overview.Sources {
	return overview.Sources{
		Invoices:  overview.PageSourceFunc[overview.Invoice](s.ListInvoices),
		Reports:   overview.PageSourceFunc[overview.DailyReport](s.ListDailyReports),
		Activity:  overview.PageSourceFunc[overview.AuditEntry](s.ListAuditEntries),
		Revenue:   s,
		Inventory: s,
	}
}

// pageQuery describes one paged table read.
type pageQuery struct {
	table    string
	columns  string
	dateCol  string
	orderBy  string
	filters  map[string]string
	allowed  map[string]string
	outletID string
	dateFrom string
	dateTo   string
	page     int
	size     int
}

// build renders the count and list statements with their arguments.
func (q pageQuery) build() (countSQL, listSQL string, countArgs, listArgs []interface{}) {
	conditions := []string{"outlet_id = $1"}
	args := []interface{}{q.outletID}
	argPos := 2

	if q.dateFrom != "" {
		conditions = append(conditions, fmt.Sprintf("%s >= $%d::date", q.dateCol, argPos))
		args = append(args, q.dateFrom)
		argPos++
	}
	if q.dateTo != "" {
		conditions = append(conditions, fmt.Sprintf("%s < ($%d::date + 1)", q.dateCol, argPos))
		args = append(args, q.dateTo)
		argPos++
	}
	for _, key := range sortedKeys(q.filters) {
		column, ok := q.allowed[key]
		if !ok {
			continue
		}
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, q.filters[key])
		argPos++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")
	countSQL = fmt.Sprintf("SELECT COUNT(*) FROM %s %s", q.table, where)
	listSQL = fmt.Sprintf("SELECT %s FROM %s %s ORDER BY %s LIMIT $%d OFFSET $%d",
		q.columns, q.table, where, q.orderBy, argPos, argPos+1)

	countArgs = append([]interface{}(nil), args...)
	listArgs = append(args, q.size, (q.page-1)*q.size)
	return countSQL, listSQL, countArgs, listArgs
}

func newPageQuery(table, columns, dateCol, orderBy string, allowed map[string]string, req overview.PageRequest) pageQuery {
	page, size := req.Page, req.Size
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = overview.DefaultPageSize
	}
	return pageQuery{
		table:    table,
		columns:  columns,
		dateCol:  dateCol,
		orderBy:  orderBy,
		filters:  req.Filters,
		allowed:  allowed,
		outletID: req.OutletID,
		dateFrom: req.DateFrom,
		dateTo:   req.DateTo,
		page:     page,
		size:     size,
	}
}

func listPage[T any](ctx context.Context, db dbtx, q pageQuery, scan func(pgx.Rows) (T, error)) (overview.Page[T], error) {
	countSQL, listSQL, countArgs, listArgs := q.build()

	var total int
	if err := db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return overview.Page[T]{}, fmt.Errorf("pgsrc: count %s: %w", q.table, err)
	}
	rows, err := db.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return overview.Page[T]{}, fmt.Errorf("pgsrc: list %s: %w", q.table, err)
	}
	defer rows.Close()

	items := make([]T, 0, q.size)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return overview.Page[T]{}, fmt.Errorf("pgsrc: scan %s: %w", q.table, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return overview.Page[T]{}, fmt.Errorf("pgsrc: list %s: %w", q.table, err)
	}
	return overview.Page[T]{
		Items: items,
		Total: total,
		Page:  q.page,
		Size:  q.size,
		Pages: pageCount(total, q.size),
	}, nil
}

// ListInvoices serves one page of vendor invoices.
func (s *Source) ListInvoices(ctx context.Context, req overview.PageRequest) (overview.Page[overview.Invoice], error) {
	q := newPageQuery("invoices",
		"id::text, outlet_id::text, invoice_number, vendor_name, issue_date, due_date, status, COALESCE(payment_status, ''), payment_date, amount::float8, COALESCE(notes, '')",
		"issue_date", "issue_date DESC, id",
		map[string]string{"status": "status", "payment_status": "payment_status", "vendor": "vendor_name"}, req)
	return listPage(ctx, s.db, q, func(rows pgx.Rows) (overview.Invoice, error) {
		var inv overview.Invoice
		err := rows.Scan(&inv.ID, &inv.OutletID, &inv.Number, &inv.Vendor, &inv.IssueDate, &inv.DueDate,
			&inv.Status, &inv.PaymentStatus, &inv.PaymentDate, &inv.Amount, &inv.Notes)
		return inv, err
	})
}

// ListDailyReports serves one page of end-of-day reports.
func (s *Source) ListDailyReports(ctx context.Context, req overview.PageRequest) (overview.Page[overview.DailyReport], error) {
	q := newPageQuery("daily_reports",
		"id::text, outlet_id::text, report_date, total_sales::float8, total_expenses::float8, cash_on_hand::float8, status",
		"report_date", "report_date DESC, id",
		map[string]string{"status": "status"}, req)
	return listPage(ctx, s.db, q, func(rows pgx.Rows) (overview.DailyReport, error) {
		var r overview.DailyReport
		err := rows.Scan(&r.ID, &r.OutletID, &r.BusinessDate, &r.Sales, &r.Expenses, &r.CashOnHand, &r.Status)
		return r, err
	})
}

// ListAuditEntries serves one page of the activity feed, newest first.
func (s *Source) ListAuditEntries(ctx context.Context, req overview.PageRequest) (overview.Page[overview.AuditEntry], error) {
	q := newPageQuery("audit_logs",
		"id::text, outlet_id::text, COALESCE(actor, ''), action, COALESCE(entity_type, ''), COALESCE(description, ''), created_at",
		"created_at", "created_at DESC, id",
		map[string]string{"action": "action", "entity_type": "entity_type"}, req)
	return listPage(ctx, s.db, q, func(rows pgx.Rows) (overview.AuditEntry, error) {
		var e overview.AuditEntry
		err := rows.Scan(&e.ID, &e.OutletID, &e.Actor, &e.Action, &e.Entity, &e.Message, &e.Timestamp)
		return e, err
	})
}

const salesTotalsSQL = `
	SELECT COALESCE(SUM(amount), 0)::float8, COUNT(*)
	FROM transactions
	WHERE outlet_id::text = ANY($1) AND occurred_at >= $2::date AND occurred_at < ($3::date + 1)`

const paymentMethodsSQL = `
	SELECT payment_method, COALESCE(SUM(amount), 0)::float8, COUNT(*)
	FROM transactions
	WHERE outlet_id::text = ANY($1) AND occurred_at >= $2::date AND occurred_at < ($3::date + 1)
	GROUP BY payment_method
	ORDER BY 2 DESC`

const topProductsSQL = `
	SELECT ti.product_id::text, ti.product_name, SUM(ti.quantity)::float8, SUM(ti.line_total)::float8
	FROM transaction_items ti
	JOIN transactions t ON t.id = ti.transaction_id
	WHERE t.outlet_id::text = ANY($1) AND t.occurred_at >= $2::date AND t.occurred_at < ($3::date + 1)
	GROUP BY ti.product_id, ti.product_name
	ORDER BY 4 DESC
	LIMIT $4`

const recentTransactionsSQL = `
	SELECT t.id::text, t.outlet_id::text, t.amount::float8, t.payment_method, t.item_count, t.occurred_at
	FROM transactions t
	WHERE t.outlet_id::text = ANY($1) AND t.occurred_at >= $2::date AND t.occurred_at < ($3::date + 1)
	ORDER BY t.occurred_at DESC
	LIMIT $4`

// RevenueSummary implements overview.RevenueSource. All figures are read from
// one snapshot.
func (s *Source) RevenueSummary(ctx context.Context, q overview.RevenueQuery) (overview.RevenueSummary, error) {
	if s.pool == nil {
		return s.revenueSummary(ctx, s.db, q)
	}
	var out overview.RevenueSummary
	err := db.ReadSnapshot(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		out, err = s.revenueSummary(ctx, tx, q)
		return err
	})
	return out, err
}

func (s *Source) revenueSummary(ctx context.Context, conn dbtx, q overview.RevenueQuery) (overview.RevenueSummary, error) {
	var out overview.RevenueSummary
	if err := conn.QueryRow(ctx, salesTotalsSQL, q.OutletIDs, q.Current.From, q.Current.To).Scan(&out.Sales, &out.Transactions); err != nil {
		return overview.RevenueSummary{}, fmt.Errorf("pgsrc: sales totals: %w", err)
	}
	if q.Previous.From != "" {
		if err := conn.QueryRow(ctx, salesTotalsSQL, q.OutletIDs, q.Previous.From, q.Previous.To).Scan(&out.PreviousSales, &out.PreviousTransactions); err != nil {
			return overview.RevenueSummary{}, fmt.Errorf("pgsrc: previous sales totals: %w", err)
		}
	}
	if out.Transactions > 0 {
		out.AverageTransaction = out.Sales / float64(out.Transactions)
	}

	methods, err := collectRows(ctx, conn, paymentMethodsSQL, func(rows pgx.Rows) (overview.PaymentMethodTotal, error) {
		var m overview.PaymentMethodTotal
		err := rows.Scan(&m.Method, &m.Amount, &m.Transactions)
		return m, err
	}, q.OutletIDs, q.Current.From, q.Current.To)
	if err != nil {
		return overview.RevenueSummary{}, fmt.Errorf("pgsrc: payment methods: %w", err)
	}
	out.PaymentMethods = methods

	products, err := collectRows(ctx, conn, topProductsSQL, func(rows pgx.Rows) (overview.ProductSales, error) {
		var p overview.ProductSales
		err := rows.Scan(&p.ProductID, &p.Name, &p.Quantity, &p.Revenue)
		return p, err
	}, q.OutletIDs, q.Current.From, q.Current.To, s.topProducts)
	if err != nil {
		return overview.RevenueSummary{}, fmt.Errorf("pgsrc: top products: %w", err)
	}
	out.TopProducts = products

	recent, err := collectRows(ctx, conn, recentTransactionsSQL, func(rows pgx.Rows) (overview.Transaction, error) {
		var t overview.Transaction
		err := rows.Scan(&t.ID, &t.OutletID, &t.Amount, &t.PaymentMethod, &t.Items, &t.OccurredAt)
		return t, err
	}, q.OutletIDs, q.Current.From, q.Current.To, s.recentLimit)
	if err != nil {
		return overview.RevenueSummary{}, fmt.Errorf("pgsrc: recent transactions: %w", err)
	}
	out.RecentTransactions = recent
	return out, nil
}

const inventoryCountsSQL = `
	SELECT
		COUNT(*) FILTER (WHERE quantity > 0 AND quantity <= reorder_level),
		COUNT(*) FILTER (WHERE quantity <= 0),
		COUNT(*) FILTER (WHERE expires_at IS NOT NULL AND expires_at >= $2 AND expires_at < $3)
	FROM inventory_items
	WHERE outlet_id::text = $1`

const inventoryItemsSQL = `
	SELECT outlet_id::text, product_id::text, name, quantity::float8, reorder_level::float8, expires_at
	FROM inventory_items
	WHERE outlet_id::text = $1 AND %s
	ORDER BY %s
	LIMIT $%d`

// InventoryAlerts implements overview.InventorySource. Stock levels are
// current; the range is not applied to them.
func (s *Source) InventoryAlerts(ctx context.Context, outletID string, _ daterange.DateRange) (overview.InventoryAlerts, error) {
	now := s.now()
	horizon := now.Add(ExpiryWindow)

	var out overview.InventoryAlerts
	if err := s.db.QueryRow(ctx, inventoryCountsSQL, outletID, now, horizon).Scan(&out.LowStockCount, &out.OutOfStockCount, &out.ExpiringCount); err != nil {
		return overview.InventoryAlerts{}, fmt.Errorf("pgsrc: inventory counts: %w", err)
	}

	scan := func(rows pgx.Rows) (overview.StockItem, error) {
		var item overview.StockItem
		err := rows.Scan(&item.OutletID, &item.ProductID, &item.Name, &item.Quantity, &item.Threshold, &item.ExpiresAt)
		return item, err
	}
	var err error
	if out.LowStock, err = collectRows(ctx, s.db, fmt.Sprintf(inventoryItemsSQL, "quantity > 0 AND quantity <= reorder_level", "quantity ASC", 2), scan, outletID, s.alertItemLimit); err != nil {
		return overview.InventoryAlerts{}, fmt.Errorf("pgsrc: low stock: %w", err)
	}
	if out.OutOfStock, err = collectRows(ctx, s.db, fmt.Sprintf(inventoryItemsSQL, "quantity <= 0", "name ASC", 2), scan, outletID, s.alertItemLimit); err != nil {
		return overview.InventoryAlerts{}, fmt.Errorf("pgsrc: out of stock: %w", err)
	}
	if out.Expiring, err = collectRows(ctx, s.db, fmt.Sprintf(inventoryItemsSQL, "expires_at IS NOT NULL AND expires_at >= $2 AND expires_at < $3", "expires_at ASC", 4), scan, outletID, now, horizon, s.alertItemLimit); err != nil {
		return overview.InventoryAlerts{}, fmt.Errorf("pgsrc: expiring: %w", err)
	}
	return out, nil
}

// OutletScopes returns the outlet ids grouped by owner, one scope per owner.
// The warmup job pre-builds a snapshot for each scope.
func (s *Source) OutletScopes(ctx context.Context) ([][]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT owner_id::text, array_agg(id::text ORDER BY id)
		FROM outlets
		WHERE archived_at IS NULL
		GROUP BY owner_id
		ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("pgsrc: outlet scopes: %w", err)
	}
	defer rows.Close()

	scopes := make([][]string, 0)
	for rows.Next() {
		var owner string
		var ids []string
		if err := rows.Scan(&owner, &ids); err != nil {
			return nil, fmt.Errorf("pgsrc: scan outlet scope: %w", err)
		}
		if len(ids) > 0 {
			scopes = append(scopes, ids)
		}
	}
	return scopes, rows.Err()
}

func collectRows[T any](ctx context.Context, db dbtx, sql string, scan func(pgx.Rows) (T, error), args ...interface{}) ([]T, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func pageCount(total, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
