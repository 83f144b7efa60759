package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/port"
)

//go:embed schema.sql
var schema string

const mysqlDuplicateEntry = 1062

// MySQLAdapter is the persistent backend. Scopes run at READ COMMITTED with
// the named stock rows locked up front by SELECT ... FOR UPDATE.
type MySQLAdapter struct {
	db     *sql.DB
	locker port.KeyLocker
}

// NewMySQLAdapter builds the adapter. locker is optional; when set, keys are
// also held in it for the whole scope, which keeps lock waits out of MySQL.
func NewMySQLAdapter(db *sql.DB, locker port.KeyLocker) *MySQLAdapter {
	return &MySQLAdapter{db: db, locker: locker}
}

func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Do(ctx context.Context, keys []domain.StockKey, fn func(tx port.Tx) error) error {
	keys = sortedKeys(keys)

	if m.locker != nil {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		unlock, err := m.locker.Lock(ctx, names)
		if err != nil {
			return fmt.Errorf("lock keys: %w", err)
		}
		defer unlock()
	}

	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, k := range keys {
		if err := lockRow(ctx, tx, k); err != nil {
			return err
		}
	}

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func lockRow(ctx context.Context, tx *sql.Tx, k domain.StockKey) error {
	var (
		q   string
		n   int64
		err error
	)
	if k.IsOnline() {
		q = `SELECT online_stock_qty FROM products WHERE tenant_id = ? AND id = ? FOR UPDATE`
		err = tx.QueryRowContext(ctx, q, k.TenantID, k.ProductID).Scan(&n)
	} else {
		q = `SELECT quantity FROM stock_levels
			WHERE tenant_id = ? AND location_id = ? AND product_id = ? FOR UPDATE`
		err = tx.QueryRowContext(ctx, q, k.TenantID, k.LocationID, k.ProductID).Scan(&n)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lock %s: %w", k, err)
	}
	return nil
}

func sortedKeys(keys []domain.StockKey) []domain.StockKey {
	seen := make(map[domain.StockKey]struct{}, len(keys))
	out := make([]domain.StockKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func conflictOr(err error, format string, args ...any) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), port.ErrConflict)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) Get(ctx context.Context, key domain.StockKey) (int64, error) {
	var qty int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT quantity FROM stock_levels
		WHERE tenant_id = ? AND location_id = ? AND product_id = ?`,
		key.TenantID, key.LocationID, key.ProductID,
	).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", err)
	}
	return qty, nil
}

// Apply rejects a delta whose result would not fit in BIGINT before MySQL
// gets to raise an out-of-range error.
func (t *mysqlTx) Apply(ctx context.Context, key domain.StockKey, delta int64) (int64, error) {
	cur, err := t.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if _, err := domain.AddQuantity(cur, delta); err != nil {
		return 0, err
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO stock_levels (tenant_id, location_id, product_id, quantity, version, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON DUPLICATE KEY UPDATE
			quantity = quantity + VALUES(quantity),
			version = version + 1,
			updated_at = VALUES(updated_at)`,
		key.TenantID, key.LocationID, key.ProductID, delta, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("apply stock: %w", err)
	}
	return t.Get(ctx, key)
}

func (t *mysqlTx) Check(ctx context.Context, key domain.StockKey) (domain.Consistency, error) {
	cached, err := t.Get(ctx, key)
	if err != nil {
		return domain.Consistency{}, err
	}
	c := domain.Consistency{Key: key, Cached: cached}
	err = t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(delta), 0) FROM stock_movements
		WHERE tenant_id = ? AND location_id = ? AND product_id = ?`,
		key.TenantID, key.LocationID, key.ProductID,
	).Scan(&c.MovementSum)
	if err != nil {
		return domain.Consistency{}, fmt.Errorf("sum movements: %w", err)
	}
	return c, nil
}

func (t *mysqlTx) Record(ctx context.Context, mv domain.Movement) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_movements
			(id, tenant_id, location_id, product_id, delta, balance_after, reason, actor_id, reference, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mv.ID, mv.TenantID, mv.LocationID, mv.ProductID, mv.Delta, mv.BalanceAfter,
		string(mv.Reason), nullString(mv.ActorID), mv.Reference, nullString(mv.Note), mv.CreatedAt.UTC(),
	)
	if err != nil {
		return conflictOr(err, "insert movement")
	}
	return nil
}

func (t *mysqlTx) Query(ctx context.Context, tenantID, productID string, limit int) ([]domain.Movement, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, tenant_id, location_id, product_id, delta, balance_after, reason, actor_id, reference, note, created_at
		FROM stock_movements
		WHERE tenant_id = ? AND product_id = ?
		ORDER BY seq DESC
		LIMIT ?`, tenantID, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var out []domain.Movement
	for rows.Next() {
		var (
			mv     domain.Movement
			reason string
			actor  sql.NullString
			note   sql.NullString
		)
		if err := rows.Scan(&mv.ID, &mv.TenantID, &mv.LocationID, &mv.ProductID, &mv.Delta,
			&mv.BalanceAfter, &reason, &actor, &mv.Reference, &note, &mv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		mv.Reason = domain.Reason(reason)
		mv.ActorID = actor.String
		mv.Note = note.String
		out = append(out, mv)
	}
	return out, rows.Err()
}

func (t *mysqlTx) Product(ctx context.Context, tenantID, id string) (*domain.Product, error) {
	var (
		p      domain.Product
		policy string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, sku, name, unit_price, unit_cost, active, policy,
			online_location_id, online_stock_qty, created_at, updated_at
		FROM products WHERE tenant_id = ? AND id = ?`, tenantID, id,
	).Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.UnitPrice, &p.UnitCost, &p.Active, &policy,
		&p.OnlineLocationID, &p.OnlineStockQty, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	p.Policy = domain.StockPolicy(policy)
	return &p, nil
}

// SaveProduct inserts or updates a product. The online counter is only
// written on insert; afterwards ApplyOnlineStock owns it.
func (t *mysqlTx) SaveProduct(ctx context.Context, p domain.Product) error {
	var exists int
	err := t.tx.QueryRowContext(ctx,
		`SELECT 1 FROM products WHERE tenant_id = ? AND id = ?`, p.TenantID, p.ID).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("query product: %w", err)
	}

	if exists == 1 {
		_, err = t.tx.ExecContext(ctx, `
			UPDATE products
			SET name = ?, unit_price = ?, unit_cost = ?, active = ?, policy = ?,
				online_location_id = ?, updated_at = ?
			WHERE tenant_id = ? AND id = ?`,
			p.Name, p.UnitPrice, p.UnitCost, p.Active, string(p.Policy),
			p.OnlineLocationID, p.UpdatedAt.UTC(), p.TenantID, p.ID,
		)
		if err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		return nil
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO products
			(tenant_id, id, sku, name, unit_price, unit_cost, active, policy,
			 online_location_id, online_stock_qty, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.TenantID, p.ID, p.SKU, p.Name, p.UnitPrice, p.UnitCost, p.Active, string(p.Policy),
		p.OnlineLocationID, p.OnlineStockQty, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return conflictOr(err, "insert product %s", p.SKU)
	}
	return nil
}

func (t *mysqlTx) ApplyOnlineStock(ctx context.Context, tenantID, productID string, delta int64) (int64, error) {
	var cur int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT online_stock_qty FROM products WHERE tenant_id = ? AND id = ? FOR UPDATE`,
		tenantID, productID).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFound("product", productID)
	}
	if err != nil {
		return 0, fmt.Errorf("query online stock: %w", err)
	}
	next, err := domain.AddQuantity(cur, delta)
	if err != nil {
		return 0, err
	}

	_, err = t.tx.ExecContext(ctx, `
		UPDATE products SET online_stock_qty = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		next, time.Now().UTC(), tenantID, productID,
	)
	if err != nil {
		return 0, fmt.Errorf("apply online stock: %w", err)
	}
	return next, nil
}

func (t *mysqlTx) Location(ctx context.Context, tenantID, id string) (*domain.Location, error) {
	var l domain.Location
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, code, created_at
		FROM locations WHERE tenant_id = ? AND id = ?`, tenantID, id,
	).Scan(&l.ID, &l.TenantID, &l.Name, &l.Code, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query location: %w", err)
	}
	return &l, nil
}

func (t *mysqlTx) SaveLocation(ctx context.Context, l domain.Location) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO locations (tenant_id, id, name, code, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), code = VALUES(code)`,
		l.TenantID, l.ID, l.Name, l.Code, l.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save location: %w", err)
	}
	return nil
}

func (t *mysqlTx) CreateSale(ctx context.Context, s domain.Sale) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (tenant_id, id, location_id, offline_id, total, currency, cashier_actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.TenantID, s.ID, s.LocationID, nullString(s.OfflineID), s.Total, s.Currency,
		s.CashierActorID, s.CreatedAt.UTC(),
	)
	if err != nil {
		return conflictOr(err, "insert sale")
	}

	for i, it := range s.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_items (tenant_id, sale_id, line_no, product_id, quantity, unit_price, discount)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.TenantID, s.ID, i, it.ProductID, it.Quantity, it.UnitPrice, it.Discount,
		); err != nil {
			return fmt.Errorf("insert sale item: %w", err)
		}
	}

	for i, p := range s.Payments {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_payments (tenant_id, sale_id, line_no, method, amount, reference)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.TenantID, s.ID, i, p.Method, p.Amount, p.Reference,
		); err != nil {
			return fmt.Errorf("insert sale payment: %w", err)
		}
	}
	return nil
}

func (t *mysqlTx) Sale(ctx context.Context, tenantID, id string) (*domain.Sale, error) {
	var (
		s       domain.Sale
		offline sql.NullString
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, location_id, offline_id, total, currency, cashier_actor_id, created_at
		FROM sales WHERE tenant_id = ? AND id = ?`, tenantID, id,
	).Scan(&s.ID, &s.TenantID, &s.LocationID, &offline, &s.Total, &s.Currency, &s.CashierActorID, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sale: %w", err)
	}
	s.OfflineID = offline.String

	rows, err := t.tx.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, discount FROM sale_items
		WHERE tenant_id = ? AND sale_id = ? ORDER BY line_no`, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("query sale items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.SaleLineItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice, &it.Discount); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		s.Items = append(s.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prow, err := t.tx.QueryContext(ctx, `
		SELECT method, amount, reference FROM sale_payments
		WHERE tenant_id = ? AND sale_id = ? ORDER BY line_no`, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("query sale payments: %w", err)
	}
	defer prow.Close()
	for prow.Next() {
		var p domain.Payment
		if err := prow.Scan(&p.Method, &p.Amount, &p.Reference); err != nil {
			return nil, fmt.Errorf("scan sale payment: %w", err)
		}
		s.Payments = append(s.Payments, p)
	}
	return &s, prow.Err()
}

func (t *mysqlTx) SaleByOfflineID(ctx context.Context, tenantID, offlineID string) (*domain.Sale, error) {
	var id string
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM sales WHERE tenant_id = ? AND offline_id = ?`, tenantID, offlineID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sale by offline id: %w", err)
	}
	return t.Sale(ctx, tenantID, id)
}

func (t *mysqlTx) CreateTransfer(ctx context.Context, tr domain.Transfer) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transfers
			(tenant_id, id, source_location_id, dest_location_id, status, reference, created_by, created_at, sent_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.TenantID, tr.ID, tr.SourceLocationID, tr.DestLocationID, string(tr.Status), tr.Reference,
		tr.CreatedBy, tr.CreatedAt.UTC(), nullTime(tr.SentAt), nullTime(tr.ReceivedAt),
	)
	if err != nil {
		return conflictOr(err, "insert transfer")
	}
	for i, it := range tr.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO transfer_items (tenant_id, transfer_id, line_no, product_id, quantity)
			VALUES (?, ?, ?, ?, ?)`,
			tr.TenantID, tr.ID, i, it.ProductID, it.Quantity,
		); err != nil {
			return fmt.Errorf("insert transfer item: %w", err)
		}
	}
	return nil
}

func (t *mysqlTx) Transfer(ctx context.Context, tenantID, id string) (*domain.Transfer, error) {
	var (
		tr       domain.Transfer
		status   string
		sent     sql.NullTime
		received sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, source_location_id, dest_location_id, status, reference, created_by,
			created_at, sent_at, received_at
		FROM transfers WHERE tenant_id = ? AND id = ? FOR UPDATE`, tenantID, id,
	).Scan(&tr.ID, &tr.TenantID, &tr.SourceLocationID, &tr.DestLocationID, &status, &tr.Reference,
		&tr.CreatedBy, &tr.CreatedAt, &sent, &received)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query transfer: %w", err)
	}
	tr.Status = domain.TransferStatus(status)
	tr.SentAt = timePtr(sent)
	tr.ReceivedAt = timePtr(received)

	rows, err := t.tx.QueryContext(ctx, `
		SELECT product_id, quantity FROM transfer_items
		WHERE tenant_id = ? AND transfer_id = ? ORDER BY line_no`, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("query transfer items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.TransferLineItem
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan transfer item: %w", err)
		}
		tr.Items = append(tr.Items, it)
	}
	return &tr, rows.Err()
}

func (t *mysqlTx) UpdateTransferStatus(ctx context.Context, tr domain.Transfer, from domain.TransferStatus) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE transfers SET status = ?, sent_at = ?, received_at = ?
		WHERE tenant_id = ? AND id = ? AND status = ?`,
		string(tr.Status), nullTime(tr.SentAt), nullTime(tr.ReceivedAt), tr.TenantID, tr.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("transfer %s: %w", tr.ID, port.ErrConflict)
	}
	return nil
}

func (t *mysqlTx) CreateOrder(ctx context.Context, o domain.OnlineOrder) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO online_orders (tenant_id, id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		o.TenantID, o.ID, string(o.Status), o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	if err != nil {
		return conflictOr(err, "insert order")
	}
	for i, it := range o.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO online_order_items (tenant_id, order_id, line_no, product_id, quantity, policy, location_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.TenantID, o.ID, i, it.ProductID, it.Quantity, string(it.Policy), it.LocationID,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *mysqlTx) Order(ctx context.Context, tenantID, id string) (*domain.OnlineOrder, error) {
	var (
		o      domain.OnlineOrder
		status string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, status, created_at, updated_at
		FROM online_orders WHERE tenant_id = ? AND id = ? FOR UPDATE`, tenantID, id,
	).Scan(&o.ID, &o.TenantID, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	o.Status = domain.OrderStatus(status)

	rows, err := t.tx.QueryContext(ctx, `
		SELECT product_id, quantity, policy, location_id FROM online_order_items
		WHERE tenant_id = ? AND order_id = ? ORDER BY line_no`, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it     domain.OrderLineItem
			policy string
		)
		if err := rows.Scan(&it.ProductID, &it.Quantity, &policy, &it.LocationID); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.Policy = domain.StockPolicy(policy)
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (t *mysqlTx) UpdateOrderStatus(ctx context.Context, o domain.OnlineOrder, from domain.OrderStatus) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE online_orders SET status = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND status = ?`,
		string(o.Status), o.UpdatedAt.UTC(), o.TenantID, o.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("order %s: %w", o.ID, port.ErrConflict)
	}
	return nil
}

func (t *mysqlTx) CreateInventorySession(ctx context.Context, s domain.InventorySession) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_sessions (tenant_id, id, location_id, total_value_delta, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.TenantID, s.ID, s.LocationID, s.TotalValueDelta, s.ActorID, s.CreatedAt.UTC(),
	)
	if err != nil {
		return conflictOr(err, "insert inventory session")
	}
	for i, l := range s.Lines {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO inventory_session_lines
				(tenant_id, session_id, line_no, product_id, expected, counted, delta, value_delta)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.TenantID, s.ID, i, l.ProductID, l.Expected, l.Counted, l.Delta, l.ValueDelta,
		); err != nil {
			return fmt.Errorf("insert inventory session line: %w", err)
		}
	}
	return nil
}

func (t *mysqlTx) InventorySession(ctx context.Context, tenantID, id string) (*domain.InventorySession, error) {
	var s domain.InventorySession
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, location_id, total_value_delta, actor_id, created_at
		FROM inventory_sessions WHERE tenant_id = ? AND id = ?`, tenantID, id,
	).Scan(&s.ID, &s.TenantID, &s.LocationID, &s.TotalValueDelta, &s.ActorID, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory session: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT product_id, expected, counted, delta, value_delta FROM inventory_session_lines
		WHERE tenant_id = ? AND session_id = ? ORDER BY line_no`, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("query inventory session lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l domain.InventorySessionLine
		if err := rows.Scan(&l.ProductID, &l.Expected, &l.Counted, &l.Delta, &l.ValueDelta); err != nil {
			return nil, fmt.Errorf("scan inventory session line: %w", err)
		}
		s.Lines = append(s.Lines, l)
	}
	return &s, rows.Err()
}
