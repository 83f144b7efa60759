package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/port"
)

// MemoryAdapter is the development backend. It is safe for concurrent use in
// one process and keeps nothing across restarts.
type MemoryAdapter struct {
	locker port.KeyLocker

	mu        sync.RWMutex
	levels    map[domain.StockKey]int64
	movements []domain.Movement
	products  map[string]domain.Product
	skus      map[string]string
	locations map[string]domain.Location
	sales     map[string]domain.Sale
	offline   map[string]string
	transfers map[string]domain.Transfer
	orders    map[string]domain.OnlineOrder
	sessions  map[string]domain.InventorySession

	faultMu sync.RWMutex
	fault   func(op string) error
}

func NewMemoryAdapter(locker port.KeyLocker) *MemoryAdapter {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &MemoryAdapter{
		locker:    locker,
		levels:    make(map[domain.StockKey]int64),
		products:  make(map[string]domain.Product),
		skus:      make(map[string]string),
		locations: make(map[string]domain.Location),
		sales:     make(map[string]domain.Sale),
		offline:   make(map[string]string),
		transfers: make(map[string]domain.Transfer),
		orders:    make(map[string]domain.OnlineOrder),
		sessions:  make(map[string]domain.InventorySession),
	}
}

// InjectFault makes the named operation ("apply", "record", "commit") fail
// whenever fn returns an error. Pass nil to clear.
func (m *MemoryAdapter) InjectFault(fn func(op string) error) {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	m.fault = fn
}

func (m *MemoryAdapter) check(op string) error {
	m.faultMu.RLock()
	defer m.faultMu.RUnlock()
	if m.fault == nil {
		return nil
	}
	return m.fault(op)
}

func (m *MemoryAdapter) Do(ctx context.Context, keys []domain.StockKey, fn func(tx port.Tx) error) error {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}

	unlock, err := m.locker.Lock(ctx, names)
	if err != nil {
		return fmt.Errorf("lock keys: %w", err)
	}
	defer unlock()

	tx := newMemoryTx(m)
	if err := fn(tx); err != nil {
		return err
	}
	return m.commit(tx)
}

func (m *MemoryAdapter) commit(tx *memoryTx) error {
	if err := m.check("commit"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate every staged write before touching committed state.
	for _, p := range tx.products {
		if id, ok := m.skus[scoped(p.TenantID, p.SKU)]; ok && id != p.ID {
			return fmt.Errorf("sku %s: %w", p.SKU, port.ErrConflict)
		}
	}
	for _, s := range tx.sales {
		if _, ok := m.sales[scoped(s.TenantID, s.ID)]; ok {
			return fmt.Errorf("sale %s: %w", s.ID, port.ErrConflict)
		}
		if s.OfflineID != "" {
			if _, ok := m.offline[scoped(s.TenantID, s.OfflineID)]; ok {
				return fmt.Errorf("offline id %s: %w", s.OfflineID, port.ErrConflict)
			}
		}
	}
	for k, st := range tx.transfers {
		cur, ok := m.transfers[k]
		if st.from == nil && ok {
			return fmt.Errorf("transfer %s: %w", st.t.ID, port.ErrConflict)
		}
		if st.from != nil && (!ok || cur.Status != *st.from) {
			return fmt.Errorf("transfer %s: %w", st.t.ID, port.ErrConflict)
		}
	}
	for k, st := range tx.orders {
		cur, ok := m.orders[k]
		if st.from == nil && ok {
			return fmt.Errorf("order %s: %w", st.o.ID, port.ErrConflict)
		}
		if st.from != nil && (!ok || cur.Status != *st.from) {
			return fmt.Errorf("order %s: %w", st.o.ID, port.ErrConflict)
		}
	}

	for k, d := range tx.deltas {
		m.levels[k] += d
	}
	m.movements = append(m.movements, tx.movements...)
	for k, p := range tx.products {
		if cur, ok := m.products[k]; ok {
			p.OnlineStockQty = cur.OnlineStockQty
			delete(m.skus, scoped(cur.TenantID, cur.SKU))
		}
		m.products[k] = p
		m.skus[scoped(p.TenantID, p.SKU)] = p.ID
	}
	for k, d := range tx.online {
		p := m.products[k]
		p.OnlineStockQty += d
		m.products[k] = p
	}
	for k, l := range tx.locations {
		m.locations[k] = l
	}
	for _, s := range tx.sales {
		m.sales[scoped(s.TenantID, s.ID)] = s
		if s.OfflineID != "" {
			m.offline[scoped(s.TenantID, s.OfflineID)] = s.ID
		}
	}
	for k, st := range tx.transfers {
		m.transfers[k] = st.t
	}
	for k, st := range tx.orders {
		m.orders[k] = st.o
	}
	for _, s := range tx.sessions {
		m.sessions[scoped(s.TenantID, s.ID)] = s
	}
	return nil
}

type stagedTransfer struct {
	t    domain.Transfer
	from *domain.TransferStatus
}

type stagedOrder struct {
	o    domain.OnlineOrder
	from *domain.OrderStatus
}

// memoryTx stages writes on top of the committed maps. Stock is staged as
// deltas so concurrent scopes on other keys never overwrite each other.
type memoryTx struct {
	m         *MemoryAdapter
	deltas    map[domain.StockKey]int64
	movements []domain.Movement
	products  map[string]domain.Product
	online    map[string]int64
	locations map[string]domain.Location
	sales     []domain.Sale
	transfers map[string]stagedTransfer
	orders    map[string]stagedOrder
	sessions  []domain.InventorySession
}

func newMemoryTx(m *MemoryAdapter) *memoryTx {
	return &memoryTx{
		m:         m,
		deltas:    make(map[domain.StockKey]int64),
		products:  make(map[string]domain.Product),
		online:    make(map[string]int64),
		locations: make(map[string]domain.Location),
		transfers: make(map[string]stagedTransfer),
		orders:    make(map[string]stagedOrder),
	}
}

func scoped(tenantID, id string) string {
	return tenantID + "/" + id
}

func (tx *memoryTx) Get(_ context.Context, key domain.StockKey) (int64, error) {
	tx.m.mu.RLock()
	committed := tx.m.levels[key]
	tx.m.mu.RUnlock()
	return committed + tx.deltas[key], nil
}

func (tx *memoryTx) Apply(ctx context.Context, key domain.StockKey, delta int64) (int64, error) {
	if err := tx.m.check("apply"); err != nil {
		return 0, err
	}
	cur, _ := tx.Get(ctx, key)
	next, err := domain.AddQuantity(cur, delta)
	if err != nil {
		return 0, err
	}
	tx.deltas[key] += delta
	return next, nil
}

func (tx *memoryTx) Check(ctx context.Context, key domain.StockKey) (domain.Consistency, error) {
	cached, _ := tx.Get(ctx, key)
	c := domain.Consistency{Key: key, Cached: cached}

	tx.m.mu.RLock()
	for _, mv := range tx.m.movements {
		if mv.Key() == key {
			c.MovementSum += mv.Delta
		}
	}
	tx.m.mu.RUnlock()
	for _, mv := range tx.movements {
		if mv.Key() == key {
			c.MovementSum += mv.Delta
		}
	}
	return c, nil
}

func (tx *memoryTx) Record(_ context.Context, mv domain.Movement) error {
	if err := tx.m.check("record"); err != nil {
		return err
	}
	tx.movements = append(tx.movements, mv)
	return nil
}

func (tx *memoryTx) Query(_ context.Context, tenantID, productID string, limit int) ([]domain.Movement, error) {
	match := func(mv domain.Movement) bool {
		return mv.TenantID == tenantID && mv.ProductID == productID
	}

	var out []domain.Movement
	for i := len(tx.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if match(tx.movements[i]) {
			out = append(out, tx.movements[i])
		}
	}

	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	for i := len(tx.m.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if match(tx.m.movements[i]) {
			out = append(out, tx.m.movements[i])
		}
	}
	return out, nil
}

func (tx *memoryTx) Product(_ context.Context, tenantID, id string) (*domain.Product, error) {
	k := scoped(tenantID, id)

	tx.m.mu.RLock()
	cur, committed := tx.m.products[k]
	tx.m.mu.RUnlock()

	p, staged := tx.products[k]
	switch {
	case staged && committed:
		p.OnlineStockQty = cur.OnlineStockQty
	case committed:
		p = cur
	case !staged:
		return nil, nil
	}
	p.OnlineStockQty += tx.online[k]
	return &p, nil
}

func (tx *memoryTx) SaveProduct(_ context.Context, p domain.Product) error {
	sku := scoped(p.TenantID, p.SKU)
	for k, staged := range tx.products {
		if k != scoped(p.TenantID, p.ID) && scoped(staged.TenantID, staged.SKU) == sku {
			return fmt.Errorf("sku %s: %w", p.SKU, port.ErrConflict)
		}
	}

	tx.m.mu.RLock()
	id, taken := tx.m.skus[sku]
	tx.m.mu.RUnlock()
	if taken && id != p.ID {
		return fmt.Errorf("sku %s: %w", p.SKU, port.ErrConflict)
	}

	tx.products[scoped(p.TenantID, p.ID)] = p
	return nil
}

func (tx *memoryTx) ApplyOnlineStock(ctx context.Context, tenantID, productID string, delta int64) (int64, error) {
	if err := tx.m.check("apply"); err != nil {
		return 0, err
	}
	p, err := tx.Product(ctx, tenantID, productID)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, domain.NotFound("product", productID)
	}
	next, err := domain.AddQuantity(p.OnlineStockQty, delta)
	if err != nil {
		return 0, err
	}
	tx.online[scoped(tenantID, productID)] += delta
	return next, nil
}

func (tx *memoryTx) Location(_ context.Context, tenantID, id string) (*domain.Location, error) {
	k := scoped(tenantID, id)
	if l, ok := tx.locations[k]; ok {
		return &l, nil
	}

	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	if l, ok := tx.m.locations[k]; ok {
		return &l, nil
	}
	return nil, nil
}

func (tx *memoryTx) SaveLocation(_ context.Context, l domain.Location) error {
	tx.locations[scoped(l.TenantID, l.ID)] = l
	return nil
}

func (tx *memoryTx) CreateSale(_ context.Context, s domain.Sale) error {
	for _, staged := range tx.sales {
		if s.OfflineID != "" && staged.OfflineID == s.OfflineID {
			return fmt.Errorf("offline id %s: %w", s.OfflineID, port.ErrConflict)
		}
	}
	if s.OfflineID != "" {
		tx.m.mu.RLock()
		_, taken := tx.m.offline[scoped(s.TenantID, s.OfflineID)]
		tx.m.mu.RUnlock()
		if taken {
			return fmt.Errorf("offline id %s: %w", s.OfflineID, port.ErrConflict)
		}
	}
	tx.sales = append(tx.sales, cloneSale(s))
	return nil
}

func (tx *memoryTx) Sale(_ context.Context, tenantID, id string) (*domain.Sale, error) {
	for _, s := range tx.sales {
		if s.TenantID == tenantID && s.ID == id {
			out := cloneSale(s)
			return &out, nil
		}
	}

	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	if s, ok := tx.m.sales[scoped(tenantID, id)]; ok {
		out := cloneSale(s)
		return &out, nil
	}
	return nil, nil
}

func (tx *memoryTx) SaleByOfflineID(ctx context.Context, tenantID, offlineID string) (*domain.Sale, error) {
	for _, s := range tx.sales {
		if s.TenantID == tenantID && s.OfflineID == offlineID {
			out := cloneSale(s)
			return &out, nil
		}
	}

	tx.m.mu.RLock()
	id, ok := tx.m.offline[scoped(tenantID, offlineID)]
	tx.m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return tx.Sale(ctx, tenantID, id)
}

func (tx *memoryTx) CreateTransfer(ctx context.Context, t domain.Transfer) error {
	existing, _ := tx.Transfer(ctx, t.TenantID, t.ID)
	if existing != nil {
		return fmt.Errorf("transfer %s: %w", t.ID, port.ErrConflict)
	}
	tx.transfers[scoped(t.TenantID, t.ID)] = stagedTransfer{t: cloneTransfer(t)}
	return nil
}

func (tx *memoryTx) Transfer(_ context.Context, tenantID, id string) (*domain.Transfer, error) {
	k := scoped(tenantID, id)
	if st, ok := tx.transfers[k]; ok {
		out := cloneTransfer(st.t)
		return &out, nil
	}

	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	if t, ok := tx.m.transfers[k]; ok {
		out := cloneTransfer(t)
		return &out, nil
	}
	return nil, nil
}

func (tx *memoryTx) UpdateTransferStatus(ctx context.Context, t domain.Transfer, from domain.TransferStatus) error {
	cur, _ := tx.Transfer(ctx, t.TenantID, t.ID)
	if cur == nil {
		return domain.NotFound("transfer", t.ID)
	}
	if cur.Status != from {
		return fmt.Errorf("transfer %s: %w", t.ID, port.ErrConflict)
	}

	k := scoped(t.TenantID, t.ID)
	st := stagedTransfer{t: cloneTransfer(t)}
	if prev, ok := tx.transfers[k]; ok {
		st.from = prev.from
	} else {
		st.from = &from
	}
	tx.transfers[k] = st
	return nil
}

func (tx *memoryTx) CreateOrder(ctx context.Context, o domain.OnlineOrder) error {
	existing, _ := tx.Order(ctx, o.TenantID, o.ID)
	if existing != nil {
		return fmt.Errorf("order %s: %w", o.ID, port.ErrConflict)
	}
	tx.orders[scoped(o.TenantID, o.ID)] = stagedOrder{o: cloneOrder(o)}
	return nil
}

func (tx *memoryTx) Order(_ context.Context, tenantID, id string) (*domain.OnlineOrder, error) {
	k := scoped(tenantID, id)
	if st, ok := tx.orders[k]; ok {
		out := cloneOrder(st.o)
		return &out, nil
	}

	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	if o, ok := tx.m.orders[k]; ok {
		out := cloneOrder(o)
		return &out, nil
	}
	return nil, nil
}

func (tx *memoryTx) UpdateOrderStatus(ctx context.Context, o domain.OnlineOrder, from domain.OrderStatus) error {
	cur, _ := tx.Order(ctx, o.TenantID, o.ID)
	if cur == nil {
		return domain.NotFound("order", o.ID)
	}
	if cur.Status != from {
		return fmt.Errorf("order %s: %w", o.ID, port.ErrConflict)
	}

	k := scoped(o.TenantID, o.ID)
	st := stagedOrder{o: cloneOrder(o)}
	if prev, ok := tx.orders[k]; ok {
		st.from = prev.from
	} else {
		st.from = &from
	}
	tx.orders[k] = st
	return nil
}

func (tx *memoryTx) CreateInventorySession(_ context.Context, s domain.InventorySession) error {
	s.Lines = append([]domain.InventorySessionLine(nil), s.Lines...)
	tx.sessions = append(tx.sessions, s)
	return nil
}

func (tx *memoryTx) InventorySession(_ context.Context, tenantID, id string) (*domain.InventorySession, error) {
	for _, s := range tx.sessions {
		if s.TenantID == tenantID && s.ID == id {
			return &s, nil
		}
	}

	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	if s, ok := tx.m.sessions[scoped(tenantID, id)]; ok {
		s.Lines = append([]domain.InventorySessionLine(nil), s.Lines...)
		return &s, nil
	}
	return nil, nil
}

func cloneSale(s domain.Sale) domain.Sale {
	s.Items = append([]domain.SaleLineItem(nil), s.Items...)
	s.Payments = append([]domain.Payment(nil), s.Payments...)
	return s
}

func cloneTransfer(t domain.Transfer) domain.Transfer {
	t.Items = append([]domain.TransferLineItem(nil), t.Items...)
	return t
}

func cloneOrder(o domain.OnlineOrder) domain.OnlineOrder {
	o.Items = append([]domain.OrderLineItem(nil), o.Items...)
	return o
}
