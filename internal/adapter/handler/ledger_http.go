package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/retail-ledger/internal/core/domain"
)

type LocationHTTP struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductHTTP struct {
	ID               string          `json:"id"`
	SKU              string          `json:"sku"`
	Name             string          `json:"name"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	Active           bool            `json:"active"`
	Policy           string          `json:"policy"`
	OnlineLocationID string          `json:"online_location_id,omitempty"`
	OnlineStockQty   int64           `json:"online_stock_qty"`
}

type ProductUpdateHTTP struct {
	Name      *string          `json:"name,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
}

type PolicyHTTPRequest struct {
	Policy           string `json:"policy"`
	OnlineLocationID string `json:"online_location_id,omitempty"`
}

type OnlineStockHTTPRequest struct {
	Quantity int64 `json:"quantity"`
}

type ItemHTTP struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type EntryHTTPRequest struct {
	LocationID string     `json:"location_id"`
	Items      []ItemHTTP `json:"items"`
	Reference  string     `json:"reference,omitempty"`
}

type AdjustmentHTTPRequest struct {
	LocationID string `json:"location_id"`
	ProductID  string `json:"product_id"`
	Delta      int64  `json:"delta"`
	Note       string `json:"note,omitempty"`
}

type CountHTTP struct {
	ProductID string `json:"product_id"`
	Counted   int64  `json:"counted"`
}

type SessionHTTPRequest struct {
	LocationID string      `json:"location_id"`
	Counts     []CountHTTP `json:"counts"`
}

type SessionLineHTTP struct {
	ProductID  string          `json:"product_id"`
	Expected   int64           `json:"expected"`
	Counted    int64           `json:"counted"`
	Delta      int64           `json:"delta"`
	ValueDelta decimal.Decimal `json:"value_delta"`
}

type SessionHTTPResponse struct {
	ID              string            `json:"id"`
	LocationID      string            `json:"location_id"`
	Lines           []SessionLineHTTP `json:"lines"`
	TotalValueDelta decimal.Decimal   `json:"total_value_delta"`
	CreatedAt       time.Time         `json:"created_at"`
}

type TransferHTTPRequest struct {
	SourceLocationID string     `json:"source_location_id"`
	DestLocationID   string     `json:"dest_location_id"`
	Items            []ItemHTTP `json:"items"`
	Reference        string     `json:"reference,omitempty"`
}

type TransferHTTPResponse struct {
	ID               string     `json:"id"`
	SourceLocationID string     `json:"source_location_id"`
	DestLocationID   string     `json:"dest_location_id"`
	Items            []ItemHTTP `json:"items"`
	Status           string     `json:"status"`
	Reference        string     `json:"reference,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	ReceivedAt       *time.Time `json:"received_at,omitempty"`
}

type OrderHTTPRequest struct {
	OrderID string     `json:"order_id"`
	Items   []ItemHTTP `json:"items"`
}

type OrderLineHTTP struct {
	ProductID  string `json:"product_id"`
	Quantity   int64  `json:"quantity"`
	Policy     string `json:"policy"`
	LocationID string `json:"location_id,omitempty"`
}

type OrderHTTPResponse struct {
	ID        string          `json:"id"`
	Items     []OrderLineHTTP `json:"items"`
	Status    string          `json:"status"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (h *HTTPHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationHTTP
	if !decode(w, r, &req) {
		return
	}
	l, err := h.svc.Catalog.CreateLocation(r.Context(), domain.Location{ID: req.ID, Name: req.Name, Code: req.Code})
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLocation(l))
}

func (h *HTTPHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.Catalog.GetLocation(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLocation(l))
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductHTTP
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Catalog.CreateProduct(r.Context(), domain.Product{
		ID:               req.ID,
		SKU:              req.SKU,
		Name:             req.Name,
		UnitPrice:        req.UnitPrice,
		UnitCost:         req.UnitCost,
		Policy:           domain.StockPolicy(req.Policy),
		OnlineLocationID: req.OnlineLocationID,
		OnlineStockQty:   req.OnlineStockQty,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newProduct(p))
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Catalog.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProduct(p))
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductUpdateHTTP
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Catalog.UpdateProduct(r.Context(), r.PathValue("id"), domain.ProductUpdate{
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		UnitCost:  req.UnitCost,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProduct(p))
}

func (h *HTTPHandler) DeactivateProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Catalog.DeactivateProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProduct(p))
}

func (h *HTTPHandler) SetEcommercePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Catalog.SetEcommercePolicy(r.Context(), r.PathValue("id"),
		domain.StockPolicy(req.Policy), req.OnlineLocationID)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProduct(p))
}

func (h *HTTPHandler) SetOnlineStock(w http.ResponseWriter, r *http.Request) {
	var req OnlineStockHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Catalog.SetOnlineStock(r.Context(), r.PathValue("id"), req.Quantity)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProduct(p))
}

func (h *HTTPHandler) CreateStockEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	entry, err := h.svc.Stock.CreateStockEntry(r.Context(), req.LocationID, toItems(req.Items), req.Reference)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newMovements(entry.Movements))
}

func (h *HTTPHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	qty, err := h.svc.Stock.AdjustStock(r.Context(), req.LocationID, req.ProductID, req.Delta, req.Note)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"location_id": req.LocationID,
		"product_id":  req.ProductID,
		"quantity":    qty,
	})
}

func (h *HTTPHandler) CreateInventorySession(w http.ResponseWriter, r *http.Request) {
	var req SessionHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	counts := make([]domain.InventoryCount, 0, len(req.Counts))
	for _, c := range req.Counts {
		counts = append(counts, domain.InventoryCount{ProductID: c.ProductID, Counted: c.Counted})
	}
	session, err := h.svc.Stock.CreateInventorySession(r.Context(), req.LocationID, counts)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSession(session))
}

func (h *HTTPHandler) GetInventorySession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Stock.GetInventorySession(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSession(session))
}

func (h *HTTPHandler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := h.svc.Stock.CheckConsistency(r.Context(), q.Get("location_id"), q.Get("product_id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cached":       c.Cached,
		"movement_sum": c.MovementSum,
		"consistent":   c.Consistent(),
	})
}

func (h *HTTPHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.svc.Transfers.CreateTransfer(r.Context(), req.SourceLocationID, req.DestLocationID,
		toItems(req.Items), req.Reference)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTransfer(t))
}

func (h *HTTPHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Transfers.GetTransfer(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransfer(t))
}

func (h *HTTPHandler) SendTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Transfers.Send(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransfer(t))
}

func (h *HTTPHandler) ReceiveTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Transfers.Receive(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransfer(t))
}

func (h *HTTPHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req OrderHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.svc.Reservations.Reserve(r.Context(), domain.OrderRequest{OrderID: req.OrderID, Items: toItems(req.Items)})
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrder(o))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Reservations.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrder(o))
}

// OrderAction handles ship, deliver, cancel and return.
func (h *HTTPHandler) OrderAction(w http.ResponseWriter, r *http.Request) {
	ctx, id := r.Context(), r.PathValue("id")

	var (
		o   *domain.OnlineOrder
		err error
	)
	switch r.PathValue("action") {
	case "ship":
		o, err = h.svc.Reservations.Ship(ctx, id)
	case "deliver":
		o, err = h.svc.Reservations.Deliver(ctx, id)
	case "cancel":
		o, err = h.svc.Reservations.Cancel(ctx, id)
	case "return":
		o, err = h.svc.Reservations.Return(ctx, id)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrder(o))
}

func toItems(in []ItemHTTP) []domain.StockItem {
	out := make([]domain.StockItem, 0, len(in))
	for _, it := range in {
		out = append(out, domain.StockItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func newLocation(l *domain.Location) LocationHTTP {
	return LocationHTTP{ID: l.ID, Name: l.Name, Code: l.Code, CreatedAt: l.CreatedAt}
}

func newProduct(p *domain.Product) ProductHTTP {
	return ProductHTTP{
		ID:               p.ID,
		SKU:              p.SKU,
		Name:             p.Name,
		UnitPrice:        p.UnitPrice,
		UnitCost:         p.UnitCost,
		Active:           p.Active,
		Policy:           string(p.Policy),
		OnlineLocationID: p.OnlineLocationID,
		OnlineStockQty:   p.OnlineStockQty,
	}
}

func newSession(s *domain.InventorySession) SessionHTTPResponse {
	out := SessionHTTPResponse{
		ID:              s.ID,
		LocationID:      s.LocationID,
		TotalValueDelta: s.TotalValueDelta,
		CreatedAt:       s.CreatedAt,
	}
	for _, l := range s.Lines {
		out.Lines = append(out.Lines, SessionLineHTTP{
			ProductID:  l.ProductID,
			Expected:   l.Expected,
			Counted:    l.Counted,
			Delta:      l.Delta,
			ValueDelta: l.ValueDelta,
		})
	}
	return out
}

func newTransfer(t *domain.Transfer) TransferHTTPResponse {
	out := TransferHTTPResponse{
		ID:               t.ID,
		SourceLocationID: t.SourceLocationID,
		DestLocationID:   t.DestLocationID,
		Status:           string(t.Status),
		Reference:        t.Reference,
		CreatedAt:        t.CreatedAt,
		SentAt:           t.SentAt,
		ReceivedAt:       t.ReceivedAt,
	}
	for _, it := range t.Items {
		out.Items = append(out.Items, ItemHTTP{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func newOrder(o *domain.OnlineOrder) OrderHTTPResponse {
	out := OrderHTTPResponse{ID: o.ID, Status: string(o.Status), UpdatedAt: o.UpdatedAt}
	for _, l := range o.Items {
		out.Items = append(out.Items, OrderLineHTTP{
			ProductID:  l.ProductID,
			Quantity:   l.Quantity,
			Policy:     string(l.Policy),
			LocationID: l.LocationID,
		})
	}
	return out
}
