package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/core/service"
	"github.com/rl1809/retail-ledger/internal/port"
)

// Headers carrying the identity resolved by the gateway.
const (
	HeaderTenant = "X-Tenant-ID"
	HeaderActor  = "X-Actor-ID"
	HeaderRole   = "X-Role"
)

// Services groups the ledger operations served over HTTP.
type Services struct {
	Catalog      *service.CatalogService
	Stock        *service.StockService
	Sales        *service.SaleService
	Transfers    *service.TransferService
	Reservations *service.ReservationService
	// Snapshots serves storefront reads; nil falls back to the ledger.
	Snapshots port.StockSnapshot
}

type HTTPHandler struct {
	svc Services
}

type SaleHTTPLine struct {
	ProductID string           `json:"product_id"`
	Quantity  int64            `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Discount  decimal.Decimal  `json:"discount"`
}

type PaymentHTTP struct {
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
}

type SaleHTTPRequest struct {
	LocationID    string         `json:"location_id"`
	Items         []SaleHTTPLine `json:"items"`
	Payments      []PaymentHTTP  `json:"payments,omitempty"`
	PaymentMethod string         `json:"payment_method,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	OfflineID     string         `json:"offline_id,omitempty"`
}

type SaleHTTPResponse struct {
	ID         string          `json:"id"`
	LocationID string          `json:"location_id"`
	Items      []SaleHTTPLine  `json:"items"`
	Payments   []PaymentHTTP   `json:"payments,omitempty"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	OfflineID  string          `json:"offline_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type MovementHTTP struct {
	ID           string    `json:"id"`
	LocationID   string    `json:"location_id"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balance_after"`
	Reason       string    `json:"reason"`
	ActorID      string    `json:"actor_id,omitempty"`
	Reference    string    `json:"reference,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ErrorHTTPResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(svc Services) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

// Routes registers every endpoint on mux. Ledger routes resolve the actor
// from gateway headers.
func (h *HTTPHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)

	ledger := map[string]http.HandlerFunc{
		"POST /api/locations":                 h.CreateLocation,
		"GET /api/locations/{id}":             h.GetLocation,
		"POST /api/products":                  h.CreateProduct,
		"GET /api/products/{id}":              h.GetProduct,
		"PATCH /api/products/{id}":            h.UpdateProduct,
		"POST /api/products/{id}/deactivate":  h.DeactivateProduct,
		"PUT /api/products/{id}/policy":       h.SetEcommercePolicy,
		"PUT /api/products/{id}/online-stock": h.SetOnlineStock,
		"POST /api/entries":                   h.CreateStockEntry,
		"POST /api/adjustments":               h.AdjustStock,
		"POST /api/inventory-sessions":        h.CreateInventorySession,
		"GET /api/inventory-sessions/{id}":    h.GetInventorySession,
		"GET /api/stock":                      h.GetStock,
		"GET /api/stock/snapshot":             h.StockSnapshot,
		"GET /api/movements":                  h.History,
		"GET /api/consistency":                h.CheckConsistency,
		"POST /api/sales":                     h.CreateSale,
		"GET /api/sales/{id}":                 h.GetSale,
		"POST /api/transfers":                 h.CreateTransfer,
		"GET /api/transfers/{id}":             h.GetTransfer,
		"POST /api/transfers/{id}/send":       h.SendTransfer,
		"POST /api/transfers/{id}/receive":    h.ReceiveTransfer,
		"POST /api/orders":                    h.Reserve,
		"GET /api/orders/{id}":                h.GetOrder,
		"POST /api/orders/{id}/{action}":      h.OrderAction,
	}
	for pattern, fn := range ledger {
		mux.Handle(pattern, WithActor(fn))
	}
}

// WithActor resolves the caller identity from gateway headers.
func WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := domain.WithActor(r.Context(), domain.Actor{
			TenantID: r.Header.Get(HeaderTenant),
			ActorID:  r.Header.Get(HeaderActor),
			Role:     r.Header.Get(HeaderRole),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *HTTPHandler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req SaleHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	sale, err := h.svc.Sales.CreateSale(r.Context(), req.toDomain())
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSaleResponse(sale))
}

func (h *HTTPHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.svc.Sales.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSaleResponse(sale))
}

func (h *HTTPHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty, err := h.svc.Stock.GetStock(r.Context(), q.Get("location_id"), q.Get("product_id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"location_id": q.Get("location_id"),
		"product_id":  q.Get("product_id"),
		"quantity":    qty,
	})
}

// StockSnapshot answers storefront reads from the published snapshot and
// falls back to the ledger when none is available. Ledger rules never read it.
func (h *HTTPHandler) StockSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	actor, err := domain.ActorFrom(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	if h.svc.Snapshots != nil {
		key := domain.NewStockKey(actor.TenantID, q.Get("location_id"), q.Get("product_id"))
		qty, ok, err := h.svc.Snapshots.Snapshot(r.Context(), key)
		if err == nil && ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"location_id": key.LocationID,
				"product_id":  key.ProductID,
				"quantity":    qty,
				"source":      "snapshot",
			})
			return
		}
	}

	qty, err := h.svc.Stock.GetStock(r.Context(), q.Get("location_id"), q.Get("product_id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"location_id": q.Get("location_id"),
		"product_id":  q.Get("product_id"),
		"quantity":    qty,
		"source":      "ledger",
	})
}

func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	movements, err := h.svc.Stock.History(r.Context(), q.Get("product_id"), limit)
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newMovements(movements))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusCode maps ledger failures to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidTransferState),
		errors.Is(err, domain.ErrInvalidOrderState),
		errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPaymentMismatch),
		errors.Is(err, domain.ErrInvalidProduct),
		errors.Is(err, domain.ErrInvalidLocation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoTenant):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func WriteError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, code, ErrorHTTPResponse{Error: msg})
}

func (r SaleHTTPRequest) toDomain() domain.SaleRequest {
	req := domain.SaleRequest{
		LocationID:    r.LocationID,
		PaymentMethod: r.PaymentMethod,
		Currency:      r.Currency,
		OfflineID:     r.OfflineID,
	}
	for _, l := range r.Items {
		req.Items = append(req.Items, domain.SaleLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Discount:  l.Discount,
		})
	}
	for _, p := range r.Payments {
		req.Payments = append(req.Payments, domain.Payment{Method: p.Method, Amount: p.Amount, Reference: p.Reference})
	}
	return req
}

func newSaleResponse(s *domain.Sale) SaleHTTPResponse {
	out := SaleHTTPResponse{
		ID:         s.ID,
		LocationID: s.LocationID,
		Total:      s.Total,
		Currency:   s.Currency,
		OfflineID:  s.OfflineID,
		CreatedAt:  s.CreatedAt,
	}
	for _, it := range s.Items {
		price := it.UnitPrice
		out.Items = append(out.Items, SaleHTTPLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: &price,
			Discount:  it.Discount,
		})
	}
	for _, p := range s.Payments {
		out.Payments = append(out.Payments, PaymentHTTP{Method: p.Method, Amount: p.Amount, Reference: p.Reference})
	}
	return out
}

func newMovements(movements []domain.Movement) []MovementHTTP {
	out := make([]MovementHTTP, 0, len(movements))
	for _, mv := range movements {
		out = append(out, MovementHTTP{
			ID:           mv.ID,
			LocationID:   mv.LocationID,
			Delta:        mv.Delta,
			BalanceAfter: mv.BalanceAfter,
			Reason:       string(mv.Reason),
			ActorID:      mv.ActorID,
			Reference:    mv.Reference,
			Note:         mv.Note,
			CreatedAt:    mv.CreatedAt,
		})
	}
	return out
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
