package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type SaleLineItem struct {
	ProductID string
	Quantity  int64
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

// LineTotal is unitPrice*quantity - discount.
func (l SaleLineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)).Sub(l.Discount)
}

type Payment struct {
	Method    string
	Amount    decimal.Decimal
	Reference string
}

type Sale struct {
	ID             string
	TenantID       string
	LocationID     string
	Items          []SaleLineItem
	Payments       []Payment
	Total          decimal.Decimal
	Currency       string
	OfflineID      string
	CashierActorID string
	CreatedAt      time.Time
}

// SaleLine is a requested line; a nil UnitPrice means the catalog price.
type SaleLine struct {
	ProductID string
	Quantity  int64
	UnitPrice *decimal.Decimal
	Discount  decimal.Decimal
}

type SaleRequest struct {
	LocationID    string
	Items         []SaleLine
	Payments      []Payment
	PaymentMethod string
	Currency      string
	OfflineID     string
}

func SaleTotal(items []SaleLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func SumPayments(payments []Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// CurrencyExponent returns the number of minor-unit digits of an ISO 4217 code.
func CurrencyExponent(currency string) int32 {
	switch strings.ToUpper(currency) {
	case "JPY", "KRW", "VND", "CLP", "ISK", "XOF", "XAF":
		return 0
	case "BHD", "KWD", "OMR", "JOD", "TND", "IQD", "LYD":
		return 3
	}
	return 2
}

// PaymentEpsilon is half of the currency's minor unit.
func PaymentEpsilon(currency string) decimal.Decimal {
	return decimal.New(5, -(CurrencyExponent(currency) + 1))
}

// PaymentsReconcile reports whether sum(payments) equals total within the
// currency epsilon.
func PaymentsReconcile(total decimal.Decimal, payments []Payment, currency string) bool {
	diff := SumPayments(payments).Sub(total).Abs()
	return diff.LessThan(PaymentEpsilon(currency))
}
