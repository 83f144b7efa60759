package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type InventoryCount struct {
	ProductID string
	Counted   int64
}

type InventorySessionLine struct {
	ProductID  string
	Expected   int64
	Counted    int64
	Delta      int64
	ValueDelta decimal.Decimal
}

// InventorySession is a read-only count report. Reconciling it is a separate
// adjustment made by an operator.
type InventorySession struct {
	ID              string
	TenantID        string
	LocationID      string
	Lines           []InventorySessionLine
	TotalValueDelta decimal.Decimal
	ActorID         string
	CreatedAt       time.Time
}

func NewSessionLine(productID string, expected, counted int64, unitPrice decimal.Decimal) (InventorySessionLine, error) {
	if expected == math.MinInt64 {
		return InventorySessionLine{}, InvalidArgument("ledger total for product %s is out of range", productID)
	}
	delta, err := AddQuantity(counted, -expected)
	if err != nil {
		return InventorySessionLine{}, err
	}
	return InventorySessionLine{
		ProductID:  productID,
		Expected:   expected,
		Counted:    counted,
		Delta:      delta,
		ValueDelta: unitPrice.Mul(decimal.NewFromInt(delta)),
	}, nil
}

// Discrepancies returns the lines whose count differs from the ledger.
func (s *InventorySession) Discrepancies() []InventorySessionLine {
	var out []InventorySessionLine
	for _, l := range s.Lines {
		if l.Delta != 0 {
			out = append(out, l)
		}
	}
	return out
}
