package command

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	TypeSetCatalogStock = "marketsync.command.catalog.set_stock"
	TypeSetCatalogPrice = "marketsync.command.catalog.set_price"
)

// SetCatalogStockMessage pushes an absolute stock level to one local
// product in the host catalog.
type SetCatalogStockMessage struct {
	ProductID string
	Quantity  int64
}

func (SetCatalogStockMessage) Type() string { return TypeSetCatalogStock }

func (m SetCatalogStockMessage) Validate() error {
	if strings.TrimSpace(m.ProductID) == "" {
		return commandValidationError("product_id", "product id is required")
	}
	if m.Quantity < 0 {
		return commandValidationError("quantity", "quantity must not be negative")
	}
	return nil
}

// SetCatalogPriceMessage pushes an absolute price to one local product in
// the host catalog.
type SetCatalogPriceMessage struct {
	ProductID string
	Price     decimal.Decimal
}

func (SetCatalogPriceMessage) Type() string { return TypeSetCatalogPrice }

func (m SetCatalogPriceMessage) Validate() error {
	if strings.TrimSpace(m.ProductID) == "" {
		return commandValidationError("product_id", "product id is required")
	}
	if m.Price.IsNegative() {
		return commandValidationError("price", "price must not be negative")
	}
	return nil
}
