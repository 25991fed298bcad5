package command

import (
	"context"

	"github.com/goliatone/go-marketsync/core"
)

// SetCatalogStockCommand applies a stock command to the host catalog
// through the CatalogBridge.
type SetCatalogStockCommand struct {
	catalog core.CatalogBridge
}

func NewSetCatalogStockCommand(catalog core.CatalogBridge) *SetCatalogStockCommand {
	return &SetCatalogStockCommand{catalog: catalog}
}

func (c *SetCatalogStockCommand) Execute(ctx context.Context, msg SetCatalogStockMessage) error {
	if c == nil || c.catalog == nil {
		return commandDependencyError("command: catalog bridge is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := c.catalog.SetStock(ctx, msg.ProductID, msg.Quantity); err != nil {
		return core.NewDownstreamError("catalog stock update failed", err, map[string]any{
			"product_id": msg.ProductID,
		})
	}
	return nil
}

// SetCatalogPriceCommand applies a price command to the host catalog
// through the CatalogBridge.
type SetCatalogPriceCommand struct {
	catalog core.CatalogBridge
}

func NewSetCatalogPriceCommand(catalog core.CatalogBridge) *SetCatalogPriceCommand {
	return &SetCatalogPriceCommand{catalog: catalog}
}

func (c *SetCatalogPriceCommand) Execute(ctx context.Context, msg SetCatalogPriceMessage) error {
	if c == nil || c.catalog == nil {
		return commandDependencyError("command: catalog bridge is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := c.catalog.SetPrice(ctx, msg.ProductID, msg.Price); err != nil {
		return core.NewDownstreamError("catalog price update failed", err, map[string]any{
			"product_id": msg.ProductID,
		})
	}
	return nil
}
