package command

import (
	"context"
	"errors"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-marketsync/core"
	"github.com/shopspring/decimal"
)

// DispatcherBridge is a CatalogBridge that publishes catalog mutations as
// command messages on the process-wide go-command dispatcher. Hosts mount
// the matching handlers next to their own subscribers, so webhook handlers
// stay decoupled from the catalog implementation.
type DispatcherBridge struct {
	mappings core.MappingStore
}

var _ core.CatalogBridge = (*DispatcherBridge)(nil)

func NewDispatcherBridge(mappings core.MappingStore) *DispatcherBridge {
	return &DispatcherBridge{mappings: mappings}
}

func (b *DispatcherBridge) ResolveLocalProduct(ctx context.Context, marketplace core.Marketplace, offerID string) (string, bool, error) {
	if b == nil || b.mappings == nil {
		return "", false, commandDependencyError("command: mapping store is required")
	}
	mapping, err := b.mappings.ResolveMapping(ctx, marketplace, offerID)
	if err != nil {
		if errors.Is(err, core.ErrMappingNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return mapping.LocalProductID, true, nil
}

func (b *DispatcherBridge) SetStock(ctx context.Context, productID string, qty int64) error {
	if b == nil {
		return commandDependencyError("command: dispatcher bridge is required")
	}
	msg := SetCatalogStockMessage{ProductID: productID, Quantity: qty}
	if err := msg.Validate(); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func (b *DispatcherBridge) SetPrice(ctx context.Context, productID string, price decimal.Decimal) error {
	if b == nil {
		return commandDependencyError("command: dispatcher bridge is required")
	}
	msg := SetCatalogPriceMessage{ProductID: productID, Price: price}
	if err := msg.Validate(); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}
