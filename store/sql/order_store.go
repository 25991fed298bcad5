package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OrderStore persists marketplace orders, unique per
// (marketplace, marketplace_order_id). A redelivered creation event hits the
// unique constraint and resolves to the already-stored row.
type OrderStore struct {
	db   *bun.DB
	repo repository.Repository[*orderRecord]
}

var _ core.OrderStore = (*OrderStore)(nil)

func NewOrderStore(db *bun.DB) (*OrderStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*orderRecord](db, orderHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid order repository wiring: %w", err)
		}
	}
	return &OrderStore{db: db, repo: repo}, nil
}

func (s *OrderStore) CreateOrder(ctx context.Context, order core.MarketplaceOrder) (core.MarketplaceOrder, bool, error) {
	if s == nil || s.db == nil {
		return core.MarketplaceOrder{}, false, fmt.Errorf("sqlstore: order store is not configured")
	}
	order.MarketplaceOrderID = strings.TrimSpace(order.MarketplaceOrderID)
	if order.MarketplaceOrderID == "" {
		return core.MarketplaceOrder{}, false, fmt.Errorf("sqlstore: marketplace order id is required")
	}
	if strings.TrimSpace(order.ID) == "" {
		order.ID = uuid.NewString()
	}
	record := newOrderRecord(order, time.Now().UTC())

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.GetOrder(ctx, order.Marketplace, order.MarketplaceOrderID)
			if getErr != nil {
				return core.MarketplaceOrder{}, false, getErr
			}
			return existing, true, nil
		}
		return core.MarketplaceOrder{}, false, err
	}
	return record.toDomain(), false, nil
}

func (s *OrderStore) GetOrder(ctx context.Context, marketplace core.Marketplace, orderID string) (core.MarketplaceOrder, error) {
	if s == nil || s.repo == nil {
		return core.MarketplaceOrder{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("marketplace", "=", string(marketplace)),
		repository.SelectBy("marketplace_order_id", "=", strings.TrimSpace(orderID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.MarketplaceOrder{}, err
	}
	if len(records) == 0 {
		return core.MarketplaceOrder{}, fmt.Errorf("%w: %s/%s", core.ErrOrderNotFound, marketplace, orderID)
	}
	return records[0].toDomain(), nil
}

func (s *OrderStore) UpdateOrderStatus(ctx context.Context, marketplace core.Marketplace, orderID string, status core.OrderStatus, rawStatus string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: order store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*orderRecord)(nil)).
		Set("status = ?", string(status)).
		Set("raw_status = ?", rawStatus).
		Set("updated_at = ?", time.Now().UTC()).
		Where("marketplace = ?", string(marketplace)).
		Where("marketplace_order_id = ?", strings.TrimSpace(orderID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", core.ErrOrderNotFound, marketplace, orderID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
