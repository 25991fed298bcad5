package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// InventoryStore holds the current stock and price per offer plus the
// append-only change history. Current values live in one row per offer;
// every mutation adds a history record in the same transaction.
type InventoryStore struct {
	db *bun.DB
}

var _ core.InventoryStore = (*InventoryStore)(nil)

func NewInventoryStore(db *bun.DB) (*InventoryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &InventoryStore{db: db}, nil
}

func (s *InventoryStore) SetStock(ctx context.Context, marketplace core.Marketplace, offerID string, qty int64, reason string) (core.ChangeRecord, error) {
	if s == nil || s.db == nil {
		return core.ChangeRecord{}, fmt.Errorf("sqlstore: inventory store is not configured")
	}
	var record core.ChangeRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		level, err := levelSnapshot(ctx, tx, marketplace, offerID)
		if err != nil {
			return err
		}
		old := decimal.NewFromInt(level.Stock)
		level.Stock = qty
		level.UpdatedAt = time.Now().UTC()
		if err := saveLevel(ctx, tx, level); err != nil {
			return err
		}
		row, err := appendChange(ctx, tx, marketplace, offerID, core.ChangeKindStock, old, decimal.NewFromInt(qty), reason)
		if err != nil {
			return err
		}
		record = row
		return nil
	})
	return record, err
}

func (s *InventoryStore) SetPrice(ctx context.Context, marketplace core.Marketplace, offerID string, price decimal.Decimal, reason string) (core.ChangeRecord, error) {
	if s == nil || s.db == nil {
		return core.ChangeRecord{}, fmt.Errorf("sqlstore: inventory store is not configured")
	}
	var record core.ChangeRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		level, err := levelSnapshot(ctx, tx, marketplace, offerID)
		if err != nil {
			return err
		}
		old := parseDecimal(level.Price)
		level.Price = price.String()
		level.UpdatedAt = time.Now().UTC()
		if err := saveLevel(ctx, tx, level); err != nil {
			return err
		}
		row, err := appendChange(ctx, tx, marketplace, offerID, core.ChangeKindPrice, old, price, reason)
		if err != nil {
			return err
		}
		record = row
		return nil
	})
	return record, err
}

// DecrementStock applies the clamp inside a single UPDATE so two concurrent
// sale events never drive the level negative.
func (s *InventoryStore) DecrementStock(ctx context.Context, marketplace core.Marketplace, offerID string, qty int64, reason string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: inventory store is not configured")
	}
	var remaining int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		before, err := levelSnapshot(ctx, tx, marketplace, offerID)
		if err != nil {
			return err
		}
		old := decimal.NewFromInt(before.Stock)
		if err := saveLevel(ctx, tx, before); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model((*inventoryLevelRecord)(nil)).
			Set("stock = CASE WHEN stock - ? < 0 THEN 0 ELSE stock - ? END", qty, qty).
			Set("updated_at = ?", time.Now().UTC()).
			Where("marketplace = ?", string(marketplace)).
			Where("offer_id = ?", strings.TrimSpace(offerID)).
			Exec(ctx); err != nil {
			return err
		}

		after := &inventoryLevelRecord{}
		if err := tx.NewSelect().
			Model(after).
			Where("?TableAlias.marketplace = ?", string(marketplace)).
			Where("?TableAlias.offer_id = ?", strings.TrimSpace(offerID)).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}
		remaining = after.Stock

		_, err = appendChange(ctx, tx, marketplace, offerID, core.ChangeKindStock, old, decimal.NewFromInt(remaining), reason)
		return err
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (s *InventoryStore) CurrentStock(ctx context.Context, marketplace core.Marketplace, offerID string) (int64, error) {
	level, err := s.level(ctx, marketplace, offerID)
	if err != nil {
		return 0, err
	}
	return level.Stock, nil
}

func (s *InventoryStore) CurrentPrice(ctx context.Context, marketplace core.Marketplace, offerID string) (decimal.Decimal, error) {
	level, err := s.level(ctx, marketplace, offerID)
	if err != nil {
		return decimal.Zero, err
	}
	return parseDecimal(level.Price), nil
}

func (s *InventoryStore) History(ctx context.Context, marketplace core.Marketplace, offerID string, kind core.ChangeKind) ([]core.ChangeRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: inventory store is not configured")
	}
	var rows []changeRecord
	err := s.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.marketplace = ?", string(marketplace)).
		Where("?TableAlias.offer_id = ?", strings.TrimSpace(offerID)).
		Where("?TableAlias.kind = ?", string(kind)).
		Order("recorded_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.ChangeRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *InventoryStore) level(ctx context.Context, marketplace core.Marketplace, offerID string) (*inventoryLevelRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: inventory store is not configured")
	}
	record := &inventoryLevelRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.marketplace = ?", string(marketplace)).
		Where("?TableAlias.offer_id = ?", strings.TrimSpace(offerID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return &inventoryLevelRecord{
				Marketplace: string(marketplace),
				OfferID:     strings.TrimSpace(offerID),
				Price:       "0",
			}, nil
		}
		return nil, err
	}
	return record, nil
}

// levelSnapshot loads the current row or seeds a zero row so the first
// event for an offer has something to mutate. The read takes no row lock;
// the mutation itself is a single clamped statement, so stored values stay
// correct under concurrent writers, but the old/new pair recorded in the
// change history can lag a concurrent write.
func levelSnapshot(ctx context.Context, tx bun.Tx, marketplace core.Marketplace, offerID string) (*inventoryLevelRecord, error) {
	record := &inventoryLevelRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.marketplace = ?", string(marketplace)).
		Where("?TableAlias.offer_id = ?", strings.TrimSpace(offerID)).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return record, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	return &inventoryLevelRecord{
		ID:          uuid.NewString(),
		Marketplace: string(marketplace),
		OfferID:     strings.TrimSpace(offerID),
		Stock:       0,
		Price:       "0",
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

func saveLevel(ctx context.Context, tx bun.Tx, level *inventoryLevelRecord) error {
	if strings.TrimSpace(level.ID) == "" {
		level.ID = uuid.NewString()
	}
	_, err := tx.NewInsert().
		Model(level).
		On("CONFLICT (marketplace, offer_id) DO UPDATE").
		Set("stock = EXCLUDED.stock").
		Set("price = EXCLUDED.price").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func appendChange(
	ctx context.Context,
	tx bun.Tx,
	marketplace core.Marketplace,
	offerID string,
	kind core.ChangeKind,
	oldValue decimal.Decimal,
	newValue decimal.Decimal,
	reason string,
) (core.ChangeRecord, error) {
	row := &changeRecord{
		ID:          uuid.NewString(),
		Marketplace: string(marketplace),
		OfferID:     strings.TrimSpace(offerID),
		Kind:        string(kind),
		OldValue:    oldValue.String(),
		NewValue:    newValue.String(),
		Reason:      reason,
		RecordedAt:  time.Now().UTC(),
	}
	if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
		return core.ChangeRecord{}, err
	}
	return row.toDomain(), nil
}
