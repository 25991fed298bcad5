package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeliveryClaimStore dedupes webhook deliveries by (marketplace, delivery_id).
// The unique index makes the insert first-writer-wins; the loser sees the
// violation and reports the delivery as already claimed.
type DeliveryClaimStore struct {
	db *bun.DB
}

var _ core.DeliveryStore = (*DeliveryClaimStore)(nil)

func NewDeliveryClaimStore(db *bun.DB) (*DeliveryClaimStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &DeliveryClaimStore{db: db}, nil
}

func (s *DeliveryClaimStore) ClaimDelivery(ctx context.Context, marketplace core.Marketplace, deliveryID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: delivery claim store is not configured")
	}
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return false, fmt.Errorf("sqlstore: delivery id is required")
	}
	record := &deliveryClaimRecord{
		ID:          uuid.NewString(),
		Marketplace: string(marketplace),
		DeliveryID:  deliveryID,
		ClaimedAt:   time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *DeliveryClaimStore) ReleaseDelivery(ctx context.Context, marketplace core.Marketplace, deliveryID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery claim store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*deliveryClaimRecord)(nil)).
		Where("marketplace = ?", string(marketplace)).
		Where("delivery_id = ?", strings.TrimSpace(deliveryID)).
		Exec(ctx)
	return err
}
