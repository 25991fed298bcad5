package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// StatStore accumulates hourly notification counters. Increment races
// on first write for a bucket; the loser of the insert retries as an
// update against the winner's row.
type StatStore struct {
	db *bun.DB
}

var _ core.StatsRecorder = (*StatStore)(nil)

func NewStatStore(db *bun.DB) (*StatStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &StatStore{db: db}, nil
}

func (s *StatStore) Increment(ctx context.Context, marketplace core.Marketplace, eventType string, status string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: stat store is not configured")
	}
	window := core.StatWindow(time.Now())
	result, err := s.db.NewUpdate().
		Model((*notificationStatRecord)(nil)).
		Set("count = count + 1").
		Where("marketplace = ?", string(marketplace)).
		Where("event_type = ?", eventType).
		Where("status = ?", status).
		Where("window_start = ?", window).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	record := &notificationStatRecord{
		ID:          uuid.NewString(),
		Marketplace: string(marketplace),
		EventType:   eventType,
		Status:      status,
		Count:       1,
		WindowStart: window,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			_, err = s.db.NewUpdate().
				Model((*notificationStatRecord)(nil)).
				Set("count = count + 1").
				Where("marketplace = ?", string(marketplace)).
				Where("event_type = ?", eventType).
				Where("status = ?", status).
				Where("window_start = ?", window).
				Exec(ctx)
		}
		return err
	}
	return nil
}

func (s *StatStore) Snapshot(ctx context.Context, marketplace core.Marketplace, since time.Time) ([]core.NotificationStat, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: stat store is not configured")
	}
	query := s.db.NewSelect().Model((*notificationStatRecord)(nil))
	if marketplace != "" {
		query = query.Where("?TableAlias.marketplace = ?", string(marketplace))
	}
	if !since.IsZero() {
		query = query.Where("?TableAlias.window_start >= ?", since.UTC())
	}
	var records []*notificationStatRecord
	if err := query.Scan(ctx, &records); err != nil {
		return nil, err
	}
	stats := make([]core.NotificationStat, 0, len(records))
	for _, record := range records {
		stats = append(stats, core.NotificationStat{
			Marketplace: core.Marketplace(record.Marketplace),
			EventType:   record.EventType,
			Status:      record.Status,
			Count:       record.Count,
			WindowStart: record.WindowStart,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if !stats[i].WindowStart.Equal(stats[j].WindowStart) {
			return stats[i].WindowStart.Before(stats[j].WindowStart)
		}
		if stats[i].Marketplace != stats[j].Marketplace {
			return stats[i].Marketplace < stats[j].Marketplace
		}
		if stats[i].EventType != stats[j].EventType {
			return stats[i].EventType < stats[j].EventType
		}
		return stats[i].Status < stats[j].Status
	})
	return stats, nil
}
