package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-marketsync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EventLogStore keeps the full webhook envelope for audit and replay.
// Status transitions go through the domain state machine so terminal
// events stay immutable.
type EventLogStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]
}

var _ core.EventLog = (*EventLogStore)(nil)

func NewEventLogStore(db *bun.DB) (*EventLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event log repository wiring: %w", err)
		}
	}
	return &EventLogStore{db: db, repo: repo}, nil
}

func (s *EventLogStore) Append(ctx context.Context, event core.WebhookEvent) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: event log store is not configured")
	}
	now := time.Now().UTC()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = core.EventStatusReceived
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = now
	}
	record := &webhookEventRecord{
		ID:          event.ID,
		Marketplace: string(event.Marketplace),
		EventType:   event.EventType,
		RawPayload:  append([]byte(nil), event.RawPayload...),
		Status:      string(event.Status),
		Error:       event.Error,
		ReceivedAt:  event.ReceivedAt,
		UpdatedAt:   now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.WebhookEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *EventLogStore) MarkStatus(ctx context.Context, id string, status core.EventStatus, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event log store is not configured")
	}
	event, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := event.TransitionTo(status, reason, time.Now().UTC()); err != nil {
		return err
	}
	_, err = s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("status = ?", string(event.Status)).
		Set("error = ?", event.Error).
		Set("updated_at = ?", event.UpdatedAt).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *EventLogStore) Get(ctx context.Context, id string) (core.WebhookEvent, error) {
	if s == nil || s.repo == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: event log store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.WebhookEvent{}, err
	}
	if len(records) == 0 {
		return core.WebhookEvent{}, fmt.Errorf("%w: %s", core.ErrEventNotFound, id)
	}
	return records[0].toDomain(), nil
}

func (s *EventLogStore) Query(ctx context.Context, q core.EventQuery) ([]core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event log store is not configured")
	}
	query := s.db.NewSelect().
		Model((*webhookEventRecord)(nil)).
		Order("received_at ASC")
	if q.Marketplace != "" {
		query = query.Where("?TableAlias.marketplace = ?", string(q.Marketplace))
	}
	if q.EventType != "" {
		query = query.Where("?TableAlias.event_type = ?", q.EventType)
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, 0, len(q.Statuses))
		for _, status := range q.Statuses {
			statuses = append(statuses, string(status))
		}
		query = query.Where("?TableAlias.status IN (?)", bun.In(statuses))
	}
	if !q.Since.IsZero() {
		query = query.Where("?TableAlias.received_at >= ?", q.Since)
	}
	if !q.Until.IsZero() {
		query = query.Where("?TableAlias.received_at < ?", q.Until)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	var records []*webhookEventRecord
	if err := query.Scan(ctx, &records); err != nil {
		return nil, err
	}
	events := make([]core.WebhookEvent, 0, len(records))
	for _, record := range records {
		events = append(events, record.toDomain())
	}
	return events, nil
}
