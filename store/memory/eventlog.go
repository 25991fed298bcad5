package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/google/uuid"
)

// EventLog keeps the webhook audit trail in memory, ordered by receipt.
type EventLog struct {
	mu     sync.Mutex
	events map[string]core.WebhookEvent
	order  []string
	now    func() time.Time
}

var _ core.EventLog = (*EventLog)(nil)

func NewEventLog() *EventLog {
	return &EventLog{
		events: map[string]core.WebhookEvent{},
		now:    time.Now,
	}
}

func (l *EventLog) Append(_ context.Context, event core.WebhookEvent) (core.WebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = core.EventStatusReceived
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = l.now()
	}
	event.UpdatedAt = event.ReceivedAt
	l.events[event.ID] = event
	l.order = append(l.order, event.ID)
	return event, nil
}

func (l *EventLog) MarkStatus(_ context.Context, id string, status core.EventStatus, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	event, ok := l.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrEventNotFound, id)
	}
	if err := event.TransitionTo(status, reason, l.now()); err != nil {
		return err
	}
	l.events[id] = event
	return nil
}

func (l *EventLog) Get(_ context.Context, id string) (core.WebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	event, ok := l.events[id]
	if !ok {
		return core.WebhookEvent{}, fmt.Errorf("%w: %s", core.ErrEventNotFound, id)
	}
	return event, nil
}

func (l *EventLog) Query(_ context.Context, q core.EventQuery) ([]core.WebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []core.WebhookEvent
	for _, id := range l.order {
		event := l.events[id]
		if q.Marketplace != "" && event.Marketplace != q.Marketplace {
			continue
		}
		if q.EventType != "" && event.EventType != q.EventType {
			continue
		}
		if len(q.Statuses) > 0 && !statusIn(event.Status, q.Statuses) {
			continue
		}
		if !q.Since.IsZero() && event.ReceivedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && event.ReceivedAt.After(q.Until) {
			continue
		}
		out = append(out, event)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func statusIn(status core.EventStatus, statuses []core.EventStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// StatsRecorder counts notifications per (marketplace, event type, status)
// in hourly windows.
type StatsRecorder struct {
	mu     sync.Mutex
	counts map[string]*core.NotificationStat
	now    func() time.Time
	Err    error
}

var _ core.StatsRecorder = (*StatsRecorder)(nil)

func NewStatsRecorder() *StatsRecorder {
	return &StatsRecorder{
		counts: map[string]*core.NotificationStat{},
		now:    time.Now,
	}
}

func (r *StatsRecorder) Increment(_ context.Context, marketplace core.Marketplace, eventType string, status string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	window := core.StatWindow(r.now())
	key := fmt.Sprintf("%s/%s/%s/%d", marketplace, eventType, status, window.Unix())
	stat, ok := r.counts[key]
	if !ok {
		stat = &core.NotificationStat{
			Marketplace: marketplace,
			EventType:   eventType,
			Status:      status,
			WindowStart: window,
		}
		r.counts[key] = stat
	}
	stat.Count++
	return nil
}

func (r *StatsRecorder) Snapshot(_ context.Context, marketplace core.Marketplace, since time.Time) ([]core.NotificationStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.NotificationStat
	for _, stat := range r.counts {
		if marketplace != "" && stat.Marketplace != marketplace {
			continue
		}
		if !since.IsZero() && stat.WindowStart.Before(since) {
			continue
		}
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WindowStart.Equal(out[j].WindowStart) {
			return out[i].WindowStart.Before(out[j].WindowStart)
		}
		if out[i].EventType != out[j].EventType {
			return out[i].EventType < out[j].EventType
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// Count returns the summed count for one (event type, status) pair across
// windows, for assertions.
func (r *StatsRecorder) Count(marketplace core.Marketplace, eventType string, status string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, stat := range r.counts {
		if stat.Marketplace == marketplace && stat.EventType == eventType && stat.Status == status {
			total += stat.Count
		}
	}
	return total
}
