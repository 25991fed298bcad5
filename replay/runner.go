package replay

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-marketsync/core"
)

const JobIDWebhookReplay = "marketsync.webhook.replay"

// Reprocessor re-runs one stored delivery through its adapter.
type Reprocessor interface {
	Replay(ctx context.Context, event core.WebhookEvent) (core.Outcome, error)
}

// Enqueuer is the slice of the go-job queue surface the runner needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg *job.ExecutionMessage) error
}

// Delivery is the slice of the go-job delivery surface the runner needs.
type Delivery interface {
	Message() *job.ExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts queue.NackOptions) error
}

// RetryPolicy bounds queue retries so a permanently broken payload cannot
// loop forever.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Normalize enforces the retry bounds on a nack operation.
func (p RetryPolicy) Normalize(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Stats summarizes one replay pass.
type Stats struct {
	Scanned  int
	Replayed int
	Failed   int
}

// Runner drains failed and stale webhook events from the event log back
// through the processor. Handlers are idempotent, so replaying an already
// applied delivery is safe.
type Runner struct {
	eventLog   core.EventLog
	processor  Reprocessor
	policy     RetryPolicy
	batchSize  int
	staleAfter time.Duration
	logger     core.Logger
	now        func() time.Time
}

type Option func(*Runner)

func WithEventLog(log core.EventLog) Option {
	return func(r *Runner) { r.eventLog = log }
}

func WithReprocessor(processor Reprocessor) Option {
	return func(r *Runner) { r.processor = processor }
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(r *Runner) { r.policy = policy }
}

func WithBatchSize(size int) Option {
	return func(r *Runner) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

func WithStaleAfter(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.staleAfter = d
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func New(opts ...Option) (*Runner, error) {
	r := &Runner{
		policy:     RetryPolicy{MaxAttempts: 5, MaxDelay: time.Minute, DeadLetterOnMax: true},
		batchSize:  50,
		staleAfter: 15 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.eventLog == nil {
		return nil, fmt.Errorf("replay: event log is required")
	}
	if r.processor == nil {
		return nil, fmt.Errorf("replay: reprocessor is required")
	}
	_, r.logger = glog.Resolve("replay", nil, r.logger)
	return r, nil
}

// Run executes one replay pass: failed events are re-dispatched and, when
// they succeed, get a fresh processed audit row because their original row
// is terminal. Stale non-terminal events are re-dispatched in place.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	stats := Stats{}

	failed, err := r.eventLog.Query(ctx, core.EventQuery{
		Statuses: []core.EventStatus{core.EventStatusFailed},
		Limit:    r.batchSize,
	})
	if err != nil {
		return stats, fmt.Errorf("replay: query failed events: %w", err)
	}
	for _, event := range failed {
		stats.Scanned++
		if r.replayTerminal(ctx, event) {
			stats.Replayed++
		} else {
			stats.Failed++
		}
	}

	stale, err := r.eventLog.Query(ctx, core.EventQuery{
		Statuses: []core.EventStatus{
			core.EventStatusReceived,
			core.EventStatusVerified,
			core.EventStatusDispatched,
		},
		Until: r.now().Add(-r.staleAfter),
		Limit: r.batchSize,
	})
	if err != nil {
		return stats, fmt.Errorf("replay: query stale events: %w", err)
	}
	for _, event := range stale {
		stats.Scanned++
		if r.replayInPlace(ctx, event) {
			stats.Replayed++
		} else {
			stats.Failed++
		}
	}

	return stats, nil
}

// replayTerminal reprocesses a terminal failed event. Success is recorded
// as a new processed row referencing the original; the failed row stays
// untouched for audit.
func (r *Runner) replayTerminal(ctx context.Context, event core.WebhookEvent) bool {
	outcome, err := r.processor.Replay(ctx, event)
	if err != nil || outcome.Status == core.OutcomeFailed {
		r.logger.Warn("replay of failed event did not recover",
			"event_id", event.ID, "marketplace", string(event.Marketplace), "error", err)
		return false
	}
	if _, appendErr := r.eventLog.Append(ctx, core.WebhookEvent{
		Marketplace: event.Marketplace,
		EventType:   event.EventType,
		RawPayload:  event.RawPayload,
		Status:      core.EventStatusProcessed,
		Error:       "replay of " + event.ID,
		ReceivedAt:  r.now(),
	}); appendErr != nil {
		r.logger.Error("recording replay result", "event_id", event.ID, "error", appendErr)
	}
	r.logger.Info("replayed failed event",
		"event_id", event.ID, "marketplace", string(event.Marketplace), "event_type", event.EventType)
	return true
}

func (r *Runner) replayInPlace(ctx context.Context, event core.WebhookEvent) bool {
	outcome, err := r.processor.Replay(ctx, event)
	if err != nil || outcome.Status == core.OutcomeFailed {
		reason := outcome.Message
		if err != nil {
			reason = err.Error()
		}
		if markErr := r.eventLog.MarkStatus(ctx, event.ID, core.EventStatusFailed, reason); markErr != nil {
			r.logger.Error("marking stale event failed", "event_id", event.ID, "error", markErr)
		}
		return false
	}
	if markErr := r.eventLog.MarkStatus(ctx, event.ID, core.EventStatusProcessed, "replayed"); markErr != nil {
		r.logger.Error("marking replayed event", "event_id", event.ID, "error", markErr)
	}
	return true
}

// EnqueueFailed pushes one replay job per failed event onto a go-job
// queue. The idempotency key dedupes repeated scans of the same backlog.
func (r *Runner) EnqueueFailed(ctx context.Context, enqueuer Enqueuer) (int, error) {
	if enqueuer == nil {
		return 0, fmt.Errorf("replay: enqueuer is required")
	}
	failed, err := r.eventLog.Query(ctx, core.EventQuery{
		Statuses: []core.EventStatus{core.EventStatusFailed},
		Limit:    r.batchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("replay: query failed events: %w", err)
	}
	enqueued := 0
	for _, event := range failed {
		msg := &job.ExecutionMessage{
			JobID:          JobIDWebhookReplay,
			Parameters:     map[string]any{"event_id": event.ID},
			IdempotencyKey: "replay::" + event.ID,
		}
		if err := enqueuer.Enqueue(ctx, msg); err != nil {
			return enqueued, fmt.Errorf("replay: enqueue event %s: %w", event.ID, err)
		}
		enqueued++
	}
	return enqueued, nil
}

// HandleDelivery processes one queued replay job. Recoverable failures
// nack with the bounded retry policy; success and permanent failures ack.
func (r *Runner) HandleDelivery(ctx context.Context, delivery Delivery, attempt int) error {
	if delivery == nil {
		return fmt.Errorf("replay: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, r.policy.Normalize(queue.NackOptions{
			Reason:     "missing execution message",
			DeadLetter: true,
		}, attempt))
	}
	eventID, _ := msg.Parameters["event_id"].(string)
	if strings.TrimSpace(eventID) == "" {
		return delivery.Nack(ctx, r.policy.Normalize(queue.NackOptions{
			Reason:     "missing event_id parameter",
			DeadLetter: true,
		}, attempt))
	}

	event, err := r.eventLog.Get(ctx, eventID)
	if err != nil {
		return delivery.Nack(ctx, r.policy.Normalize(queue.NackOptions{
			Reason:  err.Error(),
			Requeue: true,
			Delay:   time.Second,
		}, attempt))
	}

	if r.replayTerminal(ctx, event) {
		return delivery.Ack(ctx)
	}
	return delivery.Nack(ctx, r.policy.Normalize(queue.NackOptions{
		Reason:  "replay did not recover event " + eventID,
		Requeue: true,
		Delay:   time.Second,
	}, attempt))
}
