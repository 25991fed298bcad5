package ingest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/signature"
)

// Processor runs one webhook delivery through the full pipeline: resolve
// the adapter, verify the signature, normalize the payload, record the
// envelope, dispatch to the handler and settle the stats plus final event
// status. Every delivery yields an HTTP-ready result.
type Processor struct {
	registry core.Registry
	config   core.Config
	eventLog core.EventLog
	stats    core.StatsRecorder
	metrics  core.MetricsRecorder
	logger   core.Logger
	now      func() time.Time
}

type Option func(*Processor)

func WithRegistry(registry core.Registry) Option {
	return func(p *Processor) { p.registry = registry }
}

func WithConfig(config core.Config) Option {
	return func(p *Processor) { p.config = config }
}

func WithEventLog(log core.EventLog) Option {
	return func(p *Processor) { p.eventLog = log }
}

func WithStatsRecorder(stats core.StatsRecorder) Option {
	return func(p *Processor) { p.stats = stats }
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(p *Processor) { p.metrics = metrics }
}

func WithLogger(logger core.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func New(opts ...Option) (*Processor, error) {
	p := &Processor{
		config:  core.DefaultConfig(),
		metrics: core.NopMetricsRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.registry == nil {
		return nil, fmt.Errorf("ingest: adapter registry is required")
	}
	if p.eventLog == nil {
		return nil, fmt.Errorf("ingest: event log is required")
	}
	if p.stats == nil {
		return nil, fmt.Errorf("ingest: stats recorder is required")
	}
	_, p.logger = glog.Resolve("ingest", nil, p.logger)
	return p, nil
}

// Process ingests one delivery. The returned result always carries a
// response status; the error mirrors result failures for callers that
// prefer error flow.
func (p *Processor) Process(ctx context.Context, req core.WebhookRequest) (core.WebhookResult, error) {
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = p.now()
	}

	adapter, err := p.registry.Resolve(req.Marketplace)
	if err != nil {
		p.logger.Warn("marketplace not registered", "marketplace", req.Marketplace)
		return p.reject(err), err
	}
	marketplace := adapter.ID()

	cfg := p.config.MarketplaceFor(marketplace)
	if !cfg.Enabled {
		err := core.NewMarketplaceDisabledError(string(marketplace))
		p.logger.Warn("marketplace disabled", "marketplace", string(marketplace))
		return p.reject(err), err
	}

	ok, err := adapter.VerifySignature(ctx, req)
	if err == nil && !ok {
		err = core.NewSignatureError("signature verification failed", map[string]any{
			"marketplace": string(marketplace),
		})
	}
	if err != nil {
		p.recordRejection(ctx, marketplace, "", req, err)
		return p.reject(err), err
	}

	event, err := adapter.ParseEvent(req)
	if err != nil {
		rich := core.MapError(err)
		p.recordRejection(ctx, marketplace, "", req, rich)
		return p.reject(rich), rich
	}

	record, logErr := p.eventLog.Append(ctx, core.WebhookEvent{
		Marketplace: marketplace,
		EventType:   event.Type,
		RawPayload:  req.Body,
		Status:      core.EventStatusVerified,
		ReceivedAt:  req.ReceivedAt,
	})
	if logErr != nil {
		rich := core.NewDownstreamError("recording webhook event", logErr, nil)
		return p.reject(rich), rich
	}

	// The dispatched marker is written before the handler runs so an
	// event that crashes mid-handle is distinguishable from one that
	// never reached its adapter.
	p.markStatus(ctx, record.ID, core.EventStatusDispatched, "")

	outcome := adapter.Handle(ctx, event)
	p.metrics.IncCounter(ctx, "webhook_dispatched", 1, map[string]string{
		"marketplace": string(marketplace),
		"event_type":  event.Type,
		"outcome":     string(outcome.Status),
	})

	result := core.WebhookResult{
		EventID:   record.ID,
		EventType: event.Type,
		Outcome:   string(outcome.Status),
	}
	switch outcome.Status {
	case core.OutcomeUnhandled:
		p.markStatus(ctx, record.ID, core.EventStatusProcessed, outcome.Message)
		p.increment(ctx, marketplace, event.Type, core.StatUnhandled)
		p.logger.Info("event type unhandled",
			"marketplace", string(marketplace), "event_type", event.Type)
		result.Accepted = true
		result.StatusCode = http.StatusOK
		return result, nil
	case core.OutcomeFailed:
		reason := outcome.Message
		if outcome.Err != nil {
			reason = outcome.Err.Error()
		}
		p.markStatus(ctx, record.ID, core.EventStatusFailed, reason)
		p.increment(ctx, marketplace, event.Type, core.StatFailed)
		p.logger.Error("event handling failed",
			"marketplace", string(marketplace), "event_type", event.Type, "error", outcome.Err)
		result.StatusCode = core.HTTPStatus(outcome.Err)
		return result, outcome.Err
	default:
		p.markStatus(ctx, record.ID, core.EventStatusProcessed, "")
		p.increment(ctx, marketplace, event.Type, core.StatSuccess)
		result.Accepted = true
		result.StatusCode = http.StatusOK
		return result, nil
	}
}

// TestDispatch signs a synthetic payload with the marketplace's configured
// secret and runs it through the regular pipeline, for verifying a
// marketplace's wiring end to end.
func (p *Processor) TestDispatch(ctx context.Context, marketplace string, contentType string, payload []byte) (core.WebhookResult, error) {
	parsed, err := core.ParseMarketplace(marketplace)
	if err != nil {
		rich := core.NewMarketplaceNotFoundError(marketplace)
		return p.reject(rich), rich
	}
	cfg := p.config.MarketplaceFor(parsed)

	req := core.WebhookRequest{
		Marketplace: string(parsed),
		ContentType: contentType,
		Body:        payload,
		Headers:     map[string]string{},
		Metadata:    map[string]any{"synthetic": true},
		ReceivedAt:  p.now(),
	}
	if cfg.Secret != "" && cfg.SignatureHeader != "" {
		switch parsed {
		case core.MarketplaceAmazon:
			req.Headers[cfg.SignatureHeader] = cfg.Secret
		case core.MarketplaceHepsiburada:
			signer := signature.HeaderHMACVerifier{Secret: cfg.Secret, Encoding: signature.EncodingBase64}
			req.Headers[cfg.SignatureHeader] = signer.Sign(payload)
		default:
			signer := signature.HeaderHMACVerifier{Secret: cfg.Secret, Encoding: signature.EncodingHex}
			req.Headers[cfg.SignatureHeader] = signer.Sign(payload)
		}
	}
	return p.Process(ctx, req)
}

// Replay re-runs a stored delivery through its adapter. Signature
// verification is skipped; the payload was authenticated when first
// recorded. The stored row is left untouched so terminal statuses stay
// immutable; callers own any replay bookkeeping.
func (p *Processor) Replay(ctx context.Context, stored core.WebhookEvent) (core.Outcome, error) {
	adapter, err := p.registry.Resolve(string(stored.Marketplace))
	if err != nil {
		return core.Outcome{Status: core.OutcomeFailed, Err: err}, err
	}

	event, err := adapter.ParseEvent(core.WebhookRequest{
		Marketplace: string(stored.Marketplace),
		Body:        stored.RawPayload,
		ReceivedAt:  stored.ReceivedAt,
	})
	if err != nil {
		rich := core.MapError(err)
		return core.Outcome{Status: core.OutcomeFailed, Err: rich}, rich
	}

	outcome := adapter.Handle(ctx, event)
	p.metrics.IncCounter(ctx, "webhook_replayed", 1, map[string]string{
		"marketplace": string(stored.Marketplace),
		"event_type":  event.Type,
		"outcome":     string(outcome.Status),
	})
	if outcome.Status == core.OutcomeFailed {
		return outcome, outcome.Err
	}
	return outcome, nil
}

func (p *Processor) reject(err error) core.WebhookResult {
	return core.WebhookResult{
		Accepted:   false,
		StatusCode: core.HTTPStatus(err),
	}
}

// recordRejection persists deliveries that never reached a handler, so
// rejected signatures and unparseable payloads still leave an audit row.
func (p *Processor) recordRejection(ctx context.Context, marketplace core.Marketplace, eventType string, req core.WebhookRequest, cause error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	if _, err := p.eventLog.Append(ctx, core.WebhookEvent{
		Marketplace: marketplace,
		EventType:   eventType,
		RawPayload:  req.Body,
		Status:      core.EventStatusFailed,
		Error:       reason,
		ReceivedAt:  req.ReceivedAt,
	}); err != nil {
		p.logger.Error("recording rejected delivery", "error", err)
	}
	p.increment(ctx, marketplace, eventType, core.StatFailed)
}

func (p *Processor) markStatus(ctx context.Context, id string, status core.EventStatus, reason string) {
	if err := p.eventLog.MarkStatus(ctx, id, status, reason); err != nil {
		p.logger.Error("updating event status", "event_id", id, "error", err)
	}
}

// increment never fails the delivery; a stats outage is an observability
// problem, not an ingestion problem.
func (p *Processor) increment(ctx context.Context, marketplace core.Marketplace, eventType string, status string) {
	if err := p.stats.Increment(ctx, marketplace, eventType, status); err != nil {
		p.logger.Error("recording notification stat",
			"marketplace", string(marketplace), "event_type", eventType, "error", err)
	}
}
