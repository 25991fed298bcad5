package shared

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/dispatch"
	"github.com/goliatone/go-marketsync/normalize"
	"github.com/goliatone/go-marketsync/signature"
)

// Base wires the collaborators every marketplace adapter composes: a
// signature verifier, a payload normalizer and a handler router. Concrete
// adapters embed it and register their handlers at construction.
type Base struct {
	marketplace core.Marketplace
	verifier    signature.Verifier
	normalizer  normalize.Normalizer
	router      *dispatch.Router
	logger      core.Logger
}

func NewBase(
	marketplace core.Marketplace,
	verifier signature.Verifier,
	normalizer normalize.Normalizer,
	logger core.Logger,
) *Base {
	if verifier == nil {
		verifier = signature.NoopVerifier{}
	}
	_, logger = glog.Resolve("adapter."+string(marketplace), nil, logger)
	return &Base{
		marketplace: marketplace,
		verifier:    verifier,
		normalizer:  normalizer,
		router:      dispatch.NewRouter(),
		logger:      logger,
	}
}

var _ core.Adapter = (*Base)(nil)

func (b *Base) ID() core.Marketplace {
	return b.marketplace
}

func (b *Base) Logger() core.Logger {
	return b.logger
}

// On registers a handler for one event type. Duplicate registration is a
// wiring bug, so it panics.
func (b *Base) On(eventType string, handler core.EventHandler) {
	b.router.MustRegister(eventType, handler)
}

func (b *Base) VerifySignature(ctx context.Context, req core.WebhookRequest) (bool, error) {
	return b.verifier.Verify(ctx, req)
}

func (b *Base) ParseEvent(req core.WebhookRequest) (core.Event, error) {
	return b.normalizer.Parse(req)
}

func (b *Base) Handle(ctx context.Context, event core.Event) core.Outcome {
	outcome := b.router.Dispatch(ctx, event)
	switch outcome.Status {
	case core.OutcomeFailed:
		b.logger.Error("event handling failed",
			"marketplace", string(b.marketplace),
			"event_type", event.Type,
			"error", outcome.Err,
		)
	case core.OutcomeUnhandled:
		b.logger.Debug("event type has no handler",
			"marketplace", string(b.marketplace),
			"event_type", event.Type,
		)
	default:
		b.logger.Debug("event processed",
			"marketplace", string(b.marketplace),
			"event_type", event.Type,
		)
	}
	return outcome
}

func (b *Base) EventTypes() []string {
	return b.router.EventTypes()
}
