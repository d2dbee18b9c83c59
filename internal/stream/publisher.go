package stream

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"civreg/internal/event/models"
)

// defaultInboxSize bounds how many committed writes may wait for the broker.
const defaultInboxSize = 1024

// Publisher fans committed actions out to the actions topic. Enqueueing never
// blocks and never fails the write: when the inbox is full the envelope is
// dropped and logged, and the indexer catches up from the log on the next
// write to that event.
type Publisher struct {
	client *kgo.Client
	topic  string
	inbox  chan Envelope
	logger *slog.Logger
}

// NewPublisher constructs a publisher. Run must be started for messages to
// reach the broker.
func NewPublisher(client *kgo.Client, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		topic:  topic,
		inbox:  make(chan Envelope, defaultInboxSize),
		logger: logger,
	}
}

// ActionsCommitted enqueues a committed write for publication.
func (p *Publisher) ActionsCommitted(ctx context.Context, event models.Event, actions []models.Action) {
	select {
	case p.inbox <- Envelope{Event: event, Actions: actions}:
	default:
		p.logger.WarnContext(ctx, "stream inbox full, dropping envelope",
			"event_id", event.ID,
			"actions", len(actions),
		)
	}
}

// Run drains the inbox until ctx is cancelled, then flushes what was already
// enqueued. Messages are keyed by event id so per-event ordering holds.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case envelope := <-p.inbox:
			p.produce(ctx, envelope)
		}
	}
}

func (p *Publisher) produce(ctx context.Context, envelope Envelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode stream envelope",
			"error", err,
			"event_id", envelope.Event.ID,
		)
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(envelope.Event.ID.String()),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("failed to produce action envelope",
				"error", err,
				"event_id", envelope.Event.ID,
			)
		}
	})
}

// drain produces whatever is still buffered and flushes the client.
func (p *Publisher) drain() {
	ctx := context.Background()
	for {
		select {
		case envelope := <-p.inbox:
			p.produce(ctx, envelope)
		default:
			if err := p.client.Flush(ctx); err != nil {
				p.logger.Error("failed to flush stream publisher", "error", err)
			}
			return
		}
	}
}
