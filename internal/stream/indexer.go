package stream

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"civreg/internal/event/models"
	"civreg/internal/event/projection"
	"civreg/internal/search"
)

// Indexer consumes the actions topic and maintains the search read model.
// It reprojects state from the event carried in each envelope, so replaying
// the topic converges on the same records.
type Indexer struct {
	client *kgo.Client
	search search.Client
	logger *slog.Logger
}

// NewIndexer constructs an indexer over an already-configured consumer client.
func NewIndexer(client *kgo.Client, searchClient search.Client, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{client: client, search: searchClient, logger: logger}
}

// Run polls until ctx is cancelled.
func (i *Indexer) Run(ctx context.Context) error {
	for {
		fetches := i.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			i.logger.Error("fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			i.handle(ctx, record)
		})
	}
}

func (i *Indexer) handle(ctx context.Context, record *kgo.Record) {
	var envelope Envelope
	if err := json.Unmarshal(record.Value, &envelope); err != nil {
		i.logger.ErrorContext(ctx, "failed to decode action envelope",
			"error", err,
			"offset", record.Offset,
		)
		return
	}

	state := projection.CurrentState(envelope.Event)
	if state.Status == models.StatusRejected {
		// Rejected records leave the read model so they stop surfacing as
		// duplicate candidates.
		if err := i.search.Delete(ctx, envelope.Event.ID); err != nil {
			i.logger.ErrorContext(ctx, "failed to delete search record",
				"error", err,
				"event_id", envelope.Event.ID,
			)
		}
		return
	}

	err := i.search.Index(ctx, search.Record{
		EventID:     state.ID,
		Type:        state.Type,
		Status:      state.Status,
		TrackingID:  state.TrackingID,
		Declaration: state.Declaration,
		UpdatedAt:   state.UpdatedAt,
	})
	if err != nil {
		i.logger.ErrorContext(ctx, "failed to index search record",
			"error", err,
			"event_id", envelope.Event.ID,
		)
	}
}
