//go:build integration

package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	id "civreg/pkg/domain"
	"civreg/pkg/testutil/containers"

	"civreg/internal/event/models"
	"civreg/internal/search"
	"civreg/internal/stream"
)

type StreamSuite struct {
	suite.Suite
	brokers []string
}

func TestStreamSuite(t *testing.T) {
	suite.Run(t, new(StreamSuite))
}

func (s *StreamSuite) SetupSuite() {
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers
}

// newTopic provisions a fresh topic per test so suites never see each
// other's records.
func (s *StreamSuite) newTopic(producer *kgo.Client) string {
	topic := "civreg.actions." + uuid.NewString()
	s.Require().NoError(stream.EnsureTopic(context.Background(), producer, topic, 1))
	// Creating an existing topic is a no-op.
	s.Require().NoError(stream.EnsureTopic(context.Background(), producer, topic, 1))
	return topic
}

func (s *StreamSuite) newEvent(status models.EventStatus) models.Event {
	now := time.Now().UTC().Truncate(time.Millisecond)
	actor := id.UserID(uuid.New())
	event := models.Event{
		ID:        id.NewEventID(),
		Type:      models.EventTypeBirth,
		CreatedAt: now,
		UpdatedAt: now,
		Actions: []models.Action{
			{
				ID:            id.NewActionID(),
				Type:          models.ActionCreate,
				Status:        models.ActionStatusAccepted,
				CreatedAt:     now,
				CreatedBy:     actor,
				TransactionID: "tx-create",
				Content:       map[string]any{models.ContentTrackingID: "B0A1B2C3D"},
			},
			{
				ID:            id.NewActionID(),
				Type:          models.ActionDeclare,
				Status:        models.ActionStatusAccepted,
				CreatedAt:     now.Add(time.Second),
				CreatedBy:     actor,
				TransactionID: "tx-declare",
				Declaration:   models.Declaration{"child.firstName": "Ada"},
			},
		},
	}
	if status == models.StatusRejected {
		event.Actions = append(event.Actions, models.Action{
			ID:            id.NewActionID(),
			Type:          models.ActionReject,
			Status:        models.ActionStatusAccepted,
			CreatedAt:     now.Add(2 * time.Second),
			CreatedBy:     actor,
			TransactionID: "tx-reject",
		})
	}
	return event
}

func (s *StreamSuite) TestPublisherToIndexerRoundTrip() {
	producer, err := kgo.NewClient(kgo.SeedBrokers(s.brokers...))
	s.Require().NoError(err)
	defer producer.Close()

	topic := s.newTopic(producer)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumerGroup("indexer-"+uuid.NewString()),
		kgo.ConsumeTopics(topic),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	index := search.NewMemory()
	indexerCtx, stopIndexer := context.WithCancel(context.Background())
	defer stopIndexer()
	indexerDone := make(chan struct{})
	go func() {
		defer close(indexerDone)
		_ = stream.NewIndexer(consumer, index, nil).Run(indexerCtx)
	}()

	publisher := stream.NewPublisher(producer, topic, nil)
	publisherCtx, stopPublisher := context.WithCancel(context.Background())
	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		_ = publisher.Run(publisherCtx)
	}()

	declared := s.newEvent(models.StatusDeclared)
	publisher.ActionsCommitted(context.Background(), declared, declared.Actions)

	s.Require().Eventually(func() bool {
		hits, err := index.Search(context.Background(), search.Query{
			EventType: models.EventTypeBirth,
			Clauses:   []search.Clause{{Field: "child.firstName", Kind: search.ClauseTerm, Value: "Ada"}},
		})
		return err == nil && len(hits) == 1 && hits[0].EventID == declared.ID
	}, 30*time.Second, 100*time.Millisecond, "declared record should reach the read model")

	// Rejection of the same event removes it from the read model.
	rejected := declared
	rejected.Actions = s.newEvent(models.StatusRejected).Actions
	rejected.Actions[0].Content = map[string]any{models.ContentTrackingID: "B0A1B2C3D"}
	publisher.ActionsCommitted(context.Background(), rejected, rejected.Actions[2:])

	s.Require().Eventually(func() bool {
		hits, err := index.Search(context.Background(), search.Query{
			EventType: models.EventTypeBirth,
			Clauses:   []search.Clause{{Field: "child.firstName", Kind: search.ClauseTerm, Value: "Ada"}},
		})
		return err == nil && len(hits) == 0
	}, 30*time.Second, 100*time.Millisecond, "rejected record should leave the read model")

	stopPublisher()
	<-publisherDone
	stopIndexer()
	consumer.Close()
	<-indexerDone
}

func (s *StreamSuite) TestShutdownFlushesBufferedEnvelopes() {
	producer, err := kgo.NewClient(kgo.SeedBrokers(s.brokers...))
	s.Require().NoError(err)
	defer producer.Close()

	topic := s.newTopic(producer)
	publisher := stream.NewPublisher(producer, topic, nil)

	// Enqueue before Run so the envelope is still buffered when the
	// publisher is stopped immediately.
	event := s.newEvent(models.StatusDeclared)
	publisher.ActionsCommitted(context.Background(), event, event.Actions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = publisher.Run(ctx)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topic),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetchCtx, fetchCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer fetchCancel()
	fetches := consumer.PollFetches(fetchCtx)
	s.Require().NoError(fetchCtx.Err(), "expected the flushed envelope on the topic")

	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal(event.ID.String(), string(records[0].Key))
}
