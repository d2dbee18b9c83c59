// Package stream moves committed actions onto the Kafka topic that feeds the
// search read model. The action log in PostgreSQL stays the source of truth;
// everything here is eventually consistent fan-out.
package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"civreg/internal/event/models"
)

// Envelope is one message on the actions topic: the full event after the
// append plus the actions that were committed in that write. Consumers
// reproject from Event and never trust a carried state snapshot.
type Envelope struct {
	Event   models.Event    `json:"event"`
	Actions []models.Action `json:"actions"`
}

// EnsureTopic creates the actions topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, partitions, 1, nil, topic); err != nil {
		if errors.Is(err, kerr.TopicAlreadyExists) {
			return nil
		}
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}
