package ingest

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Publisher enqueues reindex requests onto a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

func NewPublisher(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Dispatch publishes req and waits for the broker to acknowledge receipt
// (not processing — that happens later, on the worker). The caller is
// blocked only on enqueueing, not on indexing.
func (p *Publisher) Dispatch(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	data, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("ingest.Publisher.Dispatch: marshal: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"agentId":       req.AgentID,
			"knowledgeType": string(req.KnowledgeType),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("ingest.Publisher.Dispatch: publish: %w", err)
	}
	return nil
}
