// Package pubsub implements the messaging broker interfaces on Google Cloud Pub/Sub.
package pubsub

import (
	"context"

	"cloud.google.com/go/pubsub"

	"github.com/marcodd23/go-dal-core/pkg/messaging"
)

// pubSubClient - Client implementation for PubSub.
type pubSubClient struct {
	client *pubsub.Client
}

func (w *pubSubClient) Topic(id string) messaging.Topic {
	return &pubSubTopic{topic: w.client.Topic(id)}
}

func (w *pubSubClient) Close() error {
	return w.client.Close()
}

// pubSubTopic - Topic implementation for PubSub.
type pubSubTopic struct {
	topic *pubsub.Topic
}

func (w *pubSubTopic) Publish(ctx context.Context, msg messaging.Message) messaging.PublishResult {
	return w.topic.Publish(ctx, &pubsub.Message{
		Attributes: msg.GetAttributes(),
		Data:       msg.GetPayload(),
	})
}

func (w *pubSubTopic) Stop() {
	w.topic.Stop()
}

func (w *pubSubTopic) Flush() {
	w.topic.Flush()
}

func (w *pubSubTopic) String() string {
	return w.topic.String()
}

// ConfigPublishSettings maps the batching thresholds onto the client's own publish settings.
func (w *pubSubTopic) ConfigPublishSettings(config messaging.TopicPublishConfig) {
	w.topic.PublishSettings.CountThreshold = int(config.BatchSize)
	w.topic.PublishSettings.DelayThreshold = config.FlushDelayThreshold
}
