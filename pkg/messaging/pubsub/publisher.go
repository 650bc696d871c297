package pubsub

import (
	"context"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/marcodd23/go-dal-core/pkg/logx"
	"github.com/marcodd23/go-dal-core/pkg/messaging"
)

// NewBufferedPublisherWithRetryFactory - factory that creates a pubsub client and then initializes
// a messaging.BufferedPublisherWithRetry on it. Zero fields of publishConfig take the messaging defaults.
func NewBufferedPublisherWithRetryFactory(
	ctx context.Context,
	projectID string,
	publishConfig messaging.TopicPublishConfig,
	logger logx.Logger,
	opts ...option.ClientOption) (messaging.BufferedPublisherWithRetry, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, messaging.NewMessagingErrorCode(messaging.ErrorInitializingPubsubClient, err)
	}

	return messaging.NewBufferedPublisherWithRetry(ctx, &pubSubClient{client: client}, publishConfig, logger)
}
