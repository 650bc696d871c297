package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/logx"
)

// Attribute keys set on every relayed change message.
const (
	AttrChannel        = "channel"
	AttrChangeType     = "type"
	AttrSubscriptionID = "subscriptionId"
)

// ChangeRelay forwards dbx.ChangeEvent values to a broker topic.
// Its OnChange method has the signature of dbx.ChangeWatcher.OnChange.
type ChangeRelay struct {
	publisher BufferedPublisherWithRetry
	topic     string
	logger    logx.Logger
}

// NewChangeRelay returns a relay publishing on topic through publisher.
func NewChangeRelay(publisher BufferedPublisherWithRetry, topic string, logger logx.Logger) *ChangeRelay {
	return &ChangeRelay{publisher: publisher, topic: topic, logger: logx.OrNop(logger)}
}

// Relay serializes event as JSON and buffers it for publication.
func (r *ChangeRelay) Relay(ctx context.Context, event dbx.ChangeEvent) error {
	if r.topic == "" {
		return NewMessagingErrorCode(ErrorRelayTopicMissing, nil)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return NewMessagingErrorCode(ErrorSerializingJsonMessage, err)
	}

	id := event.EventID
	if id == uuid.Nil {
		id = uuid.New()
	}

	msg := &MsgPayload{
		MessageId: id.String(),
		Data:      data,
		Attributes: map[string]string{
			AttrChannel:        event.Channel,
			AttrChangeType:     event.Type.String(),
			AttrSubscriptionID: event.SubscriptionID.String(),
		},
	}

	return r.publisher.Publish(ctx, r.topic, msg)
}

// OnChange relays event and logs a failure instead of returning it.
func (r *ChangeRelay) OnChange(ctx context.Context, event dbx.ChangeEvent) {
	if err := r.Relay(ctx, event); err != nil {
		r.logger.LogError(ctx, fmt.Sprintf("error relaying change on channel %s to topic %s", event.Channel, r.topic), err)
	}
}
