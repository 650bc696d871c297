// Package messaging publishes data-change events to a message broker.
//
// The broker is reached through the Client, Topic and PublishResult interfaces; the
// messaging/pubsub package implements them on Google Cloud Pub/Sub.
package messaging

import (
	"context"
	"time"
)

const (
	DefaultBatchSize            = 100
	DefaultMaxRetryCount        = 3
	DefaultInitialRetryInterval = 50 * time.Millisecond
	DefaultFlushDelayThreshold  = time.Millisecond * 10
)

// Message - message payload interface
type Message interface {
	GetMsgRefId() string
	GetPayload() []byte
	GetAttributes() map[string]string
}

// Client -  Client wrapper interface.
type Client interface {
	Topic(id string) Topic
	Close() error
}

// Topic - Topic wrapper interface.
type Topic interface {
	Publish(ctx context.Context, msg Message) PublishResult
	Stop()
	Flush()
	String() string
	ConfigPublishSettings(config TopicPublishConfig)
}

// PublishResult - Publish Result wrapper interface.
type PublishResult interface {
	Get(ctx context.Context) (string, error)
	Ready() <-chan struct{}
}

// TopicPublishConfig - configuration struct for the publisher.
type TopicPublishConfig struct {
	BatchSize            int32
	FlushDelayThreshold  time.Duration
	InitialRetryInterval time.Duration
	MaxRetryCount        int16
}

// WithDefaults returns c with every unset field replaced by its default.
func (c TopicPublishConfig) WithDefaults() TopicPublishConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}

	if c.FlushDelayThreshold <= 0 {
		c.FlushDelayThreshold = DefaultFlushDelayThreshold
	}

	if c.InitialRetryInterval <= 0 {
		c.InitialRetryInterval = DefaultInitialRetryInterval
	}

	if c.MaxRetryCount <= 0 {
		c.MaxRetryCount = DefaultMaxRetryCount
	}

	return c
}

// MsgPayload - MsgPayload Payload model implementing Message interface.
type MsgPayload struct {
	// MessageId - message reference id
	MessageId string
	// Data - message payload
	Data []byte
	// Attributes - message attributes
	Attributes map[string]string
}

// GetMsgRefId - Get message id
func (msg *MsgPayload) GetMsgRefId() string {
	return msg.MessageId
}

// GetPayload - Get message payload
func (msg *MsgPayload) GetPayload() []byte {
	return msg.Data
}

// GetAttributes - Get message attributes
func (msg *MsgPayload) GetAttributes() map[string]string {
	return msg.Attributes
}
