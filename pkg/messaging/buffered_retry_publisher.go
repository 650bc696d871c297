package messaging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcodd23/go-dal-core/pkg/logx"
)

// BufferedPublisherWithRetry - interface for the publisher
type BufferedPublisherWithRetry interface {
	Publish(ctx context.Context, topic string, message Message) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
	GetBufferedMessages(topic string) []Message
}

// TopicCache - Topic Cache with mutex access.
type TopicCache struct {
	sync.Mutex
	Cache map[string]*TopicCacheItem
}

// TopicCacheItem - topic cache item.
type TopicCacheItem struct {
	topic        Topic
	usageCounter atomic.Int32
}

// NewTopicCacheItem - TopicCacheItem constructor.
func NewTopicCacheItem(topic Topic, initialValue int32) *TopicCacheItem {
	cacheItem := &TopicCacheItem{
		topic: topic,
	}
	cacheItem.usageCounter.Store(initialValue)

	return cacheItem
}

type retryBatch struct {
	topic     Topic
	topicName string
	messages  []Message
	count     int16
}

// BuffPublisherWithRetry - buffered publisher struct implementation.
//
// Messages are buffered per topic and published when the buffer reaches BatchSize or on the
// periodic flush every FlushDelayThreshold. Failed messages are retried with exponential
// backoff, starting at InitialRetryInterval, up to MaxRetryCount times.
type BuffPublisherWithRetry struct {
	sync.Mutex
	client           Client
	publishConfig    TopicPublishConfig
	logger           logx.Logger
	bufferedMessages map[string][]Message // bufferedMessages by topic.
	TopicCache       *TopicCache
	Done             chan struct{}
	RetryCh          chan retryBatch
}

// NewBufferedPublisherWithRetry - Constructor. The background flush and retry routines run
// until Close or until ctx is done.
func NewBufferedPublisherWithRetry(
	ctx context.Context,
	client Client,
	publishConfig TopicPublishConfig,
	logger logx.Logger) (*BuffPublisherWithRetry, error) {
	if client == nil {
		return nil, NewMessagingErrorCode(ErrorInitializingPubsubClient, nil)
	}

	bp := &BuffPublisherWithRetry{
		client:           client,
		publishConfig:    publishConfig.WithDefaults(),
		logger:           logx.OrNop(logger),
		bufferedMessages: make(map[string][]Message),
		TopicCache:       &TopicCache{Cache: make(map[string]*TopicCacheItem)},
		Done:             make(chan struct{}),
		RetryCh:          make(chan retryBatch),
	}

	bp.startBackgroundRoutines(ctx)

	return bp, nil
}

// Publish - buffer a message, flushing the topic when its buffer reaches the batch size.
// The batching mechanism is abstracted from the user that just need to publish one message at time.
func (p *BuffPublisherWithRetry) Publish(ctx context.Context, topic string, message Message) error {
	p.Lock()
	defer p.Unlock()

	// Non-blocking check if the Done channel is closed
	select {
	case <-p.Done:
		return NewMessagingErrorCode(ErrorPublisherClosed, nil)
	default:
		p.bufferedMessages[topic] = append(p.bufferedMessages[topic], message)

		if int32(len(p.bufferedMessages[topic])) >= p.publishConfig.BatchSize {
			return p.flushTopic(ctx, topic)
		}

		return nil
	}
}

// Close - flush what is buffered, then close the publisher, its goroutines and the client.
func (p *BuffPublisherWithRetry) Close(ctx context.Context) error {
	p.Lock()
	defer p.Unlock()

	// Non-blocking check if the Done channel is closed
	select {
	case <-p.Done:
		return NewMessagingErrorCode(ErrorPublisherClosed, nil)
	default:
		for topic := range p.bufferedMessages {
			if err := p.flushTopic(ctx, topic); err != nil {
				p.logger.LogError(ctx, fmt.Sprintf("error flushing topic %s on close", topic), err)
			}
		}

		close(p.Done)

		err := p.client.Close()
		if err != nil {
			return NewMessagingErrorCode(ErrorClosingPubsubClient, err)
		}

		return nil
	}
}

// Background goroutines to handle periodic flush and retries.
func (p *BuffPublisherWithRetry) startBackgroundRoutines(ctx context.Context) {
	// Start a goroutine for periodic flushing
	go func() {
		ticker := time.NewTicker(p.publishConfig.FlushDelayThreshold)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				err := p.Flush(ctx)
				if err != nil {
					p.logger.LogError(ctx, "Error flushing", err)
				}
			case <-p.Done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	// Start a goroutine for handling retries
	go func() {
		for {
			select {
			case batch := <-p.RetryCh:
				p.retryHandler(ctx, batch)
			case <-p.Done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *BuffPublisherWithRetry) retryHandler(ctx context.Context, batch retryBatch) {
	if batch.count < p.publishConfig.MaxRetryCount {
		p.logger.LogDebug(ctx, fmt.Sprintf("Retrying batch (attempt %d) for topic: %s", batch.count+1, batch.topicName))
		// calculates an exponential delay factor by left-shifting 1 by batch.count times.
		// In other words, it computes 2^(batch.count).
		time.Sleep(p.publishConfig.InitialRetryInterval * time.Duration(1<<batch.count))
		failedMsgs := p.publishBatch(ctx, batch.topic, batch.messages)

		if len(failedMsgs) > 0 {
			go p.enqueueRetry(retryBatch{
				topic:     batch.topic,
				topicName: batch.topicName,
				messages:  failedMsgs,
				count:     batch.count + 1,
			})

			return
		}
	} else {
		p.logger.LogError(ctx, fmt.Sprintf("Max retry threshold reached (%d) for topic: %s. Dropped %d messages",
			p.publishConfig.MaxRetryCount, batch.topicName, len(batch.messages)))
	}

	// release the topic.
	if err := p.releaseTopicFromCache(batch.topicName); err != nil {
		p.logger.LogError(ctx, "error releasing topic", err)
	}
}

func (p *BuffPublisherWithRetry) enqueueRetry(batch retryBatch) {
	select {
	case p.RetryCh <- batch:
	case <-p.Done:
	}
}

// Flush all the messages for all the topics.
func (p *BuffPublisherWithRetry) Flush(ctx context.Context) error {
	p.Lock()
	defer p.Unlock()

	// Non-blocking check if the Done channel is closed
	select {
	case <-p.Done:
		return NewMessagingErrorCode(ErrorPublisherClosed, nil)
	default:
		for topic := range p.bufferedMessages {
			if err := p.flushTopic(ctx, topic); err != nil {
				return NewMessagingErrorCodef(ErrorFlushingTopic, err, "%s", topic)
			}
		}
	}

	return nil
}

func (p *BuffPublisherWithRetry) flushTopic(ctx context.Context, topicName string) error {
	msgToPublish := p.bufferedMessages[topicName]
	if len(msgToPublish) == 0 {
		return nil
	}

	// Reset the buffer.
	p.bufferedMessages[topicName] = nil

	pubsubTopic := p.acquireTopicFromCache(topicName)

	failedMsgs := p.publishBatch(ctx, pubsubTopic, msgToPublish)

	// If there are failed Messages, chain them in the Retry Channel to be reprocessed.
	if len(failedMsgs) > 0 {
		go p.enqueueRetry(retryBatch{
			topic:     pubsubTopic,
			topicName: topicName,
			messages:  failedMsgs,
			count:     1,
		})

		return nil
	}

	return p.releaseTopicFromCache(topicName)
}

func (p *BuffPublisherWithRetry) acquireTopicFromCache(topicId string) Topic {
	p.TopicCache.Lock()
	defer p.TopicCache.Unlock()

	cacheItem := p.TopicCache.Cache[topicId]
	if cacheItem != nil {
		cacheItem.usageCounter.Add(1)
	} else {
		topic := p.client.Topic(topicId)
		topic.ConfigPublishSettings(p.publishConfig)

		cacheItem = NewTopicCacheItem(topic, 1)

		p.TopicCache.Cache[topicId] = cacheItem
	}

	return cacheItem.topic
}

func (p *BuffPublisherWithRetry) releaseTopicFromCache(topic string) error {
	p.TopicCache.Lock()
	defer p.TopicCache.Unlock()

	cacheItem := p.TopicCache.Cache[topic]
	if cacheItem == nil {
		return NewMessagingErrorCodef(ErrorTopicNotCached, nil, "%s", topic)
	}

	if cacheItem.usageCounter.Add(-1) == 0 {
		// remove cache item and stop the topic.
		delete(p.TopicCache.Cache, topic)
		cacheItem.topic.Stop()
	}

	return nil
}

// GetBufferedMessages - get the messages in the buffer. Useful for testing.
func (p *BuffPublisherWithRetry) GetBufferedMessages(topic string) []Message {
	p.Lock()
	defer p.Unlock()

	return append([]Message(nil), p.bufferedMessages[topic]...)
}

func (p *BuffPublisherWithRetry) publishBatch(ctx context.Context, topic Topic, messages []Message) []Message {
	var failed []Message

	results := make([]PublishResult, len(messages))

	// Publish all messages in the topic and collect the results.
	for i, msg := range messages {
		results[i] = topic.Publish(ctx, msg)
	}

	topic.Flush()

	for i, res := range results {
		if _, err := res.Get(ctx); err != nil {
			p.logger.LogWarning(ctx, fmt.Sprintf("failed to publish message %s to topic %s", messages[i].GetMsgRefId(), topic.String()), err)
			failed = append(failed, messages[i])
		}
	}

	return failed
}
