package messaging_test

import (
	"context"
	"sync"

	"github.com/marcodd23/go-dal-core/pkg/messaging"
)

type MockClient struct {
	mu     sync.Mutex
	topics map[string]messaging.Topic
	closed bool
}

func (c *MockClient) Topic(id string) messaging.Topic {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.topics[id]
}

func (c *MockClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}

type MockTopic struct {
	id          string
	publishFunc func(ctx context.Context, msg messaging.Message) messaging.PublishResult
}

func (t *MockTopic) Publish(ctx context.Context, msg messaging.Message) messaging.PublishResult {
	return t.publishFunc(ctx, msg)
}

func (t *MockTopic) Stop() {}

func (t *MockTopic) Flush() {}

func (t *MockTopic) String() string {
	return t.id
}

func (t *MockTopic) ConfigPublishSettings(messaging.TopicPublishConfig) {}

type MockPublishResult struct {
	getFunc func(ctx context.Context) (string, error)
	readyCh chan struct{}
}

func (r MockPublishResult) Get(ctx context.Context) (string, error) {
	return r.getFunc(ctx)
}

func (r MockPublishResult) Ready() <-chan struct{} {
	return r.readyCh
}

// recordingPublisher captures what a ChangeRelay hands to the publisher.
type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	messages []messaging.Message
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, message messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, message)

	return nil
}

func (p *recordingPublisher) Flush(context.Context) error { return nil }

func (p *recordingPublisher) Close(context.Context) error { return nil }

func (p *recordingPublisher) GetBufferedMessages(string) []messaging.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.messages
}
