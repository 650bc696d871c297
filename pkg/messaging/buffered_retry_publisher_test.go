package messaging_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcodd23/go-dal-core/pkg/messaging"
)

func testMessage() *messaging.MsgPayload {
	return &messaging.MsgPayload{
		MessageId: "msg-1",
		Data:      []byte(`{"channel":"event_log"}`),
		Attributes: map[string]string{
			"channel": "event_log",
		},
	}
}

// TestRetryLogicAndBackgroundRoutine checks a failing batch is retried with backoff until it
// succeeds and the topic is released from the cache afterwards.
func TestRetryLogicAndBackgroundRoutine(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	maxRetryCount := int16(3)
	flushDelayThreshold := time.Millisecond * 10

	publishConfig := messaging.TopicPublishConfig{
		BatchSize:            2,
		MaxRetryCount:        maxRetryCount,
		FlushDelayThreshold:  flushDelayThreshold,
		InitialRetryInterval: time.Millisecond,
	}

	var (
		attempts      int16
		attemptsMutex sync.Mutex
		succeeded     = make(chan struct{})
	)

	mockResult := MockPublishResult{
		getFunc: func(ctx context.Context) (string, error) {
			attemptsMutex.Lock()
			defer attemptsMutex.Unlock()

			attempts++
			if attempts < maxRetryCount {
				return "", errors.New("publish error")
			}

			close(succeeded)

			return "message-id", nil
		},
		readyCh: make(chan struct{}, 1),
	}

	mockClient := &MockClient{
		topics: map[string]messaging.Topic{
			"test-topic": &MockTopic{
				id: "test-topic",
				publishFunc: func(ctx context.Context, msg messaging.Message) messaging.PublishResult {
					return mockResult
				},
			},
		},
	}

	bufferedPublisher, err := messaging.NewBufferedPublisherWithRetry(ctx, mockClient, publishConfig, nil)
	require.NoError(t, err)

	err = bufferedPublisher.Publish(ctx, "test-topic", testMessage())
	assert.NoError(t, err)

	select {
	case <-succeeded:
	case <-ctx.Done():
		t.Fatal("message was never published")
	}

	topicCache, ok := reflect.ValueOf(bufferedPublisher).Elem().FieldByName("TopicCache").Interface().(*messaging.TopicCache)
	assert.Truef(t, ok, "Failed to convert reflect.Value back to *TopicCache")

	assert.Eventually(t, func() bool {
		topicCache.Lock()
		defer topicCache.Unlock()

		return len(topicCache.Cache) == 0
	}, time.Second, 5*time.Millisecond, "topic cache should be empty at the end of the test")

	attemptsMutex.Lock()
	assert.Equal(t, maxRetryCount, attempts)
	attemptsMutex.Unlock()

	assert.NoError(t, bufferedPublisher.Close(ctx))
}

// TestRetryGivesUpAfterMaxRetryCount checks a batch that never succeeds is dropped after the
// initial attempt plus MaxRetryCount-1 retries.
func TestRetryGivesUpAfterMaxRetryCount(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		attempts      int
		attemptsMutex sync.Mutex
	)

	mockResult := MockPublishResult{
		getFunc: func(ctx context.Context) (string, error) {
			attemptsMutex.Lock()
			defer attemptsMutex.Unlock()

			attempts++

			return "", errors.New("broker unavailable")
		},
	}

	mockClient := &MockClient{
		topics: map[string]messaging.Topic{
			"test-topic": &MockTopic{
				id: "test-topic",
				publishFunc: func(ctx context.Context, msg messaging.Message) messaging.PublishResult {
					return mockResult
				},
			},
		},
	}

	bufferedPublisher, err := messaging.NewBufferedPublisherWithRetry(ctx, mockClient, messaging.TopicPublishConfig{
		BatchSize:            1,
		MaxRetryCount:        3,
		InitialRetryInterval: time.Millisecond,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, bufferedPublisher.Publish(ctx, "test-topic", testMessage()))

	assert.Eventually(t, func() bool {
		bufferedPublisher.TopicCache.Lock()
		defer bufferedPublisher.TopicCache.Unlock()

		return len(bufferedPublisher.TopicCache.Cache) == 0
	}, 5*time.Second, 5*time.Millisecond)

	attemptsMutex.Lock()
	assert.Equal(t, 3, attempts)
	attemptsMutex.Unlock()
}

// TestBufferedUntilBatchSize checks messages stay buffered until the batch is full.
func TestBufferedUntilBatchSize(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	published := make(chan messaging.Message, 10)
	mockClient := &MockClient{
		topics: map[string]messaging.Topic{
			"test-topic": &MockTopic{
				id: "test-topic",
				publishFunc: func(ctx context.Context, msg messaging.Message) messaging.PublishResult {
					published <- msg
					return MockPublishResult{getFunc: func(context.Context) (string, error) { return "id", nil }}
				},
			},
		},
	}

	bufferedPublisher, err := messaging.NewBufferedPublisherWithRetry(ctx, mockClient, messaging.TopicPublishConfig{
		BatchSize:           3,
		FlushDelayThreshold: time.Hour,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, bufferedPublisher.Publish(ctx, "test-topic", testMessage()))
	require.NoError(t, bufferedPublisher.Publish(ctx, "test-topic", testMessage()))
	assert.Len(t, bufferedPublisher.GetBufferedMessages("test-topic"), 2)
	assert.Empty(t, published)

	require.NoError(t, bufferedPublisher.Publish(ctx, "test-topic", testMessage()))
	assert.Empty(t, bufferedPublisher.GetBufferedMessages("test-topic"))
	assert.Len(t, published, 3)
}

// TestClose checks Close flushes the buffer, closes the client and refuses further calls.
func TestClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	published := make(chan messaging.Message, 1)
	mockClient := &MockClient{
		topics: map[string]messaging.Topic{
			"test-topic": &MockTopic{
				id: "test-topic",
				publishFunc: func(ctx context.Context, msg messaging.Message) messaging.PublishResult {
					published <- msg
					return MockPublishResult{getFunc: func(context.Context) (string, error) { return "message-id", nil }}
				},
			},
		},
	}

	bufferedPublisher, err := messaging.NewBufferedPublisherWithRetry(ctx, mockClient, messaging.TopicPublishConfig{
		BatchSize:           10,
		FlushDelayThreshold: time.Hour,
	}, nil)
	require.NoError(t, err)

	err = bufferedPublisher.Publish(ctx, "test-topic", testMessage())
	assert.NoError(t, err)

	// Close the BufferedPublisher
	err = bufferedPublisher.Close(ctx)
	assert.NoError(t, err)
	assert.Len(t, published, 1)
	assert.True(t, mockClient.closed)

	// Check if the background routines have stopped by calling Flush after Close
	err = bufferedPublisher.Flush(ctx)
	assert.Error(t, err, "Flush should return an error after Close")

	var msgErr *messaging.Error
	err = bufferedPublisher.Publish(ctx, "test-topic", testMessage())
	require.ErrorAs(t, err, &msgErr)
	assert.Equal(t, messaging.ErrorPublisherClosed, msgErr.Code)
}

// TestNilClient checks the constructor rejects a missing client.
func TestNilClient(t *testing.T) {
	_, err := messaging.NewBufferedPublisherWithRetry(context.Background(), nil, messaging.TopicPublishConfig{}, nil)

	var msgErr *messaging.Error
	require.ErrorAs(t, err, &msgErr)
	assert.Equal(t, messaging.ErrorInitializingPubsubClient, msgErr.Code)
}
