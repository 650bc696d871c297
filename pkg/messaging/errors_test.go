package messaging_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marcodd23/go-dal-core/pkg/messaging"
)

// TestErrorCodeMatching checks codes survive wrapping and unclassified errors never match.
func TestErrorCodeMatching(t *testing.T) {
	cause := errors.New("connection reset")
	flush := messaging.NewMessagingErrorCodef(messaging.ErrorFlushingTopic, cause, "%s", "orders")
	wrapped := fmt.Errorf("closing: %w", flush)

	assert.Equal(t, "error flushing topic orders: connection reset", flush.Error())
	assert.True(t, messaging.HasCode(wrapped, messaging.ErrorFlushingTopic))
	assert.False(t, messaging.HasCode(wrapped, messaging.ErrorPublisherClosed))
	assert.ErrorIs(t, wrapped, cause)
	assert.ErrorIs(t, wrapped, messaging.NewMessagingErrorCode(messaging.ErrorFlushingTopic, nil))

	plain := messaging.NewMessagingError(nil, "something %d", 1)
	assert.NotErrorIs(t, plain, messaging.NewMessagingError(nil, "something %d", 1))
	assert.False(t, messaging.HasCode(cause, messaging.ErrorFlushingTopic))
}
