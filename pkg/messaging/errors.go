package messaging

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode classifies a messaging failure.
type ErrorCode int

const (
	ErrorUnclassified ErrorCode = iota - 1
	ErrorPublisherClosed
	ErrorInitializingPubsubClient
	ErrorSerializingJsonMessage
	ErrorClosingPubsubClient
	ErrorFlushingTopic
	ErrorTopicNotCached
	ErrorRelayTopicMissing
)

var errorMessages = map[ErrorCode]string{
	ErrorPublisherClosed:          "publisher is already closed",
	ErrorInitializingPubsubClient: "error initializing the broker client",
	ErrorSerializingJsonMessage:   "error serializing change event",
	ErrorClosingPubsubClient:      "error closing the broker client",
	ErrorFlushingTopic:            "error flushing topic",
	ErrorTopicNotCached:           "topic not found in cache",
	ErrorRelayTopicMissing:        "no destination topic for the change relay",
}

// Error is a messaging failure with its classification.
type Error struct {
	Code    ErrorCode
	message string
	err     error
}

// NewMessagingErrorCode returns an error with the predefined message of code.
func NewMessagingErrorCode(code ErrorCode, err error) *Error {
	return &Error{Code: code, message: errorMessages[code], err: err}
}

// NewMessagingErrorCodef returns an error of code with the predefined message followed by detail.
func NewMessagingErrorCodef(code ErrorCode, err error, detail string, args ...any) *Error {
	return &Error{Code: code, message: errorMessages[code] + " " + fmt.Sprintf(detail, args...), err: err}
}

// NewMessagingError returns an unclassified error.
func NewMessagingError(err error, msg string, args ...any) *Error {
	return &Error{Code: ErrorUnclassified, message: fmt.Sprintf(msg, args...), err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is matches another *Error carrying the same classified code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)

	return ok && e.Code != ErrorUnclassified && t.Code == e.Code
}

// HasCode reports whether err, or anything it wraps, is a messaging error with code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}

		if e.Code == code {
			return true
		}

		err = e.err
	}

	return false
}
