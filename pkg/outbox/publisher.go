package outbox

import "context"

// Message is the broker-neutral unit handed to a Publisher.
type Message struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Publisher delivers one message and returns once the broker acknowledged it.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Ping(ctx context.Context) error
}
