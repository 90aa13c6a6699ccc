package mail

import "context"

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a single message. Implementations must return an error
// when delivery was not accepted by the provider.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}
