// Package mail sends transactional email through Resend. The dispatcher
// only sees the Mailer interface; vendor quirks (429s, per-second limits)
// stay in here.
package mail

import "context"

// Message is one outbound transactional email.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

// Mailer sends a single message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
