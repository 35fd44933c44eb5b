package server

import "github.com/joaodesousa/outplay-forms/internal/convo"

// SubscribeRequest is the body shared by the newsletter endpoints. Honeypot
// is a hidden field real visitors never fill in.
type SubscribeRequest struct {
	Email    string `json:"email"`
	Source   string `json:"source"`
	Honeypot string `json:"honeypot"`
}

// ContactRequest carries the guided Q&A transcript from the contact form.
// Email is optional; when absent it is recovered from the transcript.
type ContactRequest struct {
	Conversation []convo.Turn `json:"conversation"`
	Email        string       `json:"email"`
	Source       string       `json:"source"`
}

// MailingListRequest is the body of the generic mailing-list subscribe.
type MailingListRequest struct {
	Email string `json:"email"`
}
