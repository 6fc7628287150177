// Package mail queues outbound email on a durable broker queue and delivers
// it from a background consumer, so request handlers never block on SMTP.
package mail

import (
	"context"
	"fmt"
)

// Message is the queue payload for one outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    bool   `json:"html"`
}

// Enqueuer hands a message to the outbound queue. Implementations must be
// safe for concurrent use.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg Message) error
}

// Sender performs the actual delivery of a dequeued message.
type Sender interface {
	Send(msg Message) error
}

// Composer builds the transactional emails the auth flows send. Links point
// at the frontend, which relays the embedded token back to the API.
type Composer struct {
	frontendURL string
}

func NewComposer(frontendURL string) *Composer {
	return &Composer{frontendURL: frontendURL}
}

func (c *Composer) VerificationEmail(to, token string) Message {
	link := fmt.Sprintf("%s/verify-email?token=%s", c.frontendURL, token)
	return Message{
		To:      to,
		Subject: "Verify your Gabriel Solar Energy account",
		Body: fmt.Sprintf(
			"<p>Welcome to Gabriel Solar Energy.</p>"+
				"<p>Please confirm your email address by clicking the link below. "+
				"The link is valid for 24 hours.</p>"+
				"<p><a href=%q>Verify my email</a></p>", link),
		HTML: true,
	}
}

func (c *Composer) PasswordResetEmail(to, token string) Message {
	link := fmt.Sprintf("%s/reset-password?token=%s", c.frontendURL, token)
	return Message{
		To:      to,
		Subject: "Reset your Gabriel Solar Energy password",
		Body: fmt.Sprintf(
			"<p>We received a request to reset your password.</p>"+
				"<p>The link below is valid for 15 minutes. If you did not ask "+
				"for a reset you can ignore this email.</p>"+
				"<p><a href=%q>Reset my password</a></p>", link),
		HTML: true,
	}
}
