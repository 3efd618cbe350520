package mailer

import "context"

// EmailSender delivers one email. Implementations must be safe for
// concurrent use.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams describes one outbound message. Tag groups messages in
// the provider's analytics (invitation, usage-warning, suspension...).
type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Tag      string `json:"tag,omitempty"`
}
