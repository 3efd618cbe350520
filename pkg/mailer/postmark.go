package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/mrz1836/postmark"
)

// PostmarkConfig holds the Postmark transport configuration. Tokens are
// optional so development environments can run on the log sender instead.
type PostmarkConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail  string `env:"POSTMARK_FROM_EMAIL,required"`
	SupportEmail string `env:"SUPPORT_EMAIL,required"`
}

type postmarkSender struct {
	client *postmark.Client
	config PostmarkConfig
}

// NewPostmarkSender creates a Postmark-backed sender. Configuration is
// validated up front so a broken deployment fails at startup, not on the
// first invitation.
func NewPostmarkSender(cfg PostmarkConfig) (EmailSender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: ServerToken is required", ErrInvalidConfig)
	}
	if cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: AccountToken is required", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(cfg.SenderEmail); err != nil {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid address", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(cfg.SupportEmail); err != nil {
		return nil, fmt.Errorf("%w: SupportEmail must be a valid address", ErrInvalidConfig)
	}

	return &postmarkSender{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		config: cfg,
	}, nil
}

// SendEmail delivers through Postmark's transactional API. Reply-To goes
// to support so tenant admins answering an invitation reach a human.
func (s *postmarkSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := validateParams(params); err != nil {
		return err
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.config.SenderEmail,
		ReplyTo:    s.config.SupportEmail,
		To:         params.SendTo,
		Subject:    params.Subject,
		Tag:        params.Tag,
		HTMLBody:   params.BodyHTML,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrFailedToSend, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSend, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

func validateParams(params SendEmailParams) error {
	if params.SendTo == "" || params.Subject == "" || params.BodyHTML == "" {
		return ErrInvalidParams
	}
	if _, err := mail.ParseAddress(params.SendTo); err != nil {
		return fmt.Errorf("%w: bad recipient", ErrInvalidParams)
	}
	return nil
}
