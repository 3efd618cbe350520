package mailer

import "errors"

var (
	ErrFailedToSend  = errors.New("mailer: failed to send email")
	ErrInvalidConfig = errors.New("mailer: invalid config")
	ErrInvalidParams = errors.New("mailer: invalid send params")
)
