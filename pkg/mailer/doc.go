// Package mailer delivers the platform's transactional email: provisioning
// invitations, usage warnings, suspension and plan-change notices.
//
// EmailSender is the transport seam. Production wires the Postmark
// implementation; development and tests use the log sender, which only
// records what would have been sent. Message bodies are built by the
// template helpers so services never concatenate HTML themselves.
package mailer
