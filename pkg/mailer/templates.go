package mailer

import (
	"fmt"
	"html"
	"time"
)

// Tags used to group platform email in provider analytics.
const (
	TagInvitation    = "tenant-invitation"
	TagUsageWarning  = "usage-warning"
	TagSuspension    = "tenant-suspension"
	TagPlanChange    = "plan-change"
	TagPasswordReset = "password-reset"
)

// Invitation builds the provisioning invitation carrying the password
// reset token and activation link for the new tenant admin.
func Invitation(to, tenantName, activationURL string) SendEmailParams {
	name := html.EscapeString(tenantName)
	return SendEmailParams{
		SendTo:  to,
		Subject: fmt.Sprintf("Your %s workspace is ready", name),
		Tag:     TagInvitation,
		BodyHTML: fmt.Sprintf(`<h2>Welcome to %s</h2>
<p>Your workspace has been provisioned. Set your password and sign in:</p>
<p><a href="%s">Activate your account</a></p>
<p>The link expires in 48 hours. If you did not expect this invitation you can ignore it.</p>`,
			name, html.EscapeString(activationURL)),
	}
}

// UsageWarning builds the 90%-of-limit warning for a tenant admin.
func UsageWarning(to, tenantName, resource string, current, limit int64) SendEmailParams {
	name := html.EscapeString(tenantName)
	return SendEmailParams{
		SendTo:  to,
		Subject: fmt.Sprintf("%s: approaching your %s limit", name, resource),
		Tag:     TagUsageWarning,
		BodyHTML: fmt.Sprintf(`<h2>Usage warning</h2>
<p>Your workspace <strong>%s</strong> is at %d of %d allowed %s.</p>
<p>Upgrade your plan to avoid interruption once the limit is reached.</p>`,
			name, current, limit, html.EscapeString(resource)),
	}
}

// SuspensionNotice tells the tenant admin the workspace is suspended and
// until when self-service recovery is possible.
func SuspensionNotice(to, tenantName, reason string, graceEndsAt time.Time) SendEmailParams {
	name := html.EscapeString(tenantName)
	return SendEmailParams{
		SendTo:  to,
		Subject: fmt.Sprintf("%s has been suspended", name),
		Tag:     TagSuspension,
		BodyHTML: fmt.Sprintf(`<h2>Workspace suspended</h2>
<p>Your workspace <strong>%s</strong> has been suspended: %s.</p>
<p>Resolve the issue before %s to restore access without contacting support.</p>`,
			name, html.EscapeString(reason), graceEndsAt.UTC().Format("January 2, 2006")),
	}
}

// PasswordReset carries the reset link for a requested password reset.
func PasswordReset(to, resetURL string) SendEmailParams {
	return SendEmailParams{
		SendTo:  to,
		Subject: "Reset your password",
		Tag:     TagPasswordReset,
		BodyHTML: fmt.Sprintf(`<h2>Password reset</h2>
<p>Someone requested a password reset for this address. If it was you, follow the link:</p>
<p><a href="%s">Reset password</a></p>
<p>The link expires in one hour. Otherwise you can ignore this message.</p>`,
			html.EscapeString(resetURL)),
	}
}

// PlanChanged confirms a subscription plan switch.
func PlanChanged(to, tenantName, planName string, upgraded bool) SendEmailParams {
	name := html.EscapeString(tenantName)
	direction := "downgraded"
	if upgraded {
		direction = "upgraded"
	}
	return SendEmailParams{
		SendTo:  to,
		Subject: fmt.Sprintf("%s: plan %s to %s", name, direction, planName),
		Tag:     TagPlanChange,
		BodyHTML: fmt.Sprintf(`<h2>Plan change confirmed</h2>
<p>Your workspace <strong>%s</strong> is now on the <strong>%s</strong> plan.</p>`,
			name, html.EscapeString(planName)),
	}
}
