package mail

import (
	"fmt"
	"html"
	"strings"
)

// WelcomeEmail is the fixed subscriber welcome message.
func WelcomeEmail(from, to string) Message {
	return Message{
		From:    from,
		To:      []string{to},
		Subject: "Welcome to the OUTPLAY newsletter",
		HTML: `<div style="font-family:Helvetica,Arial,sans-serif;max-width:560px;margin:0 auto;padding:32px 24px">
  <h1 style="font-size:22px;letter-spacing:0.04em">YOU'RE IN.</h1>
  <p>Thanks for subscribing. Expect sharp takes on branding, no filler,
  roughly once a month.</p>
  <p>If this wasn't you, just ignore this email &mdash; you won't hear from
  us again.</p>
  <p style="margin-top:32px;color:#888">&mdash; OUTPLAY</p>
</div>`,
	}
}

// ContactAlertEmail is the internal notification for a new contact-form
// submission. Visitor-provided fields are escaped before interpolation.
func ContactAlertEmail(from, admin string, fields map[string]string) Message {
	var rows strings.Builder
	for _, key := range []string{"name", "email", "topic", "challenge", "obstacle", "source"} {
		v := fields[key]
		if v == "" {
			continue
		}
		rows.WriteString(fmt.Sprintf(
			`<tr><td style="padding:6px 12px;color:#888">%s</td><td style="padding:6px 12px">%s</td></tr>`,
			html.EscapeString(key), html.EscapeString(v)))
	}
	return Message{
		From:    from,
		To:      []string{admin},
		Subject: "New contact form submission",
		HTML: `<div style="font-family:Helvetica,Arial,sans-serif;max-width:560px;margin:0 auto;padding:32px 24px">
  <h1 style="font-size:18px">New contact submission</h1>
  <table style="border-collapse:collapse">` + rows.String() + `</table>
</div>`,
	}
}
