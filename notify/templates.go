package notify

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// message names a rendered email.
type message string

const (
	msgVerification    message = "verification"
	msgPasswordReset   message = "password_reset"
	msgLockout         message = "lockout"
	msgPasswordChanged message = "password_changed"
	msgSecurityAlert   message = "security_alert"
)

// templateData is the input of every template.
type templateData struct {
	AppName   string
	Name      string
	Link      string
	ExpiresAt time.Time
	Minutes   int
	At        time.Time

	Severity    string
	Title       string
	Message     string
	IP          string
	EventCount  int
	WindowStart time.Time
	WindowEnd   time.Time
	AlertID     string
}

type emailTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

var templates = map[message]emailTemplate{
	msgVerification: mustTemplate(
		`Verify your {{.AppName}} email address`,
		`Hello {{.Name}},

Confirm your email address by opening the link below:

{{.Link}}

The link expires at {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}. If you did not create an account, ignore this message.
`,
		`<p>Hello {{.Name}},</p>
<p>Confirm your email address by opening the link below:</p>
<p><a href="{{.Link}}">Verify email address</a></p>
<p>The link expires at {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}. If you did not create an account, ignore this message.</p>
`),
	msgPasswordReset: mustTemplate(
		`Reset your {{.AppName}} password`,
		`Hello {{.Name}},

A password reset was requested for your account. Open the link below to choose a new password:

{{.Link}}

The link expires at {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}. If you did not request a reset, ignore this message.
`,
		`<p>Hello {{.Name}},</p>
<p>A password reset was requested for your account.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>The link expires at {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}. If you did not request a reset, ignore this message.</p>
`),
	msgLockout: mustTemplate(
		`Your {{.AppName}} account has been locked`,
		`Hello {{.Name}},

Your account was locked for {{.Minutes}} minutes after repeated failed sign-in attempts. It unlocks at {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}.

If this was not you, reset your password once the lock expires.
`,
		`<p>Hello {{.Name}},</p>
<p>Your account was locked for <strong>{{.Minutes}} minutes</strong> after repeated failed sign-in attempts. It unlocks at {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}.</p>
<p>If this was not you, reset your password once the lock expires.</p>
`),
	msgPasswordChanged: mustTemplate(
		`Your {{.AppName}} password was changed`,
		`Hello {{.Name}},

Your password was changed at {{.At.Format "2006-01-02 15:04 MST"}}. Other sessions have been signed out.

If you did not make this change, request a password reset immediately.
`,
		`<p>Hello {{.Name}},</p>
<p>Your password was changed at {{.At.Format "2006-01-02 15:04 MST"}}. Other sessions have been signed out.</p>
<p>If you did not make this change, request a password reset immediately.</p>
`),
	msgSecurityAlert: mustTemplate(
		`[{{.AppName}}] [{{.Severity}}] {{.Title}}`,
		`{{.Message}}

Alert:    {{.AlertID}}
Severity: {{.Severity}}
Source:   {{if .IP}}{{.IP}}{{else}}n/a{{end}}
Events:   {{.EventCount}}
Window:   {{.WindowStart.Format "15:04:05"}} to {{.WindowEnd.Format "15:04:05 MST"}}
`,
		`<p>{{.Message}}</p>
<table>
<tr><td>Alert</td><td>{{.AlertID}}</td></tr>
<tr><td>Severity</td><td>{{.Severity}}</td></tr>
<tr><td>Source</td><td>{{if .IP}}{{.IP}}{{else}}n/a{{end}}</td></tr>
<tr><td>Events</td><td>{{.EventCount}}</td></tr>
<tr><td>Window</td><td>{{.WindowStart.Format "15:04:05"}} to {{.WindowEnd.Format "15:04:05 MST"}}</td></tr>
</table>
`),
}

func mustTemplate(subject, text, html string) emailTemplate {
	return emailTemplate{
		subject: texttemplate.Must(texttemplate.New("subject").Parse(subject)),
		text:    texttemplate.Must(texttemplate.New("text").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New("html").Parse(html)),
	}
}

type rendered struct {
	Subject string
	Text    string
	HTML    string
}

func render(m message, data templateData) (rendered, error) {
	t := templates[m]
	var subject, text, html bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return rendered{}, err
	}
	if err := t.text.Execute(&text, data); err != nil {
		return rendered{}, err
	}
	if err := t.html.Execute(&html, data); err != nil {
		return rendered{}, err
	}
	return rendered{
		Subject: strings.TrimSpace(subject.String()),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
