package mail

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

// Subjects are plain text; bodies are HTML and escaped.
type mailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[string]mailTemplate{
	TemplateActivate: {
		subject: "Activate your {{.app}} account",
		body: template.Must(template.New(TemplateActivate).Option("missingkey=zero").Parse(
			`<p>Hello {{.name}},</p>
<p>Welcome to {{.app}}. Confirm your address to activate your account:</p>
<p><a href="{{.link}}">{{.link}}</a></p>
<p>The link expires in {{.expires}}.</p>`)),
	},
	TemplateReset: {
		subject: "Reset your {{.app}} password",
		body: template.Must(template.New(TemplateReset).Option("missingkey=zero").Parse(
			`<p>Hello {{.name}},</p>
<p>A password reset was requested for your account. Choose a new password here:</p>
<p><a href="{{.link}}">{{.link}}</a></p>
<p>If you did not ask for this, ignore this message. The link expires in {{.expires}}.</p>`)),
	},
	TemplateInvite: {
		subject: "{{.inviter}} invited you to {{.group}} on {{.app}}",
		body: template.Must(template.New(TemplateInvite).Option("missingkey=zero").Parse(
			`<p>Hello,</p>
<p>{{.inviter}} invited you to join the group <strong>{{.group}}</strong>.</p>
<p><a href="{{.link}}">Accept the invitation</a></p>
<p>The invitation expires in {{.expires}}.</p>`)),
	},
}

// Render returns the subject and HTML body for msg.
func Render(msg Message) (string, string, error) {
	tpl, ok := templates[msg.Template]
	if !ok {
		return "", "", fmt.Errorf("unknown mail template %q", msg.Template)
	}

	subject, err := texttemplate.New("subject").Option("missingkey=zero").Parse(tpl.subject)
	if err != nil {
		return "", "", err
	}
	var subj bytes.Buffer
	if err := subject.Execute(&subj, msg.Data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}

	var body bytes.Buffer
	if err := tpl.body.Execute(&body, msg.Data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subj.String(), body.String(), nil
}
