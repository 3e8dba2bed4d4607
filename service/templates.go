package service

import (
	"bytes"
	"html/template"
)

var (
	resetTemplate = template.Must(template.New("reset").Parse(
		`<p>Hello {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
<p>A password reset was requested for your account. The link below is valid for one hour.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>If you did not request this, ignore this email.</p>`))

	kycTemplate = template.Must(template.New("kyc").Parse(
		`<p>Hello {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
{{if .Approved}}<p>Your identity verification was approved. You can now invest.</p>
{{else}}<p>Your identity verification was not approved. Contact support for details.</p>
{{end}}`))
)

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
