package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/assetgate/ports"
)

// DefaultTopic is the queue consumed by the delivery worker.
const DefaultTopic = "assetgate.mail.outbound"

// MailMessage is the queued representation of an outbound email.
type MailMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

var verificationTemplate = template.Must(template.New("verification").Parse(
	`<p>Hello {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
<p>Your verification code is <strong>{{.Code}}</strong>. It expires in 10 minutes.</p>`))

// WatermillMailer enqueues emails on a watermill topic. Delivery to the
// provider happens in a separate consumer.
type WatermillMailer struct {
	publisher message.Publisher
	topic     string
	from      string
}

var _ ports.Mailer = (*WatermillMailer)(nil)

func NewWatermillMailer(publisher message.Publisher, topic, from string) *WatermillMailer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillMailer{publisher: publisher, topic: topic, from: from}
}

func (m *WatermillMailer) SendVerificationEmail(ctx context.Context, to, code, name string) error {
	var html bytes.Buffer
	if err := verificationTemplate.Execute(&html, struct{ Code, Name string }{code, name}); err != nil {
		return fmt.Errorf("failed to render verification email: %w", err)
	}
	text := fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code)
	return m.SendEmail(ctx, to, "Verify your email", html.String(), text)
}

func (m *WatermillMailer) SendEmail(ctx context.Context, to, subject, html, text string) error {
	if to == "" {
		return errors.New("mail recipient is empty")
	}

	payload, err := json.Marshal(MailMessage{
		From:    m.from,
		To:      to,
		Subject: subject,
		HTML:    html,
		Text:    text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mail: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := m.publisher.Publish(m.topic, msg); err != nil {
		return fmt.Errorf("failed to enqueue mail: %w", err)
	}
	return nil
}
