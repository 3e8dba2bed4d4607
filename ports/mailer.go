package ports

import "context"

// Mailer delivers transactional email. Callers treat delivery as best-effort.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, code, name string) error
	SendEmail(ctx context.Context, to, subject, html, text string) error
}
