package notify

import (
	"context"
	"fmt"
	"regexp"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/resend/resend-go/v2"
)

var invalidTagChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// tagValue strips characters resend rejects in tag values.
func tagValue(v string) string {
	return invalidTagChars.ReplaceAllString(v, "_")
}

type emailSink struct {
	client *resend.Client
	from   string
	to     []string
}

// NewEmail sends events as plain text mails through the resend api.
func NewEmail(client *resend.Client, from string, to []string) Sink {
	return &emailSink{
		client: client,
		from:   from,
		to:     to,
	}
}

func (s *emailSink) Send(ctx context.Context, event Event) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      s.to,
		Subject: event.Subject(),
		Text:    event.Text(),
		Tags: []resend.Tag{
			{Name: "pipeline", Value: tagValue(event.Pipeline)},
			{Name: "event", Value: string(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: error sending email: %w", errdefs.ErrTransport, err)
	}

	return nil
}
