// Package notify sends customer e-mails.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/fairyhunter13/ecommerce-service/internal/obs"
)

// Email is a plain-text message to one recipient.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers e-mails.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// SESAPI is the subset of *sesv2.Client used by SESMailer.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends through Amazon SES. The sender is also the reply-to
// address.
type SESMailer struct {
	client SESAPI
	sender string
}

func NewSESMailer(client SESAPI, sender string) *SESMailer {
	return &SESMailer{client: client, sender: sender}
}

func (m *SESMailer) Send(ctx context.Context, e Email) error {
	out, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.sender),
		ReplyToAddresses: []string{m.sender},
		Destination:      &sestypes.Destination{ToAddresses: []string{e.To}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Charset: aws.String("UTF-8"), Data: aws.String(e.Subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Charset: aws.String("UTF-8"), Data: aws.String(e.Body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", e.To, err)
	}
	obs.Logger.Info("email_sent", "ses_message_id", aws.ToString(out.MessageId))
	return nil
}

// LogMailer only logs e-mails. It backs the local server.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, e Email) error {
	obs.Logger.Info("email_sent", "to", e.To, "subject", e.Subject, "body", e.Body)
	return nil
}
