package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESMailerBuildsSimpleMessage(t *testing.T) {
	fake := &fakeSES{}
	m := NewSESMailer(fake, "orders@shop.test")
	if err := m.Send(context.Background(), Email{To: "a@b.com", Subject: "Hi", Body: "Hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	in := fake.in
	if aws.ToString(in.FromEmailAddress) != "orders@shop.test" || len(in.ReplyToAddresses) != 1 || in.ReplyToAddresses[0] != "orders@shop.test" {
		t.Fatalf("sender: %+v", in)
	}
	if in.Destination.ToAddresses[0] != "a@b.com" {
		t.Fatalf("recipient: %v", in.Destination.ToAddresses)
	}
	msg := in.Content.Simple
	if aws.ToString(msg.Subject.Data) != "Hi" || aws.ToString(msg.Body.Text.Data) != "Hello" || aws.ToString(msg.Body.Text.Charset) != "UTF-8" {
		t.Fatalf("content: %+v", msg)
	}
}

func TestSESMailerWrapsErrors(t *testing.T) {
	cause := errors.New("throttled")
	m := NewSESMailer(&fakeSES{err: cause}, "s@x")
	if err := m.Send(context.Background(), Email{To: "a@b.com"}); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if err := (LogMailer{}).Send(context.Background(), Email{To: "a@b.com"}); err != nil {
		t.Fatalf("log mailer: %v", err)
	}
}
