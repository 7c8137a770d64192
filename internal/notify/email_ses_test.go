package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type stubSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (s *stubSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	s.input = in
	if s.err != nil {
		return nil, s.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSenderBuildsMessage(t *testing.T) {
	api := &stubSES{}
	sender := newSESSender(api, SESConfig{FromEmail: "no-reply@example.com"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      []string{"arquiteto@example.com"},
		ReplyTo: "studio@example.com",
		Subject: "Briefing concluído",
		Text:    "texto",
		HTML:    "<p>texto</p>",
		Tags:    map[string]string{"tenant_id": "t-1", "briefing_id": "b-1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != `"Briefing" <no-reply@example.com>` {
		t.Fatalf("unexpected from address %q", got)
	}
	if got := api.input.Destination.ToAddresses; len(got) != 1 || got[0] != "arquiteto@example.com" {
		t.Fatalf("unexpected destination %v", got)
	}
	body := api.input.Content.Simple.Body
	if body.Text == nil || body.Html == nil {
		t.Fatalf("expected text and html parts")
	}
	if got := api.input.ReplyToAddresses; len(got) != 1 || got[0] != "studio@example.com" {
		t.Fatalf("unexpected reply-to %v", got)
	}
	tags := api.input.EmailTags
	if len(tags) != 2 || aws.ToString(tags[0].Name) != "briefing_id" || aws.ToString(tags[1].Value) != "t-1" {
		t.Fatalf("expected sorted tags, got %+v", tags)
	}
}

func TestSESSenderWrapsErrors(t *testing.T) {
	api := &stubSES{err: errors.New("throttled")}
	sender := newSESSender(api, SESConfig{FromEmail: "no-reply@example.com"}, nil)

	if err := sender.Send(context.Background(), EmailMessage{To: []string{"a@example.com"}, Subject: "s", Text: "b"}); err == nil {
		t.Fatal("expected error")
	}
}
