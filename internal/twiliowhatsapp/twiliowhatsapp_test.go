package twiliowhatsapp

import (
	"context"
	"testing"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Error("expected error without a from number")
	}
}

func TestNewClientWithOptions(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	c, err := NewClient(
		WithAccountSID("AC123"),
		WithAuthToken("token"),
		WithFromWhats("whatsapp:+15550001111"),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.fromWhats != "whatsapp:+15550001111" {
		t.Errorf("unexpected from number: %q", c.fromWhats)
	}
}

func TestNewClientEnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC456")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("TWILIO_FROM_NUMBER", "whatsapp:+15550002222")

	c, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.fromWhats != "whatsapp:+15550002222" {
		t.Errorf("unexpected from number: %q", c.fromWhats)
	}
}

func TestMockClientRecordsMessages(t *testing.T) {
	mock := NewMockClient()
	ctx := context.Background()

	if err := mock.SendMessage(ctx, "+15551234567", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	sent := mock.Sent()
	if len(sent) != 1 || sent[0].To != "+15551234567" || sent[0].Body != "hello" {
		t.Errorf("unexpected recorded messages: %+v", sent)
	}
}
