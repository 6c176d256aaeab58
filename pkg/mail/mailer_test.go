package mail

import (
	"convai-builder-go/internal/config"
	"testing"
)

func TestSendDisabledIsNoop(t *testing.T) {
	m := NewMailer(config.MailConfig{})
	if m.Enabled() {
		t.Fatal("mailer without smtp host should be disabled")
	}
	if err := m.Send("subject", "body"); err != nil {
		t.Errorf("Send on disabled mailer: %v", err)
	}
}

func TestComposeSplitsRecipients(t *testing.T) {
	m := NewMailer(config.MailConfig{SMTPHost: "smtp.example.com", Username: "bot@example.com", AlertTo: "a@example.com, b@example.com,"})
	e := m.compose("Usage alert", "80% used")
	if e.From != "bot@example.com" {
		t.Errorf("From = %q", e.From)
	}
	if len(e.To) != 2 || e.To[1] != "b@example.com" {
		t.Errorf("To = %v", e.To)
	}
	if string(e.Text) != "80% used" {
		t.Errorf("Text = %q", e.Text)
	}
}
