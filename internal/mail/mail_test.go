package mail

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewPicksBackend(t *testing.T) {
	m, err := New(zerolog.Nop(), "", "from@example.com", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(*LogMailer); !ok {
		t.Fatal("expected LogMailer without SMTP address")
	}

	m, err = New(zerolog.Nop(), "smtp.example.com:587", "from@example.com", "u", "p")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(*SMTPMailer); !ok {
		t.Fatal("expected SMTPMailer with SMTP address")
	}
}

func TestNewSMTPMailerBadAddr(t *testing.T) {
	for _, addr := range []string{"smtp.example.com", "smtp.example.com:smtp"} {
		if _, err := NewSMTPMailer(addr, "from@example.com", "", ""); err == nil {
			t.Errorf("expected error for %q", addr)
		}
	}
}

func TestLogMailerLogsLink(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(zerolog.New(&buf))

	if err := m.SendVerification(context.Background(), "a@example.com", "http://x/auth/verify?token=abc"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "token=abc") {
		t.Fatalf("link not logged: %s", buf.String())
	}
}

func TestVerificationMessageRejectsHeaderInjection(t *testing.T) {
	if _, err := verificationMessage("from@example.com", "a@example.com\r\nBcc: b@example.com", "link"); err == nil {
		t.Fatal("expected error")
	}
}

func TestVerificationMessage(t *testing.T) {
	msg, err := verificationMessage("from@example.com", "to@example.com", "http://link")
	if err != nil {
		t.Fatal(err)
	}

	rcpts, err := msg.GetRecipients()
	if err != nil {
		t.Fatal(err)
	}
	if len(rcpts) != 1 || rcpts[0] != "to@example.com" {
		t.Fatalf("unexpected recipients %v", rcpts)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Subject: Verify your chatboard email") {
		t.Fatalf("subject missing: %s", out)
	}
	if !strings.Contains(out, "http://link") {
		t.Fatalf("link missing from body: %s", out)
	}
}
