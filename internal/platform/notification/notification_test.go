package notification

import (
	"context"
	"strings"
	"testing"
)

func TestRender_ReplacesPlaceholders(t *testing.T) {
	e := NewTemplateEngine()
	subject, body, err := e.Render(TemplateFamilyInvitation, map[string]string{
		"patient_name": "Rosa",
		"member_name":  "Sam",
		"token":        "fam_abc",
		"expires_at":   "2026-03-08",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(subject, "Rosa") {
		t.Errorf("expected patient name in subject, got %q", subject)
	}
	if !strings.Contains(body, "fam_abc") {
		t.Errorf("expected token in body, got %q", body)
	}
	if strings.Contains(body, "{{") {
		t.Errorf("unreplaced placeholder in body: %q", body)
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render("no-such-template", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRender_MissingDataLeftAsIs(t *testing.T) {
	e := NewTemplateEngine()
	_, body, err := e.Render(TemplateAccessRevoked, map[string]string{"member_name": "Sam"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "{{patient_name}}") {
		t.Errorf("expected unresolved placeholder to remain, got %q", body)
	}
}

func TestSendFromTemplate_Success(t *testing.T) {
	sender := &MockEmailSender{}
	m := NewManager(sender, NewTemplateEngine())

	n, err := m.SendFromTemplate(context.Background(), TemplateInviteAccepted,
		map[string]string{"patient_name": "Rosa", "member_name": "Sam"}, "rosa@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Status != "sent" {
		t.Errorf("expected status sent, got %q", n.Status)
	}
	calls := sender.Calls()
	if len(calls) != 1 || calls[0].To != "rosa@example.com" {
		t.Errorf("unexpected sender calls: %+v", calls)
	}
}

func TestSendFromTemplate_SenderFailureRecorded(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	m := NewManager(sender, NewTemplateEngine())

	n, err := m.SendFromTemplate(context.Background(), TemplateAccessRevoked,
		map[string]string{"patient_name": "Rosa", "member_name": "Sam"}, "sam@example.com")
	if err == nil {
		t.Fatal("expected error from failing sender")
	}
	if n.Status != "failed" || n.Error != "smtp down" {
		t.Errorf("expected failed status recorded, got %+v", n)
	}
}

func TestRecent_Bounded(t *testing.T) {
	sender := &MockEmailSender{}
	m := NewManager(sender, NewTemplateEngine())
	for i := 0; i < recentLimit+10; i++ {
		m.Send(context.Background(), &Notification{Recipient: "x@example.com", Body: "hi"})
	}
	if got := len(m.Recent()); got != recentLimit {
		t.Errorf("expected recent history capped at %d, got %d", recentLimit, got)
	}
}
