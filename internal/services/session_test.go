package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chatquery/chatquery/internal/domain"
)

type sentMessage struct {
	phone   string
	message string
}

type mockMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

func (m *mockMessenger) SendMessage(ctx context.Context, phone, message string) error {
	return m.record(phone, message)
}

func (m *mockMessenger) SendMessageWithAutoRevoke(ctx context.Context, phone, message string, after time.Duration) error {
	return m.record(phone, message)
}

func (m *mockMessenger) record(phone, message string) error {
	if m.fail {
		return errors.New("send failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{phone: phone, message: message})
	return nil
}

func (m *mockMessenger) IsConnected() bool { return true }

func (m *mockMessenger) last() *sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	msg := m.sent[len(m.sent)-1]
	return &msg
}

func newTestSessionManager(messenger domain.Messenger) (*SessionManager, *MemoryIdentityStore) {
	identities := NewMemoryIdentityStore()
	manager := NewSessionManager(
		NewMemoryCredentialStore(),
		identities,
		messenger,
		"http://localhost:8080/auth/verify",
		15*time.Minute,
		30*time.Minute,
	)
	return manager, identities
}

func TestAuthorizeNewConversationIsUnauthenticated(t *testing.T) {
	manager, _ := newTestSessionManager(&mockMessenger{})

	state := manager.Authorize(context.Background(), "628123")
	if state != domain.StateUnauthenticated {
		t.Fatalf("state=%s; want unauthenticated", state)
	}
}

func TestIssueLinkDispatchesAndTransitions(t *testing.T) {
	messenger := &mockMessenger{}
	manager, _ := newTestSessionManager(messenger)
	ctx := context.Background()

	cred, err := manager.IssueLink(ctx, "628123")
	if err != nil {
		t.Fatalf("IssueLink: %v", err)
	}
	if cred.Token == "" || cred.ConversationID != "628123" {
		t.Fatalf("unexpected credential: %+v", cred)
	}

	msg := messenger.last()
	if msg == nil {
		t.Fatal("no message dispatched")
	}
	if !strings.Contains(msg.message, "token="+cred.Token) {
		t.Fatalf("link message does not carry the token: %q", msg.message)
	}

	if state := manager.Authorize(ctx, "628123"); state != domain.StateLinkPending {
		t.Fatalf("state=%s; want link_pending", state)
	}
}

func TestIssueLinkFailsWhenDispatchFails(t *testing.T) {
	manager, _ := newTestSessionManager(&mockMessenger{fail: true})

	if _, err := manager.IssueLink(context.Background(), "628123"); err == nil {
		t.Fatal("expected error when send fails")
	}
}

func TestVerifyLinkAuthenticatesAndLinksEmployee(t *testing.T) {
	messenger := &mockMessenger{}
	manager, identities := newTestSessionManager(messenger)
	ctx := context.Background()

	identities.Put(&domain.Identity{
		ConversationID: "628123",
		EmployeeID:     "emp-1",
		Role:           domain.RoleAdmin,
		Active:         true,
	})

	cred, err := manager.IssueLink(ctx, "628123")
	if err != nil {
		t.Fatalf("IssueLink: %v", err)
	}

	session, err := manager.VerifyLink(ctx, cred.Token)
	if err != nil {
		t.Fatalf("VerifyLink: %v", err)
	}
	if session.State != domain.StateAuthenticated {
		t.Fatalf("state=%s; want authenticated", session.State)
	}
	if session.Identity.Role != domain.RoleAdmin {
		t.Fatalf("role=%s; want admin", session.Identity.Role)
	}
	if !identities.Linked("emp-1") {
		t.Fatal("employee should be marked linked")
	}

	if state := manager.Authorize(ctx, "628123"); state != domain.StateAuthenticated {
		t.Fatalf("state after verify=%s; want authenticated", state)
	}
}

func TestVerifyLinkSecondUseFails(t *testing.T) {
	manager, _ := newTestSessionManager(&mockMessenger{})
	ctx := context.Background()

	cred, err := manager.IssueLink(ctx, "628123")
	if err != nil {
		t.Fatalf("IssueLink: %v", err)
	}
	if _, err := manager.VerifyLink(ctx, cred.Token); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := manager.VerifyLink(ctx, cred.Token); !errors.Is(err, domain.ErrTokenReused) {
		t.Fatalf("second verify err=%v; want ErrTokenReused", err)
	}
}

func TestReissueInvalidatesPriorLink(t *testing.T) {
	manager, _ := newTestSessionManager(&mockMessenger{})
	ctx := context.Background()

	first, err := manager.IssueLink(ctx, "628123")
	if err != nil {
		t.Fatalf("IssueLink: %v", err)
	}
	second, err := manager.IssueLink(ctx, "628123")
	if err != nil {
		t.Fatalf("IssueLink: %v", err)
	}

	if _, err := manager.VerifyLink(ctx, first.Token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("superseded token err=%v; want ErrTokenInvalid", err)
	}
	if _, err := manager.VerifyLink(ctx, second.Token); err != nil {
		t.Fatalf("fresh token verify: %v", err)
	}
}

func TestAuthenticatedSessionExpiresAfterIdleTimeout(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	identities := NewMemoryIdentityStore()
	manager := NewSessionManager(
		NewMemoryCredentialStore().WithClock(clock),
		identities,
		&mockMessenger{},
		"http://localhost:8080/auth/verify",
		15*time.Minute,
		30*time.Minute,
	).WithClock(clock)
	ctx := context.Background()

	cred, err := manager.IssueLink(ctx, "628123")
	if err != nil {
		t.Fatalf("IssueLink: %v", err)
	}
	if _, err := manager.VerifyLink(ctx, cred.Token); err != nil {
		t.Fatalf("VerifyLink: %v", err)
	}

	current = current.Add(29 * time.Minute)
	if state := manager.Authorize(ctx, "628123"); state != domain.StateAuthenticated {
		t.Fatalf("state before timeout=%s; want authenticated", state)
	}

	// Touch resets the idle clock
	manager.Touch("628123")
	current = current.Add(29 * time.Minute)
	if state := manager.Authorize(ctx, "628123"); state != domain.StateAuthenticated {
		t.Fatalf("state after touch=%s; want authenticated", state)
	}

	current = current.Add(31 * time.Minute)
	if state := manager.Authorize(ctx, "628123"); state != domain.StateExpired {
		t.Fatalf("state after idle=%s; want expired", state)
	}
}
