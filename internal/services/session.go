package services

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatquery/chatquery/internal/domain"
)

// SessionManager owns the per-conversation authentication state machine:
// unauthenticated -> link_pending -> authenticated, with authenticated
// falling back to expired after the idle timeout. All transitions happen
// here and nowhere else.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session // key: conversation id

	credentials domain.CredentialStore
	identities  domain.IdentityStore
	messenger   domain.Messenger

	linkBaseURL string
	linkTTL     time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

func NewSessionManager(
	credentials domain.CredentialStore,
	identities domain.IdentityStore,
	messenger domain.Messenger,
	linkBaseURL string,
	linkTTL time.Duration,
	idleTimeout time.Duration,
) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*domain.Session),
		credentials: credentials,
		identities:  identities,
		messenger:   messenger,
		linkBaseURL: linkBaseURL,
		linkTTL:     linkTTL,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// WithClock overrides the time source (tests only).
func (m *SessionManager) WithClock(fn func() time.Time) *SessionManager {
	m.now = fn
	return m
}

// Authorize returns the current session state for a conversation, creating
// an unauthenticated session on first contact and expiring idle ones.
func (m *SessionManager) Authorize(ctx context.Context, conversationID string) domain.SessionState {
	session := m.getOrCreate(ctx, conversationID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if session.State == domain.StateAuthenticated && m.now().Sub(session.LastActivity) > m.idleTimeout {
		session.State = domain.StateExpired
		log.Printf("[SESSION] %s expired after idle timeout", conversationID)
	}
	return session.State
}

// Session returns a copy of the conversation's session, or nil if none
// exists yet.
func (m *SessionManager) Session(conversationID string) *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, exists := m.sessions[conversationID]
	if !exists {
		return nil
	}
	copied := *session
	return &copied
}

// Touch records activity on an authenticated session so it does not idle out
// mid-conversation.
func (m *SessionManager) Touch(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, exists := m.sessions[conversationID]; exists && session.State == domain.StateAuthenticated {
		session.LastActivity = m.now()
	}
}

// IssueLink generates a fresh single-use credential, invalidating any prior
// unconsumed one for the conversation, and dispatches the magic link over
// the messaging channel. The link message is auto-revoked once the
// credential would have expired anyway.
func (m *SessionManager) IssueLink(ctx context.Context, conversationID string) (*domain.Credential, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	now := m.now()
	cred := &domain.Credential{
		ID:             uuid.NewString(),
		Token:          token,
		ConversationID: conversationID,
		IssuedAt:       now,
		ExpiresAt:      now.Add(m.linkTTL),
	}
	if err := m.credentials.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}

	link := m.linkBaseURL + "?token=" + url.QueryEscape(token)
	message := fmt.Sprintf(
		"To use the database assistant, please verify your identity:\n%s\n\nThe link is valid for %d minutes and works only once.",
		link, int(m.linkTTL.Minutes()))
	if err := m.messenger.SendMessageWithAutoRevoke(ctx, conversationID, message, m.linkTTL); err != nil {
		return nil, fmt.Errorf("dispatch magic link: %w", err)
	}

	m.transition(ctx, conversationID, domain.StateLinkPending)
	log.Printf("[SESSION] magic link issued for %s", conversationID)
	return cred, nil
}

// VerifyLink consumes a magic-link token. Exactly one of any number of
// concurrent calls with the same token succeeds; the session then becomes
// authenticated and the linked employee row, if any, is marked verified.
func (m *SessionManager) VerifyLink(ctx context.Context, token string) (*domain.Session, error) {
	cred, err := m.credentials.Consume(ctx, token)
	if err != nil {
		return nil, err
	}

	session := m.getOrCreate(ctx, cred.ConversationID)

	if session.Identity.EmployeeID != "" {
		if err := m.identities.MarkLinked(ctx, session.Identity.EmployeeID); err != nil {
			log.Printf("[SESSION] failed to mark employee %s linked: %v", session.Identity.EmployeeID, err)
		}
	}

	m.mu.Lock()
	session.State = domain.StateAuthenticated
	session.LastActivity = m.now()
	copied := *session
	m.mu.Unlock()

	log.Printf("[SESSION] %s authenticated", cred.ConversationID)
	return &copied, nil
}

func (m *SessionManager) getOrCreate(ctx context.Context, conversationID string) *domain.Session {
	m.mu.RLock()
	session, exists := m.sessions[conversationID]
	m.mu.RUnlock()
	if exists {
		return session
	}

	// Resolve the identity outside the lock; the employee lookup hits the
	// database.
	identity := m.resolveIdentity(ctx, conversationID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if session, exists = m.sessions[conversationID]; exists {
		return session
	}
	session = &domain.Session{
		ConversationID: conversationID,
		Identity:       identity,
		State:          domain.StateUnauthenticated,
		LastActivity:   m.now(),
	}
	m.sessions[conversationID] = session
	return session
}

func (m *SessionManager) resolveIdentity(ctx context.Context, conversationID string) domain.Identity {
	identity, err := m.identities.FindByPhone(ctx, conversationID)
	if err != nil {
		// Unknown senders get the most restrictive role; they can still
		// authenticate to prove channel ownership.
		return domain.Identity{
			ConversationID: conversationID,
			Role:           domain.RoleGeneralUser,
			Active:         true,
		}
	}
	return *identity
}

func (m *SessionManager) transition(ctx context.Context, conversationID string, state domain.SessionState) {
	session := m.getOrCreate(ctx, conversationID)
	m.mu.Lock()
	session.State = state
	m.mu.Unlock()
}
