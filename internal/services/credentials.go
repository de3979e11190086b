package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatquery/chatquery/internal/domain"
)

const tokenBytes = 32

// GenerateToken returns an opaque single-use token: 32 random bytes,
// base64url without padding.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MemoryCredentialStore keeps credentials in memory with auto-expiry.
// Used when no database is configured, and in tests.
type MemoryCredentialStore struct {
	mutex sync.Mutex
	creds map[string]*domain.Credential // key: token
	now   func() time.Time
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	store := &MemoryCredentialStore{
		creds: make(map[string]*domain.Credential),
		now:   time.Now,
	}

	go store.startCleanupRoutine()

	return store
}

// WithClock overrides the time source (tests only).
func (s *MemoryCredentialStore) WithClock(fn func() time.Time) *MemoryCredentialStore {
	s.now = fn
	return s
}

func (s *MemoryCredentialStore) Save(ctx context.Context, cred *domain.Credential) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Revoke any live credential for the same conversation
	for _, c := range s.creds {
		if c.ConversationID == cred.ConversationID && !c.Consumed && !c.Revoked {
			c.Revoked = true
		}
	}

	copied := *cred
	s.creds[cred.Token] = &copied
	return nil
}

func (s *MemoryCredentialStore) Consume(ctx context.Context, token string) (*domain.Credential, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cred, exists := s.creds[token]
	if !exists || cred.Revoked {
		return nil, domain.ErrTokenInvalid
	}
	if s.now().After(cred.ExpiresAt) {
		return nil, domain.ErrTokenExpired
	}
	if cred.Consumed {
		return nil, domain.ErrTokenReused
	}

	cred.Consumed = true
	copied := *cred
	return &copied, nil
}

func (s *MemoryCredentialStore) startCleanupRoutine() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.cleanupExpired()
	}
}

func (s *MemoryCredentialStore) cleanupExpired() {
	now := s.now()
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for token, cred := range s.creds {
		if now.After(cred.ExpiresAt) {
			delete(s.creds, token)
		}
	}
}

// PGCredentialStore persists credentials in the credentials table.
type PGCredentialStore struct {
	db  domain.DatabaseService
	now func() time.Time
}

func NewPGCredentialStore(db domain.DatabaseService) *PGCredentialStore {
	return &PGCredentialStore{db: db, now: time.Now}
}

func (s *PGCredentialStore) Save(ctx context.Context, cred *domain.Credential) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE credentials SET revoked = TRUE WHERE conversation_id = $1 AND consumed = FALSE AND revoked = FALSE`,
		cred.ConversationID,
	); err != nil {
		return fmt.Errorf("revoke prior credentials: %w", err)
	}

	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credentials (id, token, conversation_id, issued_at, expires_at, consumed, revoked)
		 VALUES ($1, $2, $3, $4, $5, FALSE, FALSE)`,
		cred.ID, cred.Token, cred.ConversationID, cred.IssuedAt, cred.ExpiresAt,
	); err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}

	return tx.Commit()
}

// Consume is a compare-and-set on the consumed flag: the UPDATE matches only
// an unconsumed, unrevoked, unexpired row, so concurrent verifications of
// the same token yield exactly one success.
func (s *PGCredentialStore) Consume(ctx context.Context, token string) (*domain.Credential, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE credentials SET consumed = TRUE
		 WHERE token = $1 AND consumed = FALSE AND revoked = FALSE AND expires_at > $2
		 RETURNING id, token, conversation_id, issued_at, expires_at`,
		token, s.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("consume credential: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		cred := &domain.Credential{Consumed: true}
		if err := rows.Scan(&cred.ID, &cred.Token, &cred.ConversationID, &cred.IssuedAt, &cred.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		return cred, nil
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("consume credential: %w", err)
	}

	return nil, s.classifyFailure(ctx, token)
}

// classifyFailure distinguishes why the CAS matched nothing.
func (s *PGCredentialStore) classifyFailure(ctx context.Context, token string) error {
	rows, err := s.db.Query(ctx,
		`SELECT consumed, revoked, expires_at FROM credentials WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("look up credential: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("look up credential: %w", err)
		}
		return domain.ErrTokenInvalid
	}

	var (
		consumed  bool
		revoked   bool
		expiresAt time.Time
	)
	if err := rows.Scan(&consumed, &revoked, &expiresAt); err != nil {
		return fmt.Errorf("scan credential: %w", err)
	}
	switch {
	case revoked:
		return domain.ErrTokenInvalid
	case s.now().After(expiresAt):
		return domain.ErrTokenExpired
	case consumed:
		return domain.ErrTokenReused
	}
	return domain.ErrTokenInvalid
}
