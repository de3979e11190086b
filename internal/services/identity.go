package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/chatquery/chatquery/internal/domain"
)

// PGIdentityStore resolves identities against the employees table.
type PGIdentityStore struct {
	db domain.DatabaseService
}

func NewPGIdentityStore(db domain.DatabaseService) *PGIdentityStore {
	return &PGIdentityStore{db: db}
}

func (s *PGIdentityStore) FindByPhone(ctx context.Context, phone string) (*domain.Identity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, role FROM employees WHERE phone_number = $1 LIMIT 1`, phone)
	if err != nil {
		return nil, fmt.Errorf("find employee: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("find employee: %w", err)
		}
		return nil, domain.ErrNotFound
	}

	identity := &domain.Identity{ConversationID: phone, Active: true}
	if err := rows.Scan(&identity.EmployeeID, &identity.Role); err != nil {
		return nil, fmt.Errorf("scan employee: %w", err)
	}
	return identity, nil
}

func (s *PGIdentityStore) MarkLinked(ctx context.Context, employeeID string) error {
	result, err := s.db.Exec(ctx,
		`UPDATE employees SET is_authenticated = TRUE, updated_at = NOW() WHERE id = $1`, employeeID)
	if err != nil {
		return fmt.Errorf("mark employee linked: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark employee linked: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MemoryIdentityStore backs tests and database-less operation.
type MemoryIdentityStore struct {
	mutex      sync.RWMutex
	identities map[string]*domain.Identity // key: phone
	linked     map[string]bool             // key: employee id
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		identities: make(map[string]*domain.Identity),
		linked:     make(map[string]bool),
	}
}

// Put registers an identity (test setup).
func (s *MemoryIdentityStore) Put(identity *domain.Identity) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	copied := *identity
	s.identities[identity.ConversationID] = &copied
}

func (s *MemoryIdentityStore) FindByPhone(ctx context.Context, phone string) (*domain.Identity, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	identity, exists := s.identities[phone]
	if !exists {
		return nil, domain.ErrNotFound
	}
	copied := *identity
	return &copied, nil
}

func (s *MemoryIdentityStore) MarkLinked(ctx context.Context, employeeID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.linked[employeeID] = true
	return nil
}

// Linked reports whether MarkLinked was called for the employee (tests).
func (s *MemoryIdentityStore) Linked(employeeID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.linked[employeeID]
}
