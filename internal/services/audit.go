package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatquery/chatquery/internal/domain"
)

// PGAuditStore appends entries to the message_logs table.
type PGAuditStore struct {
	db domain.DatabaseService
}

func NewPGAuditStore(db domain.DatabaseService) *PGAuditStore {
	return &PGAuditStore{db: db}
}

func (s *PGAuditStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var employeeID any
	if entry.EmployeeID != "" {
		employeeID = entry.EmployeeID
	}
	var intent any
	if len(entry.InterpretedIntent) > 0 {
		intent = entry.InterpretedIntent
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO message_logs
		 (id, employee_id, phone_number, direction, raw_message_content, ai_interpreted_command, system_response_content, status, error_message, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, employeeID, entry.ConversationID, string(entry.Direction), entry.RawContent,
		intent, entry.ResponseContent, string(entry.Status), entry.ErrorMessage, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// MemoryAuditStore keeps entries in memory for tests and database-less runs.
type MemoryAuditStore struct {
	mutex   sync.Mutex
	entries []domain.AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	copied := *entry
	if copied.ID == "" {
		copied.ID = uuid.NewString()
	}
	if copied.Timestamp.IsZero() {
		copied.Timestamp = time.Now().UTC()
	}
	s.entries = append(s.entries, copied)
	return nil
}

// Entries returns a snapshot of the appended entries.
func (s *MemoryAuditStore) Entries() []domain.AuditEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]domain.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
