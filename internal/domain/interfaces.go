package domain

import (
	"context"
	"database/sql"
	"time"
)

// Messenger delivers outbound messages over the chat channel.
type Messenger interface {
	SendMessage(ctx context.Context, phone, message string) error
	// SendMessageWithAutoRevoke deletes the message from the chat after the
	// given duration. Used for magic links so tokens do not linger.
	SendMessageWithAutoRevoke(ctx context.Context, phone, message string, after time.Duration) error
	IsConnected() bool
}

// IntentExtractor turns free-form text into a validated Intent.
type IntentExtractor interface {
	Extract(ctx context.Context, text string) (*Intent, error)
}

// CredentialStore persists single-use magic-link credentials.
type CredentialStore interface {
	// Save stores cred after revoking any live credential for the same
	// conversation.
	Save(ctx context.Context, cred *Credential) error
	// Consume atomically marks the credential consumed. Exactly one of any
	// number of concurrent calls for the same token succeeds; the rest get
	// ErrTokenReused. Unknown or revoked tokens yield ErrTokenInvalid,
	// expired ones ErrTokenExpired.
	Consume(ctx context.Context, token string) (*Credential, error)
}

// IdentityStore resolves messaging identities against the employee table.
type IdentityStore interface {
	FindByPhone(ctx context.Context, phone string) (*Identity, error)
	// MarkLinked records a successful verification on the employee row.
	MarkLinked(ctx context.Context, employeeID string) error
}

// AuditStore appends immutable audit entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
}

// DatabaseService handles database operations.
type DatabaseService interface {
	Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	BeginTx(ctx context.Context) (*sql.Tx, error)
	Close() error
}

// ConfigService handles application configuration.
type ConfigService interface {
	GetDatabaseURL() string
	GetWhatsAppStorePath() string
	GetGeminiAPIKey() string
	GetAPIKey() string
	GetHTTPAddr() string
	GetLinkBaseURL() string
	GetLinkTTL() time.Duration
	GetSessionIdleTimeout() time.Duration
	GetConfidenceThreshold() float64
	GetAIRetries() int
	GetAITimeout() time.Duration
}
