package domain

import "time"

// OperationKind is the closed set of database operations the bot understands.
type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpRead   OperationKind = "read"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// ValidKind reports whether k is one of the four supported operations.
func ValidKind(k OperationKind) bool {
	switch k {
	case OpCreate, OpRead, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Role determines which entity/operation pairs an identity may use.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleGeneralUser Role = "general_user"
)

// SessionState is the per-conversation authentication state.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateLinkPending     SessionState = "link_pending"
	StateAuthenticated   SessionState = "authenticated"
	StateExpired         SessionState = "expired"
)

// Identity is a messaging-channel sender, optionally linked to an employee row.
type Identity struct {
	ConversationID string // phone number in international format, digits only
	EmployeeID     string // empty until linked
	Role           Role
	Active         bool
}

// Credential is a single-use magic-link token. At most one unconsumed,
// unrevoked, unexpired credential exists per conversation.
type Credential struct {
	ID             string
	Token          string
	ConversationID string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	Consumed       bool
	Revoked        bool
}

// Session is per-conversation state. Transitions happen only inside the
// session manager.
type Session struct {
	ConversationID string
	Identity       Identity
	State          SessionState
	LastActivity   time.Time
}

// Filter is a single predicate on a whitelisted field.
type Filter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// Intent is the validated, structured form of a user request. It is built
// once by the extractor and never mutated afterwards.
type Intent struct {
	Kind       OperationKind  `json:"operation"`
	Entity     string         `json:"entity"`
	Values     map[string]any `json:"values,omitempty"`
	Filters    []Filter       `json:"filters,omitempty"`
	Confidence float64        `json:"confidence"`
}

// ParameterizedOperation is a fully bound database action. Fields are
// unexported so nothing downstream of the builder can alter the SQL or
// smuggle text into it.
type ParameterizedOperation struct {
	entity string
	kind   OperationKind
	sql    string
	args   []any
}

// NewParameterizedOperation binds a built statement. Only the query builder
// should call this.
func NewParameterizedOperation(entity string, kind OperationKind, sql string, args []any) *ParameterizedOperation {
	bound := make([]any, len(args))
	copy(bound, args)
	return &ParameterizedOperation{entity: entity, kind: kind, sql: sql, args: bound}
}

func (op *ParameterizedOperation) Entity() string      { return op.entity }
func (op *ParameterizedOperation) Kind() OperationKind { return op.kind }
func (op *ParameterizedOperation) SQL() string         { return op.sql }

// Args returns a copy of the bound parameters.
func (op *ParameterizedOperation) Args() []any {
	out := make([]any, len(op.args))
	copy(out, op.args)
	return out
}

// Result is the outcome of an executed operation.
type Result struct {
	Entity   string
	Kind     OperationKind
	Rows     []map[string]any // read only
	Affected int64            // create/update/delete only
}

// MessageDirection marks audit entries as inbound or outbound.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// MessageStatus is the terminal status of a processed message.
type MessageStatus string

const (
	StatusReceived  MessageStatus = "received"
	StatusProcessed MessageStatus = "processed"
	StatusSent      MessageStatus = "sent"
	StatusError     MessageStatus = "error"
)

// AuditEntry is one append-only audit record per message or outcome.
type AuditEntry struct {
	ID                string
	ConversationID    string
	EmployeeID        string
	Direction         MessageDirection
	RawContent        string
	InterpretedIntent []byte // JSON-encoded Intent, nil when extraction failed
	ResponseContent   string
	Status            MessageStatus
	ErrorMessage      string
	Timestamp         time.Time
}

// SendMessageRequest is the REST payload for operator-initiated messages.
type SendMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendMessageResponse acknowledges a REST send.
type SendMessageResponse struct {
	Status string `json:"status"`
	Phone  string `json:"phone"`
}
