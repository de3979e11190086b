package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"

	waEvents "go.mau.fi/whatsmeow/types/events"

	"github.com/chatquery/chatquery/internal/domain"
	"github.com/chatquery/chatquery/internal/services"
)

const usageMessage = "Hi! I am your database assistant. Ask me things like " +
	"\"show products under 10\" or \"update the stock of Product A to 5\". " +
	"You need to verify once via the link I send you before I run anything."

const authPromptMessage = "You are not verified yet. I have sent you a " +
	"one-time verification link; open it and then ask me again."

// BotHandler drives the full pipeline for one inbound message:
// auth gate -> intent extraction -> query build -> execution -> reply,
// with an audit record for every terminal outcome.
type BotHandler struct {
	sessions  *services.SessionManager
	extractor domain.IntentExtractor
	builder   *services.QueryBuilder
	executor  *services.Executor
	audit     domain.AuditStore
	messenger domain.Messenger

	// Per-conversation ordering locks: a second message from the same
	// conversation waits until the first one's outcome is recorded.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewBotHandler(
	sessions *services.SessionManager,
	extractor domain.IntentExtractor,
	builder *services.QueryBuilder,
	executor *services.Executor,
	audit domain.AuditStore,
	messenger domain.Messenger,
) *BotHandler {
	return &BotHandler{
		sessions:  sessions,
		extractor: extractor,
		builder:   builder,
		executor:  executor,
		audit:     audit,
		messenger: messenger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// HandleMessage is the whatsmeow event callback. Each inbound message gets
// its own goroutine; ordering within a conversation comes from the keyed
// lock, not from the event loop.
func (h *BotHandler) HandleMessage(evt interface{}) {
	switch e := evt.(type) {
	case *waEvents.Message:
		if e.Message.GetConversation() == "" && e.Message.ExtendedTextMessage == nil {
			return
		}
		if e.Info.IsFromMe || e.Info.IsGroup {
			return
		}

		text := strings.TrimSpace(services.ExtractText(e))
		if text == "" {
			return
		}
		conversationID := e.Info.MessageSource.Sender.User

		log.Printf("msg from %s: %s", conversationID, text)
		go h.Process(context.Background(), conversationID, text)
	}
}

// Process runs the pipeline for one inbound message. Exported so tests and
// alternative transports can drive it directly.
func (h *BotHandler) Process(ctx context.Context, conversationID, text string) {
	unlock := h.lockConversation(conversationID)
	defer unlock()

	h.appendAudit(ctx, &domain.AuditEntry{
		ConversationID: conversationID,
		Direction:      domain.DirectionInbound,
		RawContent:     text,
		Status:         domain.StatusReceived,
	})

	if isGreeting(text) {
		h.respond(ctx, conversationID, text, nil, usageMessage, domain.StatusSent, "")
		return
	}

	// Auth gate: anything other than an authenticated session blocks the
	// pipeline before extraction.
	if state := h.sessions.Authorize(ctx, conversationID); state != domain.StateAuthenticated {
		if _, err := h.sessions.IssueLink(ctx, conversationID); err != nil {
			log.Printf("failed to issue link for %s: %v", conversationID, err)
			h.respond(ctx, conversationID, text, nil,
				"Sorry, something went wrong on my side. Please try again in a moment.",
				domain.StatusError, err.Error())
			return
		}
		h.respond(ctx, conversationID, text, nil, authPromptMessage, domain.StatusSent, "")
		return
	}
	h.sessions.Touch(conversationID)

	intent, err := h.extractor.Extract(ctx, text)
	if err != nil {
		h.respond(ctx, conversationID, text, nil, userMessageFor(err), domain.StatusError, err.Error())
		return
	}
	intentJSON, _ := json.Marshal(intent)

	session := h.sessions.Session(conversationID)
	op, err := h.builder.Build(intent, session.Identity.Role)
	if err != nil {
		h.respond(ctx, conversationID, text, intentJSON, userMessageFor(err), domain.StatusError, err.Error())
		return
	}

	result, err := h.executor.Execute(ctx, op)
	if err != nil {
		h.respond(ctx, conversationID, text, intentJSON, userMessageFor(err), domain.StatusError, err.Error())
		return
	}

	h.respond(ctx, conversationID, text, intentJSON, services.FormatResponse(result), domain.StatusProcessed, "")
}

// respond records the terminal outcome in the audit log and only then sends
// the reply.
func (h *BotHandler) respond(ctx context.Context, conversationID, rawText string, intentJSON []byte, response string, status domain.MessageStatus, errMsg string) {
	entry := &domain.AuditEntry{
		ConversationID:    conversationID,
		Direction:         domain.DirectionOutbound,
		RawContent:        rawText,
		InterpretedIntent: intentJSON,
		ResponseContent:   response,
		Status:            status,
		ErrorMessage:      errMsg,
	}
	if session := h.sessions.Session(conversationID); session != nil {
		entry.EmployeeID = session.Identity.EmployeeID
	}
	h.appendAudit(ctx, entry)

	if err := h.messenger.SendMessage(ctx, conversationID, response); err != nil {
		log.Printf("failed to send reply to %s: %v", conversationID, err)
	}
}

func (h *BotHandler) appendAudit(ctx context.Context, entry *domain.AuditEntry) {
	if err := h.audit.Append(ctx, entry); err != nil {
		log.Printf("failed to append audit entry: %v", err)
	}
}

func (h *BotHandler) lockConversation(conversationID string) func() {
	h.locksMu.Lock()
	mu, exists := h.locks[conversationID]
	if !exists {
		mu = &sync.Mutex{}
		h.locks[conversationID] = mu
	}
	h.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func isGreeting(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/start", "start", "help", "hi", "hello":
		return true
	}
	return false
}

// userMessageFor maps pipeline errors onto user-facing replies. Internal
// details never reach the chat.
func userMessageFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrAmbiguousIntent):
		return "I couldn't quite work out what you want. Could you rephrase that, naming the table and what to do with it?"
	case errors.Is(err, domain.ErrUnsupportedOperation):
		return "I can only create, read, update or delete records. Could you rephrase your request?"
	case errors.Is(err, domain.ErrUnknownEntity):
		return "I can only work with employees and products."
	case errors.Is(err, domain.ErrMalformedResponse):
		return "I misread your request. Could you say it differently?"
	case errors.Is(err, domain.ErrForbidden):
		return "You don't have permission for that operation."
	case errors.Is(err, domain.ErrUnknownField), errors.Is(err, domain.ErrInvalidValueType):
		return "Some of the values in your request don't match the table. Could you check them and try again?"
	case errors.Is(err, domain.ErrNotFound):
		return "I couldn't find any matching record."
	case errors.Is(err, domain.ErrConstraintViolation):
		return "That change conflicts with existing data (for example a duplicate or a referenced record)."
	case errors.Is(err, domain.ErrServiceTimeout), errors.Is(err, domain.ErrServiceUnavailable):
		return "Sorry, I'm having trouble reaching my language service right now. Please try again in a bit."
	}
	return "Sorry, something went wrong processing your request."
}
