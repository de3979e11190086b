package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/chatquery/chatquery/internal/domain"
	"github.com/chatquery/chatquery/internal/services"
)

const verifySuccessPage = `<!DOCTYPE html>
<html><head><title>Verified</title></head>
<body><h1>You're verified!</h1>
<p>You can close this page and go back to the chat.</p></body></html>`

const verifyFailurePage = `<!DOCTYPE html>
<html><head><title>Verification failed</title></head>
<body><h1>Verification failed</h1>
<p>%s</p></body></html>`

// VerifyHandler serves the magic-link landing endpoint.
type VerifyHandler struct {
	sessions *services.SessionManager
}

func NewVerifyHandler(sessions *services.SessionManager) *VerifyHandler {
	return &VerifyHandler{sessions: sessions}
}

// Verify handles GET /auth/verify?token=...
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	token := r.URL.Query().Get("token")
	if token == "" {
		h.failure(w, "The link is missing its token.")
		return
	}

	session, err := h.sessions.VerifyLink(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTokenExpired):
			h.failure(w, "This link has expired. Send the bot a message to get a fresh one.")
		case errors.Is(err, domain.ErrTokenReused):
			h.failure(w, "This link was already used. Links work only once.")
		case errors.Is(err, domain.ErrTokenInvalid):
			h.failure(w, "This link is not valid. Send the bot a message to get a fresh one.")
		default:
			log.Printf("verify failed: %v", err)
			h.failure(w, "Something went wrong. Please try again.")
		}
		return
	}

	log.Printf("conversation %s verified via magic link", session.ConversationID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(verifySuccessPage))
}

func (h *VerifyHandler) failure(w http.ResponseWriter, reason string) {
	w.WriteHeader(http.StatusBadRequest)
	// reason is our own static text, never user input
	_, _ = w.Write([]byte(fmt.Sprintf(verifyFailurePage, reason)))
}
