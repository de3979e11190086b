package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatquery/chatquery/internal/domain"
)

func newCredential(token, conversation string, ttl time.Duration) *domain.Credential {
	now := time.Now()
	return &domain.Credential{
		ID:             token + "-id",
		Token:          token,
		ConversationID: conversation,
		IssuedAt:       now,
		ExpiresAt:      now.Add(ttl),
	}
}

func TestGenerateTokenLengthAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		if len(token) != 43 { // 32 bytes, base64url, no padding
			t.Fatalf("token length %d; want 43", len(token))
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

func TestConsumeSingleUse(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	if err := store.Save(ctx, newCredential("tok-1", "628123", time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cred, err := store.Consume(ctx, "tok-1")
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if !cred.Consumed {
		t.Fatal("returned credential should be marked consumed")
	}

	for i := 0; i < 3; i++ {
		if _, err := store.Consume(ctx, "tok-1"); !errors.Is(err, domain.ErrTokenReused) {
			t.Fatalf("repeat consume err=%v; want ErrTokenReused", err)
		}
	}
}

func TestConsumeUnknownToken(t *testing.T) {
	store := NewMemoryCredentialStore()
	if _, err := store.Consume(context.Background(), "never-issued"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("err=%v; want ErrTokenInvalid", err)
	}
}

func TestConsumeExpiredToken(t *testing.T) {
	current := time.Now()
	store := NewMemoryCredentialStore().WithClock(func() time.Time { return current })
	ctx := context.Background()

	if err := store.Save(ctx, newCredential("tok-exp", "628123", time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := store.Consume(ctx, "tok-exp"); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("err=%v; want ErrTokenExpired", err)
	}

	// Expiry wins over consumption state: consuming first, then expiring,
	// still reports expired.
	current = current.Add(-2 * time.Minute)
	if err := store.Save(ctx, newCredential("tok-exp2", "628123", time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Consume(ctx, "tok-exp2"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if _, err := store.Consume(ctx, "tok-exp2"); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("err=%v; want ErrTokenExpired", err)
	}
}

func TestSaveRevokesPriorCredential(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	if err := store.Save(ctx, newCredential("tok-old", "628123", time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, newCredential("tok-new", "628123", time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := store.Consume(ctx, "tok-old"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("superseded token err=%v; want ErrTokenInvalid", err)
	}
	if _, err := store.Consume(ctx, "tok-new"); err != nil {
		t.Fatalf("fresh token should consume: %v", err)
	}

	// Different conversation is unaffected
	if err := store.Save(ctx, newCredential("tok-a", "627777", time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, newCredential("tok-b", "628123", time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Consume(ctx, "tok-a"); err != nil {
		t.Fatalf("other conversation token should still consume: %v", err)
	}
}

func TestConsumeConcurrentExactlyOneWinner(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	if err := store.Save(ctx, newCredential("tok-race", "628123", time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, reuses := 0, 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Consume(ctx, "tok-race")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrTokenReused):
				reuses++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins=%d; want exactly 1", wins)
	}
	if reuses != attempts-1 {
		t.Fatalf("reuses=%d; want %d", reuses, attempts-1)
	}
}
