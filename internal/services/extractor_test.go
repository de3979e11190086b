package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatquery/chatquery/internal/domain"
	"github.com/chatquery/chatquery/internal/schema"
)

type fakeGenerator struct {
	response string
	err      error
	calls    int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestExtractor(gen TextGenerator) *Extractor {
	e := NewExtractor(gen, schema.Default(), 0.6, 3, time.Second)
	e.backoff = 0
	return e
}

func TestExtractValidReadIntent(t *testing.T) {
	gen := &fakeGenerator{response: `{
		"operation": "read",
		"entity": "products",
		"filters": [{"field": "price", "op": "<", "value": 10}],
		"confidence": 0.92
	}`}

	intent, err := newTestExtractor(gen).Extract(context.Background(), "show products under 10")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if intent.Kind != domain.OpRead || intent.Entity != "products" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if len(intent.Filters) != 1 || intent.Filters[0].Field != "price" {
		t.Fatalf("unexpected filters: %+v", intent.Filters)
	}
}

func TestExtractStripsCodeFence(t *testing.T) {
	gen := &fakeGenerator{response: "```json\n{\"operation\":\"read\",\"entity\":\"products\",\"confidence\":0.9}\n```"}
	if _, err := newTestExtractor(gen).Extract(context.Background(), "list products"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
}

func TestExtractValidationOrder(t *testing.T) {
	cases := []struct {
		name     string
		response string
		wantErr  error
	}{
		{
			"unsupported operation",
			`{"operation":"truncate","entity":"products","confidence":0.9}`,
			domain.ErrUnsupportedOperation,
		},
		{
			"unknown entity",
			`{"operation":"read","entity":"salaries","confidence":0.9}`,
			domain.ErrUnknownEntity,
		},
		{
			"field outside whitelist",
			`{"operation":"read","entity":"employees","filters":[{"field":"hashed_password","op":"=","value":"x"}],"confidence":0.9}`,
			domain.ErrMalformedResponse,
		},
		{
			"value field outside whitelist",
			`{"operation":"update","entity":"products","values":{"secret":"x"},"filters":[{"field":"name","op":"=","value":"A"}],"confidence":0.9}`,
			domain.ErrMalformedResponse,
		},
		{
			"low confidence",
			`{"operation":"read","entity":"products","confidence":0.3}`,
			domain.ErrAmbiguousIntent,
		},
		{
			"model-declared error",
			`{"error":"cannot map this request"}`,
			domain.ErrAmbiguousIntent,
		},
		{
			"not json at all",
			`sure! here is your data`,
			domain.ErrMalformedResponse,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gen := &fakeGenerator{response: c.response}
			_, err := newTestExtractor(gen).Extract(context.Background(), "whatever")
			if !errors.Is(err, c.wantErr) {
				t.Fatalf("err=%v; want %v", err, c.wantErr)
			}
		})
	}
}

func TestExtractRetriesThenServiceUnavailable(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}
	_, err := newTestExtractor(gen).Extract(context.Background(), "list products")
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("err=%v; want ErrServiceUnavailable", err)
	}
	if gen.calls != 3 {
		t.Fatalf("calls=%d; want 3", gen.calls)
	}
}

func TestExtractTimeoutMapsToServiceTimeout(t *testing.T) {
	gen := &fakeGenerator{err: context.DeadlineExceeded}
	_, err := newTestExtractor(gen).Extract(context.Background(), "list products")
	if !errors.Is(err, domain.ErrServiceTimeout) {
		t.Fatalf("err=%v; want ErrServiceTimeout", err)
	}
}
