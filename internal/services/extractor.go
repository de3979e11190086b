package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	ai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/chatquery/chatquery/internal/domain"
	"github.com/chatquery/chatquery/internal/schema"
)

// TextGenerator is the narrow surface of the language-understanding service.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator calls the Gemini API.
type GeminiGenerator struct {
	apiKey string
	model  string
}

func NewGeminiGenerator(apiKey string) *GeminiGenerator {
	return &GeminiGenerator{apiKey: apiKey, model: "gemini-2.0-flash"}
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := ai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	resp, err := model.GenerateContent(ctx, ai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}

	var s string
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if t, ok := p.(ai.Text); ok {
				s += string(t)
			}
		}
	}
	return s, nil
}

// intentDTO is the untrusted shape of the model response. It is validated
// eagerly here; nothing downstream ever sees unvalidated fields.
type intentDTO struct {
	Operation  string          `json:"operation"`
	Entity     string          `json:"entity"`
	Values     map[string]any  `json:"values"`
	Filters    []domain.Filter `json:"filters"`
	Confidence float64         `json:"confidence"`
	Error      string          `json:"error"`
}

// Extractor converts free-form text into a validated Intent via the
// language model.
type Extractor struct {
	gen        TextGenerator
	descriptor *schema.Descriptor
	threshold  float64
	retries    int
	timeout    time.Duration
	backoff    time.Duration
}

func NewExtractor(gen TextGenerator, descriptor *schema.Descriptor, threshold float64, retries int, timeout time.Duration) *Extractor {
	if retries < 1 {
		retries = 1
	}
	return &Extractor{
		gen:        gen,
		descriptor: descriptor,
		threshold:  threshold,
		retries:    retries,
		timeout:    timeout,
		backoff:    time.Second,
	}
}

// Extract sends the text to the model and validates the structured response
// against the schema whitelist. The raw text itself never reaches any
// data-access call.
func (e *Extractor) Extract(ctx context.Context, text string) (*domain.Intent, error) {
	raw, err := e.generateWithRetry(ctx, e.buildPrompt(text))
	if err != nil {
		return nil, err
	}
	return e.validate(raw)
}

func (e *Extractor) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= e.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		raw, err := e.gen.Generate(attemptCtx, prompt)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err
		log.Printf("[AI] generate attempt %d/%d failed: %v", attempt, e.retries, err)

		if ctx.Err() != nil {
			break
		}
		if attempt < e.retries {
			time.Sleep(time.Duration(attempt) * e.backoff)
		}
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %v", domain.ErrServiceTimeout, lastErr)
	}
	return "", fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, lastErr)
}

func (e *Extractor) validate(raw string) (*domain.Intent, error) {
	var dto intentDTO
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	// The model sets "error" when the request cannot be mapped onto the
	// schema; route to clarification.
	if strings.TrimSpace(dto.Error) != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrAmbiguousIntent, dto.Error)
	}

	kind := domain.OperationKind(strings.ToLower(strings.TrimSpace(dto.Operation)))
	if !domain.ValidKind(kind) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedOperation, dto.Operation)
	}

	entity, ok := e.descriptor.Entity(dto.Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEntity, dto.Entity)
	}

	for field := range dto.Values {
		if _, ok := entity.Fields[strings.ToLower(field)]; !ok {
			return nil, fmt.Errorf("%w: value field %q not in %s", domain.ErrMalformedResponse, field, entity.Name)
		}
	}
	for _, f := range dto.Filters {
		if _, ok := entity.Fields[strings.ToLower(f.Field)]; !ok {
			return nil, fmt.Errorf("%w: filter field %q not in %s", domain.ErrMalformedResponse, f.Field, entity.Name)
		}
	}

	if dto.Confidence < e.threshold {
		return nil, fmt.Errorf("%w: confidence %.2f below threshold %.2f", domain.ErrAmbiguousIntent, dto.Confidence, e.threshold)
	}

	return &domain.Intent{
		Kind:       kind,
		Entity:     entity.Name,
		Values:     dto.Values,
		Filters:    dto.Filters,
		Confidence: dto.Confidence,
	}, nil
}

func (e *Extractor) buildPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("You translate natural language requests into a single JSON object describing a database operation.\n\n")
	sb.WriteString("You have access to exactly these tables:\n\n")
	sb.WriteString(e.descriptor.PromptDescription())
	sb.WriteString("The JSON object MUST have this shape:\n")
	sb.WriteString(`{"operation": "create|read|update|delete", "entity": "table name", ` +
		`"values": {"column": value}, "filters": [{"field": "column", "op": "=|!=|<|<=|>|>=", "value": value}], ` +
		`"confidence": 0.0-1.0, "error": "only set when the request cannot be mapped"}` + "\n\n")
	sb.WriteString("Hard rules:\n")
	sb.WriteString("- ONLY the tables and columns listed above. Use exact names.\n")
	sb.WriteString("- No joins, subqueries, aggregations, ORDER BY or GROUP BY.\n")
	sb.WriteString("- \"values\" only for create/update; \"filters\" only with the listed operators.\n")
	sb.WriteString("- \"confidence\" is your own certainty that the JSON matches the request.\n")
	sb.WriteString("- If the request is unclear or off-schema, set \"error\" and nothing else.\n")
	sb.WriteString("- Return ONLY the JSON object, no explanations before or after.\n\n")
	sb.WriteString("Request: ")
	sb.WriteString(text)
	return sb.String()
}

// stripCodeFence removes a surrounding markdown fence the model sometimes
// adds despite the prompt.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
