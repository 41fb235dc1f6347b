// Package gemini enhances book metadata with library classifications
// through the Gemini API. It is the last and least trusted layer of the
// classification cascade, consulted only after the local cache and
// Open Library both miss.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"shelfmark/internal/metadata"
)

// ErrRateLimited is returned when the upstream model rejects the request
// with a 429. Callers should surface it as-is so clients can back off.
var ErrRateLimited = errors.New("gemini: rate limit reached")

const defaultModel = "gemini-2.0-flash"

// Example is a previously catalogued book used as in-context guidance so
// the model matches the shelving style already in use.
type Example struct {
	Title      string
	DDC        string
	CallNumber string
}

// Enhancement is the classification payload extracted from a model response.
// Trust is always "low" or "medium"; anything else the model emits is
// normalized down to "low".
type Enhancement struct {
	DDC        *string
	LCC        *string
	CallNumber *string
	Subjects   *string
	Trust      string
	AILog      []string
}

type Client struct {
	client *genai.Client
	model  string
	log    *slog.Logger
}

func NewClient(ctx context.Context, apiKey, model string, log *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{client: client, model: model, log: log}, nil
}

const systemPrompt = `You are an expert Library Cataloger and SLiMS specialist.
Your task is to enhance book metadata with accurate classifications.

Strictly follow these rules:
1. OUTPUT FORMAT: Return ONLY a valid JSON object. No markdown, no extra text.
2. DDC/LCC: Assign Dewey Decimal (DDC) and Library of Congress (LCC) classifications.
   - If you cannot determine with 80%+ confidence, set to null.
   - Use the REFERENCE EXAMPLES to match the style of similar books if provided.
3. CALL NUMBER: Generate a call number following this pattern: DDC + first 3 letters of author's last name (e.g., "650.1 NEW").
4. SUBJECTS: Generate 3-5 relevant Library of Congress Subject Headings (semicolon separated).
5. TRUST: Set "classificationTrust" to "medium" when the classification comes from a known pattern or matches the REFERENCE EXAMPLES, "low" when estimated.
6. AI LOG: Create an array of strings under "aiLog" describing what you added (e.g., ["Estimated DDC: 650.1", "Created call number"]).`

// Enhance asks the model for classifications for one book. The examples,
// when present, are appended to the system prompt so the model imitates
// call numbers already assigned by this library.
func (c *Client) Enhance(ctx context.Context, m *metadata.BookMetadata, examples []Example) (*Enhancement, error) {
	prompt := systemPrompt
	if len(examples) > 0 {
		var lines []string
		for _, ex := range examples {
			lines = append(lines, fmt.Sprintf("- %q → DDC: %s, Call Number: %q", ex.Title, ex.DDC, ex.CallNumber))
		}
		prompt += "\n\nREFERENCE EXAMPLES FROM OUR LIBRARY (Follow this Style):\n" + strings.Join(lines, "\n")
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode metadata: %w", err)
	}

	c.log.Info("calling model", "model", c.model, "isbn", m.ISBN, "rag_examples", len(examples))

	temperature := float32(0.1)
	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(string(payload), genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(prompt, genai.RoleUser),
			Temperature:       &temperature,
			ResponseMIMEType:  "application/json",
		},
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("gemini: generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, errors.New("gemini: empty model response")
	}
	enh, err := parseEnhancement(text)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return enh, nil
}

// parseEnhancement tolerates the loose JSON small models emit: fenced code
// blocks, case-variant keys, string sentinels for null, and subjects given
// as either an array or a joined string.
func parseEnhancement(text string) (*Enhancement, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}

	lower := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		lower[strings.ToLower(k)] = v
	}

	enh := &Enhancement{
		DDC:        looseString(lower["ddc"]),
		LCC:        looseString(lower["lcc"]),
		CallNumber: looseString(lower["callnumber"]),
		Subjects:   looseStringOrList(lower["subjects"]),
		Trust:      metadata.TrustLow,
	}
	if v := looseString(lower["classificationtrust"]); v != nil && strings.EqualFold(*v, metadata.TrustMedium) {
		enh.Trust = metadata.TrustMedium
	}
	if v, ok := lower["ailog"]; ok {
		var log []string
		if err := json.Unmarshal(v, &log); err == nil {
			enh.AILog = log
		}
	}
	if len(enh.AILog) == 0 {
		enh.AILog = []string{"AI classification applied"}
	}
	return enh, nil
}

func looseString(v json.RawMessage) *string {
	if v == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "undefined", "n/a":
		return nil
	}
	return &s
}

func looseStringOrList(v json.RawMessage) *string {
	if s := looseString(v); s != nil {
		return s
	}
	if v == nil {
		return nil
	}
	var list []string
	if err := json.Unmarshal(v, &list); err != nil || len(list) == 0 {
		return nil
	}
	joined := strings.Join(list, "; ")
	return &joined
}
