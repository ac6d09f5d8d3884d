package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/healthmetrics-cli/internal/model"
	"github.com/sells-group/healthmetrics-cli/internal/resilience"
)

// FieldSpec is one output key a provider asks its model to fill.
type FieldSpec struct {
	Key         string // provider dialect key
	Metric      string // canonical metric it feeds, used to match hints
	Description string
}

const maxOutputTokens = 1024

const systemPrompt = `You extract clinical measurements from patient documents.
Respond with a single JSON object and nothing else.
Use only the keys listed below. Omit a key when the document does not state the measurement.
Each value is an object {"value": <number>, "confidence": <number between 0 and 1>}.
Report values in the unit given for the key; convert if the document uses another unit.
When a measurement appears more than once, report the most recent reading.`

// buildPrompt renders the system and user messages for fields.
func buildPrompt(fields []FieldSpec, req model.ExtractionRequest) (string, string) {
	var sys strings.Builder
	sys.WriteString(systemPrompt)
	sys.WriteString("\n\nKeys:\n")
	for _, f := range fields {
		fmt.Fprintf(&sys, "- %s: %s\n", f.Key, f.Description)
	}

	var user strings.Builder
	if focus := hintedKeys(fields, req.Hints); len(focus) > 0 {
		fmt.Fprintf(&user, "The document is expected to contain: %s.\n\n", strings.Join(focus, ", "))
	}
	user.WriteString("Document:\n")
	user.WriteString(req.Input)

	return sys.String(), user.String()
}

// hintedKeys returns the dialect keys for the canonical metric names in hints.
func hintedKeys(fields []FieldSpec, hints []string) []string {
	if len(hints) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(hints))
	for _, h := range hints {
		wanted[strings.ToLower(strings.TrimSpace(h))] = true
	}
	var keys []string
	for _, f := range fields {
		if wanted[strings.ToLower(f.Metric)] {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// StripMarkdownCodeBlock removes a surrounding ``` fence, with or without a
// language tag.
func StripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseFields decodes the model's reply into a field map. A reply that is not
// a JSON object fails the same way on every attempt, so it is permanent.
func parseFields(provider, text string) (map[string]any, error) {
	body := StripMarkdownCodeBlock(text)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return nil, resilience.NewPermanent(provider, "response contains no JSON object: "+resilience.Truncate(body, 120), 0, nil)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(body[start:end+1]), &fields); err != nil {
		return nil, resilience.NewPermanent(provider, "invalid JSON in response: "+err.Error(), 0, err)
	}
	return fields, nil
}

