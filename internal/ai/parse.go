package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/stocklens/stocklens-backend/types"
)

// Quantification is the model's answer to "how many base units is this line
// item": a single-unit quantity plus the model's own confidence in it.
type Quantification struct {
	Quantity   int     `json:"quantity"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
}

type extractedItemJSON struct {
	Name         string `json:"name"`
	Quantity     string `json:"quantity"`
	OriginalText string `json:"original_text"`
}

// ParseExtractedItems decodes the vision model's JSON array of receipt line
// items, tolerating markdown code fences around the payload. Items with a
// blank name are skipped rather than failing the whole receipt.
func ParseExtractedItems(raw string) ([]types.ExtractedItem, error) {
	payload := StripCodeFences(raw)
	if payload == "" {
		return nil, fmt.Errorf("empty model output")
	}

	var decoded []extractedItemJSON
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("decoding extraction JSON: %w", err)
	}

	items := make([]types.ExtractedItem, 0, len(decoded))
	for _, d := range decoded {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		original := strings.TrimSpace(d.OriginalText)
		if original == "" {
			original = name
		}
		items = append(items, types.ExtractedItem{
			Name:         name,
			QuantityText: strings.TrimSpace(d.Quantity),
			OriginalText: original,
		})
	}
	return items, nil
}

// ParseQuantification decodes the validation model's quantity response and
// normalizes it into invariant range: quantity at least 1, confidence
// clamped to [0, 1].
func ParseQuantification(raw string) (Quantification, error) {
	payload := StripCodeFences(raw)
	if payload == "" {
		return Quantification{}, fmt.Errorf("empty model output")
	}

	var q Quantification
	if err := json.Unmarshal([]byte(payload), &q); err != nil {
		return Quantification{}, fmt.Errorf("decoding validation JSON: %w", err)
	}

	if q.Quantity < 1 {
		q.Quantity = 1
	}
	if math.IsNaN(q.Confidence) || q.Confidence < 0 {
		q.Confidence = 0
	}
	if q.Confidence > 1 {
		q.Confidence = 1
	}
	q.Unit = strings.TrimSpace(q.Unit)
	return q, nil
}

// StripCodeFences removes a surrounding markdown code fence (``` or
// ```json) from model output. Models wrap JSON in fences despite being told
// not to, so every JSON parse goes through this first.
func StripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
