package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stocklens/stocklens-backend/errors"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no fences",
			input:    `[{"name": "a"}]`,
			expected: `[{"name": "a"}]`,
		},
		{
			name:     "json fence",
			input:    "```json\n[{\"name\": \"a\"}]\n```",
			expected: `[{"name": "a"}]`,
		},
		{
			name:     "bare fence",
			input:    "```\n{\"quantity\": 6}\n```",
			expected: `{"quantity": 6}`,
		},
		{
			name:     "surrounding whitespace",
			input:    "  \n```json\n[]\n```\n  ",
			expected: "[]",
		},
		{
			name:     "unterminated fence",
			input:    "```json\n[1, 2]",
			expected: "[1, 2]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripCodeFences(tt.input))
		})
	}
}

func TestParseExtractedItems(t *testing.T) {
	t.Run("parses items with fences", func(t *testing.T) {
		raw := "```json\n[\n" +
			`{"name": "โค้ก 325 มล.", "quantity": "6 กระป๋อง", "original_text": "โค้ก 325มล. x6"},` +
			`{"name": "น้ำเปล่า", "quantity": "12 ขวด", "original_text": "น้ำเปล่า 12ขวด"}` +
			"\n]\n```"

		items, err := ParseExtractedItems(raw)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "โค้ก 325 มล.", items[0].Name)
		assert.Equal(t, "6 กระป๋อง", items[0].QuantityText)
		assert.Equal(t, "โค้ก 325มล. x6", items[0].OriginalText)
	})

	t.Run("empty array is valid", func(t *testing.T) {
		items, err := ParseExtractedItems("[]")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("skips blank names", func(t *testing.T) {
		raw := `[{"name": "  ", "quantity": "1"}, {"name": "นม", "quantity": "2 กล่อง"}]`
		items, err := ParseExtractedItems(raw)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "นม", items[0].Name)
	})

	t.Run("falls back to name when original text missing", func(t *testing.T) {
		items, err := ParseExtractedItems(`[{"name": "ขนมปัง", "quantity": "2 แพ็ค"}]`)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "ขนมปัง", items[0].OriginalText)
	})

	t.Run("rejects non-JSON output", func(t *testing.T) {
		_, err := ParseExtractedItems("I could not read the receipt")
		assert.Error(t, err)
	})
}

func TestParseQuantification(t *testing.T) {
	t.Run("parses and preserves values", func(t *testing.T) {
		q, err := ParseQuantification("```json\n{\"quantity\": 6, \"unit\": \"กระป๋อง\", \"confidence\": 0.92}\n```")
		require.NoError(t, err)
		assert.Equal(t, 6, q.Quantity)
		assert.Equal(t, "กระป๋อง", q.Unit)
		assert.InDelta(t, 0.92, q.Confidence, 1e-9)
	})

	t.Run("clamps quantity to at least one", func(t *testing.T) {
		q, err := ParseQuantification(`{"quantity": 0, "unit": "ชิ้น", "confidence": 0.5}`)
		require.NoError(t, err)
		assert.Equal(t, 1, q.Quantity)
	})

	t.Run("clamps confidence into unit range", func(t *testing.T) {
		q, err := ParseQuantification(`{"quantity": 3, "unit": "ขวด", "confidence": 1.7}`)
		require.NoError(t, err)
		assert.Equal(t, 1.0, q.Confidence)

		q, err = ParseQuantification(`{"quantity": 3, "unit": "ขวด", "confidence": -0.2}`)
		require.NoError(t, err)
		assert.Equal(t, 0.0, q.Confidence)
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		_, err := ParseQuantification("quantity six")
		assert.Error(t, err)
	})
}

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

func TestCachingEmbedderDimensionCheck(t *testing.T) {
	t.Run("passes through correct dimension", func(t *testing.T) {
		stub := &stubEmbedder{vec: []float32{0.1, 0.2, 0.3}}
		e := NewCachingEmbedder(stub, nil, 3)

		vec, err := e.Embed(context.Background(), "โค้ก")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	})

	t.Run("wrong dimension is a configuration error", func(t *testing.T) {
		stub := &stubEmbedder{vec: make([]float32, 768)}
		e := NewCachingEmbedder(stub, nil, 1536)

		_, err := e.Embed(context.Background(), "โค้ก")
		require.Error(t, err)

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.ConfigurationError, appErr.Type)
	})
}
