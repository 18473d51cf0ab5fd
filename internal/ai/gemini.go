// Package ai wraps the Gemini API behind the three adapter contracts the
// pipeline consumes: receipt item extraction (vision), text embedding, and
// quantity/unit validation. Each call is a single attempt; retry policy
// belongs to the caller.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/stocklens/stocklens-backend/config"
	"github.com/stocklens/stocklens-backend/logger"
	"github.com/stocklens/stocklens-backend/types"
)

const extractionPrompt = `คุณคือ AI ที่ช่วยอ่านและสกัดรายการสินค้าจากใบเสร็จ
กรุณาอ่านรูปภาพใบเสร็จนี้และสกัดรายการสินค้าทั้งหมด
ให้ตอบกลับเป็น JSON array เท่านั้น ไม่ต้องมีข้อความอื่น:
[{ "name": "ชื่อสินค้า", "quantity": "จำนวนและหน่วย", "original_text": "ข้อความต้นฉบับจากใบเสร็จ" }]

ตัวอย่าง:
[
  { "name": "โค้ก 325 มล.", "quantity": "6 กระป๋อง", "original_text": "โค้ก 325มล. x6" },
  { "name": "น้ำเปล่า", "quantity": "12 ขวด", "original_text": "น้ำเปล่า 12ขวด" }
]

ถ้าไม่พบรายการสินค้า ให้ตอบ [] เท่านั้น
สำคัญ: ให้ตอบเป็น JSON array เท่านั้น ไม่ต้องมีคำอธิบายเพิ่มเติม`

const validationSystemPrompt = `คุณคือ AI ที่ช่วยยืนยันและแปลงหน่วยสินค้าจากใบเสร็จ
คุณต้องวิเคราะห์ข้อความจากใบเสร็จและแปลงจำนวนเป็นหน่วยเดี่ยว

ให้ตอบกลับเป็น JSON เท่านั้น:
{
  "quantity": จำนวนเป็นตัวเลข (int),
  "unit": "หน่วย",
  "confidence": ค่าความมั่นใจ 0.0-1.0 (float)
}

ตัวอย่าง:
- "โค้กแพ็ค 6 กระป๋อง" → quantity: 6, unit: "กระป๋อง"
- "น้ำเปล่า 12 ขวด" → quantity: 12, unit: "ขวด"
- "ขนมปัง 2 แพ็ค" → quantity: 2, unit: "แพ็ค"

ถ้าไม่แน่ใจหรือข้อมูลไม่ชัดเจน ให้ confidence ต่ำกว่า 0.8`

// GeminiClient adapts the Gemini API to the pipeline's extraction, embedding
// and validation contracts.
type GeminiClient struct {
	client     *genai.Client
	vision     *genai.GenerativeModel
	validation *genai.GenerativeModel
	embedding  *genai.EmbeddingModel
	timeout    time.Duration
	log        *zap.SugaredLogger
}

// NewGeminiClient creates a Gemini-backed adapter set from AI configuration.
func NewGeminiClient(ctx context.Context, cfg config.AIConfig) (*GeminiClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	vision := client.GenerativeModel(cfg.VisionModel)
	vision.SetTemperature(0)

	validation := client.GenerativeModel(cfg.ValidationModel)
	// Low temperature keeps quantity resolutions consistent across polls.
	validation.SetTemperature(0.1)

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GeminiClient{
		client:     client,
		vision:     vision,
		validation: validation,
		embedding:  client.EmbeddingModel(cfg.EmbeddingModel),
		timeout:    timeout,
		log:        logger.GetLogger().Named("gemini"),
	}, nil
}

// Close releases the underlying API client.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// ExtractItems reads a receipt image and returns the extracted line items
// plus the raw model output for audit. Zero items is a valid result; an empty
// receipt is not an error.
func (g *GeminiClient) ExtractItems(ctx context.Context, image []byte, mime string) ([]types.ExtractedItem, string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	parts := []genai.Part{
		genai.ImageData(imageFormat(mime), image),
		genai.Text(extractionPrompt),
	}

	resp, err := g.vision.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, "", fmt.Errorf("vision model call failed: %w", err)
	}

	raw, err := responseText(resp)
	if err != nil {
		return nil, "", err
	}

	items, err := ParseExtractedItems(raw)
	if err != nil {
		return nil, raw, fmt.Errorf("unparseable extraction response: %w", err)
	}

	g.log.Infow("Extracted items from receipt", "count", len(items))
	return items, raw, nil
}

// Embed returns the embedding vector for text. The caller is responsible for
// caching and dimensionality checks.
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.embedding.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embedding model call failed: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embedding model returned no vector")
	}
	return resp.Embedding.Values, nil
}

// ValidateItem asks the model to resolve quantity phrasing against the
// matched product. Returns the model's (quantity, unit, confidence) triple;
// the caller merges it with heuristic parsing and enforces invariants.
func (g *GeminiClient) ValidateItem(ctx context.Context, matched types.MatchedProduct, originalText, quantityHint string) (Quantification, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var b strings.Builder
	b.WriteString(validationSystemPrompt)
	b.WriteString("\n\n")
	if matched.Matched() {
		fmt.Fprintf(&b, "สินค้าในคลัง: %q (หน่วย: %s)\n", matched.ProductName, matched.Unit)
		fmt.Fprintf(&b, "ความคล้ายคลึงจากการจับคู่: %.2f\n", matched.Similarity)
	} else {
		b.WriteString("ไม่พบสินค้าในคลังที่ตรงกัน\n")
	}
	fmt.Fprintf(&b, "ข้อความจากใบเสร็จ: %q\n", originalText)
	fmt.Fprintf(&b, "จำนวนที่อ่านได้: %q\n", quantityHint)
	b.WriteString("\nกรุณาแปลงเป็นจำนวนหน่วยเดี่ยว")

	resp, err := g.validation.GenerateContent(ctx, genai.Text(b.String()))
	if err != nil {
		return Quantification{}, fmt.Errorf("validation model call failed: %w", err)
	}

	raw, err := responseText(resp)
	if err != nil {
		return Quantification{}, err
	}

	q, err := ParseQuantification(raw)
	if err != nil {
		return Quantification{}, fmt.Errorf("unparseable validation response: %w", err)
	}
	return q, nil
}

// responseText flattens the text parts of a generation response.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// imageFormat converts a MIME type to the bare format suffix genai expects.
func imageFormat(mime string) string {
	if idx := strings.Index(mime, "/"); idx >= 0 {
		return mime[idx+1:]
	}
	if mime == "" {
		return "png"
	}
	return mime
}
