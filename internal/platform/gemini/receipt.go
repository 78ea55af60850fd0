package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/dingsen2/micronutrient-radar/internal/generation"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
)

const receiptPrompt = `Read this shopping receipt. Return a JSON object with: ` +
	`raw_text (the full transcription of the receipt), ` +
	`confidence (0-1, how legible the receipt is), and ` +
	`items (one entry per purchased food or grocery product with description, quantity and confidence). ` +
	`Skip totals, taxes, discounts and payment lines. Keep descriptions concise.`

func receiptSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"raw_text":   {Type: genai.TypeString},
			"confidence": {Type: genai.TypeNumber},
			"items": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"description": {Type: genai.TypeString},
						"quantity":    {Type: genai.TypeNumber},
						"confidence":  {Type: genai.TypeNumber},
					},
					Required: []string{"description"},
				},
			},
		},
		Required: []string{"raw_text", "items"},
	}
}

// ReadReceipt implements generation.ReceiptReader.
func (c *Client) ReadReceipt(ctx context.Context, data []byte, mimeType string) (*generation.ReceiptReading, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", generation.ErrEmptyInput, ErrEmptyImage)
	}
	log := logger.FromContextOrDefault(ctx, c.logger)

	parts := []*genai.Part{
		genai.NewPartFromText(receiptPrompt),
		genai.NewPartFromBytes(data, mimeType),
	}
	text, err := c.generate(ctx, "read_receipt", parts, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   receiptSchema(),
	})
	if err != nil {
		return nil, err
	}

	reading, err := parseReceiptReading(text)
	if err != nil {
		log.WarnContext(ctx, "could not parse receipt reading", slog.String("error", err.Error()))
		return nil, err
	}

	log.InfoContext(ctx, "read receipt",
		slog.Int("line_count", len(reading.Items)),
		slog.Float64("confidence", reading.Confidence))
	return reading, nil
}

// parseReceiptReading decodes the model's receipt transcription. Lines
// without a description are dropped and a missing quantity becomes 1.
func parseReceiptReading(text string) (*generation.ReceiptReading, error) {
	var payload struct {
		RawText    string   `json:"raw_text"`
		Confidence *float64 `json:"confidence"`
		Items      []struct {
			Description string   `json:"description"`
			Quantity    *float64 `json:"quantity"`
			Confidence  *float64 `json:"confidence"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}

	reading := &generation.ReceiptReading{
		RawText: strings.TrimSpace(payload.RawText),
		Items:   make([]generation.ReceiptLine, 0, len(payload.Items)),
	}
	if payload.Confidence != nil {
		reading.Confidence = clampUnit(*payload.Confidence)
	}

	for _, item := range payload.Items {
		description := strings.TrimSpace(item.Description)
		if description == "" {
			continue
		}
		line := generation.ReceiptLine{Description: description, Quantity: 1}
		if item.Quantity != nil && *item.Quantity > 0 {
			line.Quantity = *item.Quantity
		}
		if item.Confidence != nil {
			line.Confidence = clampUnit(*item.Confidence)
		} else {
			line.Confidence = reading.Confidence
		}
		reading.Items = append(reading.Items, line)
	}
	return reading, nil
}
