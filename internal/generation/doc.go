// Package generation defines the boundary between the application core and
// the LLM that reads food photos, estimates nutrient content and reads
// receipts. Implementations live in internal/platform/gemini.
package generation
