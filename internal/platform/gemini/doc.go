// Package gemini implements the generation interfaces on top of Google's
// Gemini API.
//
// One Client serves three calls:
//
//   - RecognizeFoodItems sends a photo to the vision model and leniently
//     parses the JSON list of food items it returns.
//   - EstimateNutrientProfile asks for the nutrient content of 100 g of a
//     food under a response schema that requires every tracked nutrient.
//   - ReadReceipt transcribes a receipt image or PDF into raw text and
//     purchased line items.
//
// Transient API failures are retried after a fixed delay. Safety
// blocks and client errors are returned immediately, wrapped in the
// generation package's error values so callers can classify them without
// importing genai.
package gemini
