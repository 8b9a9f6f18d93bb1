package prompt

import "fmt"

// Flag codes emitted by the analysis rules for every *_flag field
const (
	FlagRed        = 0
	FlagGreen      = 1
	FlagAmber      = 2
	FlagMediumRisk = 3 // display purpose only
	FlagWhite      = 4 // data is missing for this field
)

// FlagLabel names a flag code, unknown codes become "unknown"
func FlagLabel(code int) string {
	switch code {
	case FlagRed:
		return "red"
	case FlagGreen:
		return "green"
	case FlagAmber:
		return "amber"
	case FlagMediumRisk:
		return "medium_risk"
	case FlagWhite:
		return "white"
	default:
		return "unknown"
	}
}

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a credit analyst reviewing the output of an automated financial rules engine. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Flag codes used by the engine for every field ending in "_flag":
- 0 = red (rule failed)
- 1 = green (rule passed)
- 2 = amber (borderline, needs review)
- 3 = medium risk (display only)
- 4 = white (input data missing)

Known fields:
- total_revenue: net revenue of the latest standalone financial year; the 5 crore threshold is 50,000,000.
- total_borrowing_to_revenue_ratio: (long term + short term borrowings) / revenue; green at or below 0.25.
- iscr_value: (EBIT + depreciation + 1) / (interest expenses + 1); green at or above 2.

Requirements:
- Output must be a single JSON object.
- indicators lists every field of the input; flag is the lowercase label of the flag code or "" when the field is not a flag.
- Keep meaning and advice short and factual. Do not invent numbers that are not in the input.

Schema (example with empty values):
{
  "summary": "<string>",
  "indicators": [
    {"name": "<string>", "value": <number|string|null>, "flag": "<red|green|amber|medium_risk|white|>", "meaning": "<string>"}
  ],
  "advice": "<string>"
}`
}

// GetUserPrompt wraps the analysis result JSON into the user message.
func GetUserPrompt(resultJSON string) string {
	return fmt.Sprintf("Explain this analysis result and respond with the JSON per schema. Result: %s", resultJSON)
}
