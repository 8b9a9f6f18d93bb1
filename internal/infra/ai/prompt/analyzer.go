package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Indicator is one field of an analysis result, explained
type Indicator struct {
	Name    string `json:"name"`
	Value   any    `json:"value"`
	Flag    string `json:"flag"`
	Meaning string `json:"meaning"`
}

// Explanation follows the schema announced in GetSystemPrompt
type Explanation struct {
	Summary    string      `json:"summary"`
	Indicators []Indicator `json:"indicators"`
	Advice     string      `json:"advice"`
}

var meanings = map[string]string{
	"total_revenue":                    "Net revenue of the latest standalone financial year.",
	"total_borrowing_to_revenue_ratio": "Total borrowings divided by revenue.",
	"iscr_value":                       "Interest service coverage ratio.",
	"iscr_flag":                        "Green when ISCR is at least 2.",
	"total_revenue_5cr_flag":           "Green when revenue is at least 5 crore (50,000,000).",
	"borrowing_to_revenue_flag":        "Green when borrowings are at most 25% of revenue, amber otherwise.",
}

// LocalExplainer explains a result without calling an AI provider. It reads
// *_flag fields and summarises them.
type LocalExplainer struct{}

func (LocalExplainer) Explain(_ context.Context, resultJSON string) (string, error) {
	return ExplainResult(resultJSON)
}

// ExplainResult builds the Explanation for a result object and returns it as
// a JSON string
func ExplainResult(resultJSON string) (string, error) {
	var fields map[string]any
	dec := json.NewDecoder(strings.NewReader(resultJSON))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return "", fmt.Errorf("decode analysis result: %w", err)
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	out := Explanation{Indicators: make([]Indicator, 0, len(names))}
	counts := map[string]int{}
	var red, amber []string

	for _, name := range names {
		v := fields[name]
		ind := Indicator{Name: name, Value: v, Meaning: meanings[name]}
		if strings.HasSuffix(name, "_flag") {
			if code, ok := flagCode(v); ok {
				ind.Flag = FlagLabel(code)
				counts[ind.Flag]++
				switch code {
				case FlagRed:
					red = append(red, name)
				case FlagAmber:
					amber = append(amber, name)
				}
			}
		}
		if ind.Meaning == "" {
			ind.Meaning = "Reported by the analysis rules."
		}
		out.Indicators = append(out.Indicators, ind)
	}

	flagged := counts["red"] + counts["green"] + counts["amber"] + counts["medium_risk"] + counts["white"]
	if flagged == 0 {
		out.Summary = fmt.Sprintf("%d indicators reported, none of them flagged.", len(names))
	} else {
		out.Summary = fmt.Sprintf("%d flags evaluated: %d green, %d amber, %d red, %d missing data.",
			flagged, counts["green"], counts["amber"], counts["red"], counts["white"])
	}

	switch {
	case len(red) > 0:
		out.Advice = "Failed rules need attention before approval: " + strings.Join(red, ", ") + "."
	case len(amber) > 0:
		out.Advice = "Borderline rules should be reviewed manually: " + strings.Join(amber, ", ") + "."
	case counts["white"] > 0:
		out.Advice = "Some inputs were missing; request complete financials and rerun the analysis."
	default:
		out.Advice = "No adverse flags. Proceed with standard review."
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func flagCode(v any) (int, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(i), true
}
