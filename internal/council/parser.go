package council

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxParsedActions caps the actions accepted from model output.
	MaxParsedActions = 5

	fallbackResponse   = "I'm not quite sure how to put that into words, but I'm here with you."
	fallbackConfidence = 0.2
	maxSentenceLen     = 200
)

// #region patterns

var (
	fencedJSON     = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")
	anyFence       = regexp.MustCompile("(?s)```.*?```")
	blockComment   = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment    = regexp.MustCompile(`(?m)(^|[\s,{\[])//[^\n]*`)
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	singleQuoted   = regexp.MustCompile(`([{,:\[]\s*)'([^'\\]*)'`)
	bareKey        = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	sentenceFinder = regexp.MustCompile(`[^.!?]*[.!?]`)
)

// #endregion patterns

// ResponseParser turns free-form model output into a Decision. It never fails.
type ResponseParser struct{}

// NewResponseParser creates a ResponseParser.
func NewResponseParser() *ResponseParser { return &ResponseParser{} }

// Parse extracts, repairs and validates a council decision from raw model text.
func (rp *ResponseParser) Parse(raw string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = parseFallback(raw, fmt.Sprintf("panic: %v", r))
		}
	}()

	for _, c := range candidates(raw) {
		if obj, ok := decodeObject(c.text); ok {
			return coerce(obj, raw, c.method, false)
		}
		if obj, ok := decodeObject(repairJSON(c.text)); ok {
			return coerce(obj, raw, c.method, true)
		}
	}
	return parseFallback(raw, "no JSON object found")
}

// #region extraction

type candidate struct {
	text   string
	method string
}

// candidates lists JSON candidates in extraction order: fenced block, first balanced
// brace span, whole text.
func candidates(raw string) []candidate {
	var out []candidate
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		out = append(out, candidate{m[1], "fenced"})
	}
	if span, ok := firstBraceSpan(raw); ok {
		out = append(out, candidate{span, "braces"})
	}
	if t := strings.TrimSpace(raw); t != "" {
		out = append(out, candidate{t, "raw"})
	}
	return out
}

// firstBraceSpan returns the first balanced {...} span, skipping braces inside strings.
func firstBraceSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '"':
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func decodeObject(text string) (map[string]interface{}, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// repairJSON applies light fixes for common model mistakes.
func repairJSON(s string) string {
	s = blockComment.ReplaceAllString(s, "")
	s = lineComment.ReplaceAllString(s, "$1")
	s = singleQuoted.ReplaceAllString(s, `$1"$2"`)
	s = bareKey.ReplaceAllString(s, `$1"$2":`)
	s = trailingComma.ReplaceAllString(s, "$1")
	return s
}

// #endregion extraction

// #region coerce

func coerce(obj map[string]interface{}, raw, method string, repaired bool) Decision {
	d := Decision{
		Response:         strings.TrimSpace(stringField(obj, "response")),
		Actions:          coerceActions(obj["actions"]),
		Mood:             stringField(obj, "mood"),
		Reasoning:        stringField(obj, "reasoning"),
		CouncilReasoning: coerceReasoning(obj["council_reasoning"]),
		Metadata: map[string]interface{}{
			"source":       "llm",
			"parse_method": method,
			"repaired":     repaired,
		},
	}
	responseFromJSON := d.Response != ""
	if !responseFromJSON {
		d.Response = bestEffortSentence(raw)
	}
	if d.Mood == "" {
		d.Mood = "neutral"
	}
	d.Confidence = completeness(d, responseFromJSON, repaired)
	return d
}

func stringField(obj map[string]interface{}, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func coerceActions(v interface{}) []Action {
	list, ok := v.([]interface{})
	if !ok {
		return []Action{}
	}
	out := make([]Action, 0, min(len(list), MaxParsedActions))
	for _, item := range list {
		if len(out) == MaxParsedActions {
			break
		}
		switch it := item.(type) {
		case map[string]interface{}:
			act := Action{Type: ParseActionType(stringField(it, "type")), Target: stringField(it, "target")}
			if act.Target == "" {
				act.Target = stringField(it, "object")
			}
			if params, ok := it["parameters"].(map[string]interface{}); ok {
				act.Parameters = params
			} else if params, ok := it["params"].(map[string]interface{}); ok {
				act.Parameters = params
			}
			out = append(out, act)
		case string:
			out = append(out, Action{Type: ParseActionType(it)})
		}
	}
	return out
}

func coerceReasoning(v interface{}) map[string]string {
	out := map[string]string{}
	m, ok := v.(map[string]interface{})
	if !ok {
		return out
	}
	for k, val := range m {
		if val == nil {
			continue
		}
		s, ok := val.(string)
		if !ok {
			s = fmt.Sprint(val)
		}
		if strings.TrimSpace(s) != "" {
			out[k] = s
		}
	}
	return out
}

// completeness scores how much of the documented shape came back. It is a UI signal,
// not a probability.
func completeness(d Decision, responseFromJSON, repaired bool) float64 {
	score := 0.0
	if responseFromJSON {
		score += 0.3
	}
	if n := len(d.CouncilReasoning); n >= 3 {
		score += 0.2
	} else {
		score += 0.05 * float64(n)
	}
	if len(d.Actions) > 0 {
		score += 0.15
	}
	if len(d.Response) >= 20 && strings.ContainsAny(d.Response[len(d.Response)-1:], ".!?") {
		score += 0.1
	}
	if repaired {
		score += 0.05
	} else {
		score += 0.15
	}
	if d.Reasoning != "" {
		score += 0.1
	}
	return min(score, 1.0)
}

// #endregion coerce

// #region fallback

func parseFallback(raw, why string) Decision {
	return Decision{
		Response:         bestEffortSentence(raw),
		Actions:          []Action{Expression("thoughtful")},
		Mood:             "neutral",
		Reasoning:        "Response parsing fell back to text extraction: " + why,
		CouncilReasoning: map[string]string{},
		Confidence:       fallbackConfidence,
		Metadata:         map[string]interface{}{"source": "llm", "parse_fallback": true},
	}
}

// bestEffortSentence pulls the first readable sentence out of raw text.
func bestEffortSentence(raw string) string {
	text := anyFence.ReplaceAllString(raw, " ")
	if span, ok := firstBraceSpan(text); ok {
		text = strings.Replace(text, span, " ", 1)
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return fallbackResponse
	}
	for _, s := range sentenceFinder.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); len(strings.Fields(s)) >= 2 {
			return truncate(s, maxSentenceLen)
		}
	}
	return truncate(text, maxSentenceLen)
}

// #endregion fallback
