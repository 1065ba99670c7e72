package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// SentenceAnnotation is one sentence's labels as produced by a model.
// The same shape is written to the annotation_result column and to the
// event log.
type SentenceAnnotation struct {
	SentenceUID        string   `json:"sentence_uid"`
	SentenceText       string   `json:"sentence_text,omitempty"`
	PrimaryEmotion     string   `json:"primary_emotion"`
	SecondaryEmotions  []string `json:"secondary_emotions,omitempty"`
	RelationshipAction string   `json:"relationship_action,omitempty"`
	EmotionalStrategy  string   `json:"emotional_strategy,omitempty"`
	CommunicationScene string   `json:"communication_scene,omitempty"`
	RiskLevel          string   `json:"risk_level,omitempty"`
}

// ParseError means no annotation array could be extracted from the
// model output. The raw text is kept for the failure record.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model response: %s", e.Reason)
}

// Wrapper keys models wrap their array in when they ignore the format
// instructions
var wrapperKeys = []string{"annotations", "result", "data"}

// ExtractAnnotations pulls the annotation array out of raw model
// output. Strategies are tried in order: strict JSON, markdown fence
// stripping, outermost bracket matching with wrapper-key probing, and
// finally a lenient repair pass over common JSON defects. Returns
// ParseError when every strategy fails.
func ExtractAnnotations(raw string) ([]SentenceAnnotation, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ParseError{Reason: "empty response", Raw: raw}
	}

	candidates := []string{trimmed}
	if fenced := stripMarkdownFence(trimmed); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if arr := outermost(trimmed, '[', ']'); arr != "" {
		candidates = append(candidates, arr)
	}
	if obj := outermost(trimmed, '{', '}'); obj != "" {
		candidates = append(candidates, obj)
	}

	var repaired []string
	for _, c := range candidates {
		repaired = append(repaired, repairJSON(c))
	}
	candidates = append(candidates, repaired...)

	for _, candidate := range candidates {
		if annotations, ok := decodeCandidate(candidate); ok {
			return annotations, nil
		}
	}

	return nil, &ParseError{Reason: "no JSON annotation array found", Raw: raw}
}

// decodeCandidate tries a candidate as a bare array, then as an object
// holding the array under a known wrapper key
func decodeCandidate(candidate string) ([]SentenceAnnotation, bool) {
	var annotations []SentenceAnnotation
	if err := json.Unmarshal([]byte(candidate), &annotations); err == nil && len(annotations) > 0 {
		return annotations, true
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &wrapper); err != nil {
		return nil, false
	}
	for _, key := range wrapperKeys {
		inner, ok := wrapper[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, &annotations); err == nil && len(annotations) > 0 {
			return annotations, true
		}
	}
	return nil, false
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// stripMarkdownFence returns the content of the first code fence, or ""
func stripMarkdownFence(s string) string {
	m := fenceRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// outermost returns the first balanced region delimited by open/close,
// ignoring brackets inside JSON strings
func outermost(s string, open, close rune) string {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case !inString && r == open:
			if depth == 0 {
				start = i
			}
			depth++
		case !inString && r == close:
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return s[start : i+len(string(close))]
				}
			}
		}
	}
	return ""
}

var (
	smartQuotesRe   = regexp.MustCompile(`[\x{201c}\x{201d}]`)
	smartApostRe    = regexp.MustCompile(`[\x{2018}\x{2019}]`)
	lineCommentRe   = regexp.MustCompile(`(?m)^\s*//.*$`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	pythonLiteralRe = regexp.MustCompile(`\b(True|False|None)\b`)
)

// repairJSON fixes the defects models habitually emit: smart quotes,
// line comments, trailing commas and Python literals
func repairJSON(s string) string {
	s = smartQuotesRe.ReplaceAllString(s, `"`)
	s = smartApostRe.ReplaceAllString(s, `'`)
	s = lineCommentRe.ReplaceAllString(s, "")
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = pythonLiteralRe.ReplaceAllStringFunc(s, func(m string) string {
		switch m {
		case "True":
			return "true"
		case "False":
			return "false"
		default:
			return "null"
		}
	})
	return s
}
