package parse

import (
	"errors"
	"strings"
	"testing"

	"github.com/minghe/poetry-annotator/internal/taxonomy"
)

func TestSentenceUID(t *testing.T) {
	if got := SentenceUID(42, 0); got != "P42-S1" {
		t.Errorf("SentenceUID(42, 0) = %s", got)
	}
	if got := SentenceUID(7, 3); got != "P7-S4" {
		t.Errorf("SentenceUID(7, 3) = %s", got)
	}
}

func TestSegment(t *testing.T) {
	tests := []struct {
		name       string
		paragraphs []string
		want       []string
	}{
		{
			name:       "terminal punctuation per paragraph",
			paragraphs: []string{"床前明月光，疑是地上霜。", "举头望明月，低头思故乡。"},
			want:       []string{"床前明月光，疑是地上霜。", "举头望明月，低头思故乡。"},
		},
		{
			name:       "multiple sentences in one paragraph",
			paragraphs: []string{"春眠不觉晓。处处闻啼鸟。"},
			want:       []string{"春眠不觉晓。", "处处闻啼鸟。"},
		},
		{
			name:       "question and exclamation marks",
			paragraphs: []string{"君不见黄河之水天上来！奔流到海不复回？"},
			want:       []string{"君不见黄河之水天上来！", "奔流到海不复回？"},
		},
		{
			name:       "paragraph without terminator",
			paragraphs: []string{"无标点段落"},
			want:       []string{"无标点段落"},
		},
		{
			name:       "empty paragraph skipped",
			paragraphs: []string{"", "一句。"},
			want:       []string{"一句。"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Segment(1, tt.paragraphs)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d sentences, got %d: %+v", len(tt.want), len(got), got)
			}
			for i, s := range got {
				if s.Text != tt.want[i] {
					t.Errorf("sentence %d: expected %q, got %q", i, tt.want[i], s.Text)
				}
				wantUID := SentenceUID(1, i)
				if s.UID != wantUID {
					t.Errorf("sentence %d: expected UID %s, got %s", i, wantUID, s.UID)
				}
			}
		})
	}
}

const annotationJSON = `[
  {"sentence_uid": "P1-S1", "primary_emotion": "E1", "risk_level": "RISK-LOW"},
  {"sentence_uid": "P1-S2", "primary_emotion": "E2", "secondary_emotions": ["E1"]}
]`

func TestExtractAnnotations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"strict json", annotationJSON},
		{"markdown fence", "Here you go:\n```json\n" + annotationJSON + "\n```\nHope that helps!"},
		{"fence without language", "```\n" + annotationJSON + "\n```"},
		{"leading prose", "The annotations are as follows: " + annotationJSON + " Let me know."},
		{"wrapper object", `{"annotations": ` + annotationJSON + `}`},
		{"result wrapper", `{"result": ` + annotationJSON + `}`},
		{"trailing comma", `[{"sentence_uid": "P1-S1", "primary_emotion": "E1",}, {"sentence_uid": "P1-S2", "primary_emotion": "E2",},]`},
		{"python literals", `[{"sentence_uid": "P1-S1", "primary_emotion": "E1", "secondary_emotions": None}, {"sentence_uid": "P1-S2", "primary_emotion": "E2"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractAnnotations(tt.raw)
			if err != nil {
				t.Fatalf("extract failed: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 annotations, got %d", len(got))
			}
			if got[0].SentenceUID != "P1-S1" || got[0].PrimaryEmotion != "E1" {
				t.Errorf("unexpected first annotation: %+v", got[0])
			}
		})
	}
}

func TestExtractAnnotationsFails(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"prose only", "I am unable to annotate this poem."},
		{"broken json", `[{"sentence_uid": "P1-S1", "primary_emo`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractAnnotations(tt.raw)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if parseErr.Raw != tt.raw {
				t.Error("ParseError should carry the raw response")
			}
		})
	}
}

func testIndex(t *testing.T) *taxonomy.Index {
	t.Helper()
	categories, err := taxonomy.Parse([]byte(`
categories:
  - id: E1
    name_zh: 思念
    type: emotion
  - id: E2
    name_zh: 孤寂
    type: emotion
  - id: RA1
    name_zh: 自省
    type: relationship_action
  - id: RISK-LOW
    name_zh: 低风险
    type: risk_level
`))
	if err != nil {
		t.Fatal(err)
	}
	return taxonomy.NewIndex(categories)
}

func TestValidateTwoSentencePoem(t *testing.T) {
	v := NewValidator(testIndex(t))
	expected := Segment(1, []string{"床前明月光，疑是地上霜。", "举头望明月，低头思故乡。"})

	annotations := []SentenceAnnotation{
		{SentenceUID: "P1-S1", PrimaryEmotion: "E2", RiskLevel: "RISK-LOW"},
		{SentenceUID: "P1-S2", PrimaryEmotion: "E1", SecondaryEmotions: []string{"E2"}, RelationshipAction: "RA1"},
	}

	valid, err := v.Validate(annotations, expected)
	if err != nil {
		t.Fatalf("expected valid annotations, got %v", err)
	}
	if len(valid) != 2 {
		t.Fatalf("expected 2 valid annotations, got %d", len(valid))
	}
	// Sentence text comes from segmentation, not the model
	if valid[0].SentenceText != "床前明月光，疑是地上霜。" {
		t.Errorf("unexpected sentence text: %q", valid[0].SentenceText)
	}
}

func TestValidateMissingSentence(t *testing.T) {
	v := NewValidator(testIndex(t))
	expected := Segment(1, []string{"一句。", "二句。", "三句。"})

	annotations := []SentenceAnnotation{
		{SentenceUID: "P1-S1", PrimaryEmotion: "E1"},
		{SentenceUID: "P1-S3", PrimaryEmotion: "E2"},
	}

	_, err := v.Validate(annotations, expected)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(verr.Violations), verr.Violations)
	}
	if !strings.Contains(verr.Violations[0], "P1-S2") {
		t.Errorf("expected violation for P1-S2, got %s", verr.Violations[0])
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	v := NewValidator(testIndex(t))
	expected := Segment(1, []string{"一句。", "二句。"})

	annotations := []SentenceAnnotation{
		{SentenceUID: "P1-S1", PrimaryEmotion: "NOPE", RiskLevel: "RA1"}, // wrong emotion, wrong type for risk
		{SentenceUID: "P1-S2"}, // no primary emotion
	}

	_, err := v.Validate(annotations, expected)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Violations) != 3 {
		t.Errorf("expected 3 violations, got %d: %v", len(verr.Violations), verr.Violations)
	}
}

func TestValidateIgnoresExtraSentences(t *testing.T) {
	v := NewValidator(testIndex(t))
	expected := Segment(1, []string{"一句。"})

	annotations := []SentenceAnnotation{
		{SentenceUID: "P1-S1", PrimaryEmotion: "E1"},
		{SentenceUID: "P1-S9", PrimaryEmotion: "E1"}, // invented by the model
	}

	valid, err := v.Validate(annotations, expected)
	if err != nil {
		t.Fatalf("expected extra sentence to be ignored, got %v", err)
	}
	if len(valid) != 1 {
		t.Errorf("expected 1 valid annotation, got %d", len(valid))
	}
}
