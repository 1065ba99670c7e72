package llm

import (
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/minghe/poetry-annotator/internal/parse"
	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/taxonomy"
)

func TestClassifyProviderErrors(t *testing.T) {
	c := &OpenAIClient{cfg: ModelConfig{Identifier: "test-model"}}

	tests := []struct {
		name          string
		err           error
		wantTransient bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, false},
		{"request error 500", &openai.RequestError{HTTPStatusCode: 500}, true},
		{"plain timeout", errors.New("request timed out"), true},
		{"plain garbage", errors.New("something odd"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.classify(tt.err)
			var pe *ProviderError
			if !errors.As(got, &pe) {
				t.Fatalf("expected ProviderError, got %T", got)
			}
			if pe.Transient != tt.wantTransient {
				t.Errorf("transient = %v, want %v", pe.Transient, tt.wantTransient)
			}
			if pe.Model != "test-model" {
				t.Errorf("expected model identifier on error, got %q", pe.Model)
			}
			if IsTransient(got) != tt.wantTransient {
				t.Errorf("IsTransient disagrees with error")
			}
		})
	}
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	t.Setenv("PAC_TEST_MISSING_KEY", "")
	_, err := NewOpenAIClient(ModelConfig{Identifier: "m", APIKeyEnv: "PAC_TEST_MISSING_KEY"})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestBuildPrompts(t *testing.T) {
	categories, err := taxonomy.Parse([]byte(`
categories:
  - id: E1
    name_zh: 思念
    name_en: longing
    type: emotion
  - id: RISK-LOW
    name_zh: 低风险
    type: risk_level
`))
	if err != nil {
		t.Fatal(err)
	}
	idx := taxonomy.NewIndex(categories)

	poem := &store.Poem{
		ID:     1,
		Title:  "静夜思",
		Author: "李白",
		Paragraphs: []string{
			"床前明月光，疑是地上霜。",
			"举头望明月，低头思故乡。",
		},
	}
	sentences := parse.Segment(poem.ID, poem.Paragraphs)

	system, user := BuildPrompts(poem, sentences, idx)

	for _, want := range []string{"E1", "思念", "RISK-LOW", "sentence_uid"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	for _, want := range []string{"静夜思", "李白", "[P1-S1]", "[P1-S2]", "床前明月光"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}
