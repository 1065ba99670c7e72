package annotate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minghe/poetry-annotator/internal/llm"
	"github.com/minghe/poetry-annotator/internal/parse"
	"github.com/minghe/poetry-annotator/internal/report"
	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/taxonomy"
)

type fakeClient struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, userPrompt string) (string, error)
}

func (f *fakeClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, userPrompt)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func openTestStores(t *testing.T, prefix string) *store.Stores {
	t.Helper()
	paths := store.DatasetPaths{
		Raw:        prefix + "-raw.db",
		Annotation: prefix + "-annotations.db",
		Taxonomy:   prefix + "-taxonomy.db",
	}
	t.Cleanup(func() {
		for _, p := range []string{paths.Raw, paths.Annotation, paths.Taxonomy} {
			os.Remove(p)
			os.Remove(p + "-shm")
			os.Remove(p + "-wal")
		}
	})

	ss, err := store.OpenStores(paths, &store.OpenOptions{CreateSchema: true})
	if err != nil {
		t.Fatalf("failed to open stores: %v", err)
	}
	t.Cleanup(func() { ss.Close() })
	return ss
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
  - id: RISK-LOW
    name_zh: 低风险
    type: risk_level
`))
	if err != nil {
		t.Fatal(err)
	}
	return taxonomy.NewIndex(categories)
}

func testRunner(t *testing.T, ss *store.Stores, client llm.Client) *Runner {
	t.Helper()
	return NewRunner(&Config{
		Stores: ss,
		Client: client,
		Model: llm.ModelConfig{
			Identifier:    "test-model",
			MaxWorkers:    1,
			MaxRetries:    3,
			RetryWait:     time.Millisecond,
			RateCapacity:  100,
			RateRefillSec: 1000,
		},
		Index:  testIndex(t),
		Logger: report.NullLogger(),
	})
}

func importPoem(t *testing.T, ss *store.Stores, id int64, paragraphs ...string) {
	t.Helper()
	full := strings.Join(paragraphs, "")
	err := ss.Raw.ImportPoems([]*store.Poem{{
		ID: id, Title: fmt.Sprintf("poem-%d", id), Author: "李白",
		Paragraphs: paragraphs, FullText: full,
	}})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunAnnotatesTwoSentencePoem(t *testing.T) {
	ss := openTestStores(t, "test-run-ok")
	importPoem(t, ss, 1, "床前明月光，疑是地上霜。", "举头望明月，低头思故乡。")

	client := &fakeClient{fn: func(call int, userPrompt string) (string, error) {
		if !strings.Contains(userPrompt, "[P1-S1]") || !strings.Contains(userPrompt, "[P1-S2]") {
			return "", fmt.Errorf("prompt missing sentence uids: %s", userPrompt)
		}
		return `[
			{"sentence_uid": "P1-S1", "primary_emotion": "E2", "risk_level": "RISK-LOW"},
			{"sentence_uid": "P1-S2", "primary_emotion": "E1", "secondary_emotions": ["E2"]}
		]`, nil
	}}

	r := testRunner(t, ss, client)
	result, err := r.Run(context.Background(), store.AnnotateQuery{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Completed != 1 || result.Failed != 0 {
		t.Fatalf("expected 1 completed, got %+v", result)
	}

	annotation, err := ss.Annotation.GetAnnotation(1, "test-model")
	if err != nil {
		t.Fatal(err)
	}
	if annotation == nil || annotation.Status != store.StatusCompleted {
		t.Fatalf("expected completed annotation, got %+v", annotation)
	}

	rows, err := ss.Annotation.GetSentenceRows(annotation.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 sentence rows, got %d", len(rows))
	}
	if rows[0].UID != "P1-S1" || rows[0].Text != "床前明月光，疑是地上霜。" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if len(rows[1].Emotions) != 2 {
		t.Errorf("expected primary + secondary emotion, got %+v", rows[1].Emotions)
	}

	// The poem no longer shows up as pending
	pending, err := ss.GetPoemsToAnnotate("test-model", store.AnnotateQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending poems, got %d", len(pending))
	}
}

func TestRunRecordsValidationFailure(t *testing.T) {
	ss := openTestStores(t, "test-run-missing")
	importPoem(t, ss, 1, "一句。", "二句。", "三句。")

	client := &fakeClient{fn: func(call int, userPrompt string) (string, error) {
		// One sentence missing from the response
		return `[
			{"sentence_uid": "P1-S1", "primary_emotion": "E1"},
			{"sentence_uid": "P1-S3", "primary_emotion": "E2"}
		]`, nil
	}}

	r := testRunner(t, ss, client)
	result, err := r.Run(context.Background(), store.AnnotateQuery{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Completed != 0 || result.Failed != 1 {
		t.Fatalf("expected 1 failed, got %+v", result)
	}
	// Validation errors are not retried
	if client.callCount() != 1 {
		t.Errorf("expected 1 call, got %d", client.callCount())
	}

	annotation, err := ss.Annotation.GetAnnotation(1, "test-model")
	if err != nil {
		t.Fatal(err)
	}
	if annotation == nil || annotation.Status != store.StatusFailed {
		t.Fatalf("expected failed annotation, got %+v", annotation)
	}
	if !strings.Contains(annotation.ErrorMessage, "P1-S2") {
		t.Errorf("expected missing sentence in error message, got %q", annotation.ErrorMessage)
	}

	// Failed poems stay pending for the next run
	pending, err := ss.GetPoemsToAnnotate("test-model", store.AnnotateQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("expected failed poem to remain pending, got %d", len(pending))
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	ss := openTestStores(t, "test-run-retry")
	importPoem(t, ss, 1, "一句。")

	client := &fakeClient{fn: func(call int, userPrompt string) (string, error) {
		if call < 3 {
			return "", &llm.ProviderError{Model: "test-model", StatusCode: 429, Transient: true,
				Err: fmt.Errorf("rate limited")}
		}
		return `[{"sentence_uid": "P1-S1", "primary_emotion": "E1"}]`, nil
	}}

	r := testRunner(t, ss, client)
	result, err := r.Run(context.Background(), store.AnnotateQuery{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Completed != 1 {
		t.Fatalf("expected completion after retries, got %+v", result)
	}
	if client.callCount() != 3 {
		t.Errorf("expected 3 calls, got %d", client.callCount())
	}
}

func TestRunDoesNotRetryPermanentErrors(t *testing.T) {
	ss := openTestStores(t, "test-run-perm")
	importPoem(t, ss, 1, "一句。")

	client := &fakeClient{fn: func(call int, userPrompt string) (string, error) {
		return "", &llm.ProviderError{Model: "test-model", StatusCode: 401, Transient: false,
			Err: fmt.Errorf("invalid api key")}
	}}

	r := testRunner(t, ss, client)
	result, err := r.Run(context.Background(), store.AnnotateQuery{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected 1 failed, got %+v", result)
	}
	if client.callCount() != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", client.callCount())
	}

	annotation, _ := ss.Annotation.GetAnnotation(1, "test-model")
	if annotation == nil || !strings.Contains(annotation.ErrorMessage, "invalid api key") {
		t.Errorf("expected provider error recorded, got %+v", annotation)
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	ss := openTestStores(t, "test-run-cancel")
	for i := int64(1); i <= 5; i++ {
		importPoem(t, ss, i, "一句。")
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{fn: func(call int, userPrompt string) (string, error) {
		if call == 1 {
			cancel()
		}
		return "", ctx.Err()
	}}

	r := testRunner(t, ss, client)
	_, err := r.Run(ctx, store.AnnotateQuery{})
	if err == nil {
		t.Fatal("expected error from canceled run")
	}
	// No new poems are attempted after cancellation
	if client.callCount() > 2 {
		t.Errorf("expected no new calls after cancel, got %d", client.callCount())
	}
}

func TestRunAllBoundsPipelines(t *testing.T) {
	var mu sync.Mutex
	active, maxActive := 0, 0

	makeClient := func() llm.Client {
		return &fakeClient{fn: func(call int, userPrompt string) (string, error) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return `[{"sentence_uid": "P1-S1", "primary_emotion": "E1"}]`, nil
		}}
	}

	ss := openTestStores(t, "test-run-all")
	importPoem(t, ss, 1, "一句。")

	var runners []*Runner
	for i := 0; i < 3; i++ {
		runners = append(runners, NewRunner(&Config{
			Stores: ss,
			Client: makeClient(),
			Model: llm.ModelConfig{
				Identifier:    fmt.Sprintf("model-%d", i),
				MaxWorkers:    1,
				RateCapacity:  100,
				RateRefillSec: 1000,
			},
			Index:  testIndex(t),
			Logger: report.NullLogger(),
		}))
	}

	results, err := RunAll(context.Background(), runners, store.AnnotateQuery{}, 1)
	if err != nil {
		t.Fatalf("run all failed: %v", err)
	}
	if maxActive > 1 {
		t.Errorf("expected at most 1 concurrent pipeline, saw %d", maxActive)
	}
	for _, res := range results {
		if res.Completed != 1 {
			t.Errorf("model %s: expected 1 completed, got %+v", res.Model, res)
		}
	}
}

func TestSentenceRows(t *testing.T) {
	annotations := []parse.SentenceAnnotation{
		{
			SentenceUID:        "P1-S1",
			SentenceText:       "床前明月光",
			PrimaryEmotion:     "E1",
			SecondaryEmotions:  []string{"E2", "E1"}, // duplicate of primary dropped
			RelationshipAction: "RA1",
			RiskLevel:          "RISK-LOW",
		},
	}

	rows := SentenceRows(annotations)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if len(row.Emotions) != 2 {
		t.Fatalf("expected 2 emotion links, got %+v", row.Emotions)
	}
	if !row.Emotions[0].IsPrimary || row.Emotions[0].EmotionID != "E1" {
		t.Errorf("expected E1 primary, got %+v", row.Emotions[0])
	}
	if row.Emotions[1].IsPrimary {
		t.Error("secondary emotion must not be primary")
	}
	if len(row.Strategies) != 2 {
		t.Fatalf("expected 2 strategy links, got %+v", row.Strategies)
	}
	for _, s := range row.Strategies {
		if !s.IsPrimary {
			t.Errorf("strategy %s should be primary", s.StrategyID)
		}
	}
}
