package parse

import (
	"fmt"
	"strings"

	"github.com/minghe/poetry-annotator/internal/taxonomy"
)

// ValidationError aggregates every violation found in one model
// response, so a failure record carries the full diagnosis instead of
// the first problem
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("annotation validation failed (%d violations): %s",
		len(e.Violations), strings.Join(e.Violations, "; "))
}

// Validator checks extracted annotations against the taxonomy and the
// poem's expected sentences
type Validator struct {
	Index *taxonomy.Index
}

// NewValidator creates a validator over a taxonomy index
func NewValidator(idx *taxonomy.Index) *Validator {
	return &Validator{Index: idx}
}

// Validate checks annotations against the expected sentence set.
// Annotations for unknown UIDs are dropped; expected UIDs without an
// annotation are violations, as are unknown category IDs and sentences
// without a primary emotion. Sentence text is always taken from the
// segmentation, not from the model. On any violation the full list is
// returned as a ValidationError and no annotations are returned.
func (v *Validator) Validate(annotations []SentenceAnnotation, expected []Sentence) ([]SentenceAnnotation, error) {
	expectedByUID := make(map[string]Sentence, len(expected))
	for _, s := range expected {
		expectedByUID[s.UID] = s
	}

	var violations []string
	seen := make(map[string]struct{})
	var valid []SentenceAnnotation

	for i, a := range annotations {
		if a.SentenceUID == "" {
			violations = append(violations, fmt.Sprintf("annotation %d has no sentence_uid", i))
			continue
		}
		sent, ok := expectedByUID[a.SentenceUID]
		if !ok {
			// Models sometimes invent extra sentences; ignore them
			continue
		}
		if _, dup := seen[a.SentenceUID]; dup {
			violations = append(violations, fmt.Sprintf("duplicate annotation for %s", a.SentenceUID))
			continue
		}
		seen[a.SentenceUID] = struct{}{}

		if a.PrimaryEmotion == "" {
			violations = append(violations, fmt.Sprintf("%s: no primary emotion", a.SentenceUID))
		} else if !v.Index.KnownEmotion(a.PrimaryEmotion) {
			violations = append(violations, fmt.Sprintf("%s: unknown emotion %q", a.SentenceUID, a.PrimaryEmotion))
		}
		for _, em := range a.SecondaryEmotions {
			if !v.Index.KnownEmotion(em) {
				violations = append(violations, fmt.Sprintf("%s: unknown secondary emotion %q", a.SentenceUID, em))
			}
		}

		strategyFields := []struct {
			id           string
			strategyType string
		}{
			{a.RelationshipAction, taxonomy.TypeRelationshipAction},
			{a.EmotionalStrategy, taxonomy.TypeEmotionalStrategy},
			{a.CommunicationScene, taxonomy.TypeCommunicationScene},
			{a.RiskLevel, taxonomy.TypeRiskLevel},
		}
		for _, f := range strategyFields {
			if f.id != "" && !v.Index.KnownStrategy(f.id, f.strategyType) {
				violations = append(violations, fmt.Sprintf("%s: unknown %s %q", a.SentenceUID, f.strategyType, f.id))
			}
		}

		a.SentenceText = sent.Text
		valid = append(valid, a)
	}

	for _, s := range expected {
		if _, ok := seen[s.UID]; !ok {
			violations = append(violations, fmt.Sprintf("missing annotation for %s", s.UID))
		}
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return valid, nil
}
