package taxonomy

import (
	"strings"
	"testing"
)

const sampleYAML = `
categories:
  - id: E-POS
    name_zh: 正面情感
    name_en: positive
    type: emotion
    children:
      - id: E-POS-JOY
        name_zh: 喜悦
        name_en: joy
      - id: E-POS-PEACE
        name_zh: 闲适
  - id: RA-REQ
    name_zh: 求助
    type: relationship_action
  - id: RISK-LOW
    name_zh: 低风险
    type: risk_level
`

func TestParseFlattensTree(t *testing.T) {
	categories, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(categories) != 5 {
		t.Fatalf("expected 5 categories, got %d", len(categories))
	}

	byID := make(map[string]int)
	for i, c := range categories {
		byID[c.ID] = i
	}

	joy := categories[byID["E-POS-JOY"]]
	if joy.Type != TypeEmotion {
		t.Errorf("expected child to inherit emotion type, got %s", joy.Type)
	}
	if joy.ParentID != "E-POS" {
		t.Errorf("expected parent E-POS, got %s", joy.ParentID)
	}
	if joy.Level != 2 {
		t.Errorf("expected level 2, got %d", joy.Level)
	}

	// Parents come before children
	if byID["E-POS"] > byID["E-POS-JOY"] {
		t.Error("expected parent before child in flattened order")
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	yaml := `
categories:
  - id: A
    name_zh: x
    type: emotion
  - id: A
    name_zh: y
    type: emotion
`
	_, err := Parse([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate id error, got %v", err)
	}
}

func TestParseRejectsUnknownType(t *testing.T) {
	yaml := `
categories:
  - id: A
    name_zh: x
    type: mood
`
	_, err := Parse([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "unknown type") {
		t.Errorf("expected unknown type error, got %v", err)
	}
}

func TestIndexLookups(t *testing.T) {
	categories, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	idx := NewIndex(categories)

	if !idx.KnownEmotion("E-POS-JOY") {
		t.Error("expected E-POS-JOY to be a known emotion")
	}
	if idx.KnownEmotion("RA-REQ") {
		t.Error("RA-REQ is not an emotion")
	}
	if !idx.KnownStrategy("RA-REQ", TypeRelationshipAction) {
		t.Error("expected RA-REQ to be a known relationship action")
	}
	if idx.KnownStrategy("RA-REQ", TypeRiskLevel) {
		t.Error("RA-REQ is not a risk level")
	}
	if idx.KnownStrategy("NOPE", TypeRiskLevel) {
		t.Error("unknown id should not validate")
	}

	if len(idx.Emotions()) != 3 {
		t.Errorf("expected 3 emotion categories, got %d", len(idx.Emotions()))
	}
	if len(idx.Strategies(TypeRelationshipAction)) != 1 {
		t.Errorf("expected 1 relationship action, got %d", len(idx.Strategies(TypeRelationshipAction)))
	}
}
