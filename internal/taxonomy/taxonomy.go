// Package taxonomy loads the annotation category tree from its YAML
// definition and builds the lookup index used for validating model
// output against known category IDs.
package taxonomy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/minghe/poetry-annotator/internal/store"
)

// Category types
const (
	TypeEmotion            = "emotion"
	TypeRelationshipAction = "relationship_action"
	TypeEmotionalStrategy  = "emotional_strategy"
	TypeCommunicationScene = "communication_scene"
	TypeRiskLevel          = "risk_level"
)

// StrategyTypes lists the four social-strategy dimensions
var StrategyTypes = []string{
	TypeRelationshipAction,
	TypeEmotionalStrategy,
	TypeCommunicationScene,
	TypeRiskLevel,
}

// CategoryTypes lists every category type, emotion first
func CategoryTypes() []string {
	return append([]string{TypeEmotion}, StrategyTypes...)
}

// Node is one entry of the YAML category tree. Children inherit the
// parent's type when their own is empty.
type Node struct {
	ID       string `yaml:"id"`
	NameZh   string `yaml:"name_zh"`
	NameEn   string `yaml:"name_en"`
	Type     string `yaml:"type"`
	Children []Node `yaml:"children"`
}

type fileFormat struct {
	Categories []Node `yaml:"categories"`
}

// LoadFile parses a taxonomy YAML file and flattens the tree into
// category rows, parents before children so seeding resolves
// parent_id references.
func LoadFile(path string) ([]*store.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
	}
	return Parse(data)
}

// Parse parses taxonomy YAML content
func Parse(data []byte) ([]*store.Category, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy yaml: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy file defines no categories")
	}

	var out []*store.Category
	seen := make(map[string]struct{})

	var walk func(n Node, parentID, parentType string, level int) error
	walk = func(n Node, parentID, parentType string, level int) error {
		if n.ID == "" {
			return fmt.Errorf("category under %q has no id", parentID)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate category id %q", n.ID)
		}
		seen[n.ID] = struct{}{}

		categoryType := n.Type
		if categoryType == "" {
			categoryType = parentType
		}
		if !validType(categoryType) {
			return fmt.Errorf("category %q has unknown type %q", n.ID, categoryType)
		}

		out = append(out, &store.Category{
			ID:       n.ID,
			NameZh:   n.NameZh,
			NameEn:   n.NameEn,
			Type:     categoryType,
			ParentID: parentID,
			Level:    level,
		})

		for _, child := range n.Children {
			if err := walk(child, n.ID, categoryType, level+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range f.Categories {
		if err := walk(root, "", "", 1); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func validType(t string) bool {
	if t == TypeEmotion {
		return true
	}
	for _, st := range StrategyTypes {
		if t == st {
			return true
		}
	}
	return false
}

// Index provides category lookups for response validation and prompt
// construction
type Index struct {
	byID       map[string]*store.Category
	emotions   []*store.Category
	strategies map[string][]*store.Category // keyed by strategy type
}

// NewIndex builds an index over category rows
func NewIndex(categories []*store.Category) *Index {
	idx := &Index{
		byID:       make(map[string]*store.Category, len(categories)),
		strategies: make(map[string][]*store.Category),
	}
	for _, c := range categories {
		idx.byID[c.ID] = c
		if c.Type == TypeEmotion {
			idx.emotions = append(idx.emotions, c)
		} else {
			idx.strategies[c.Type] = append(idx.strategies[c.Type], c)
		}
	}
	return idx
}

// KnownEmotion reports whether id is a defined emotion category
func (idx *Index) KnownEmotion(id string) bool {
	c, ok := idx.byID[id]
	return ok && c.Type == TypeEmotion
}

// KnownStrategy reports whether id is a defined category of the given
// strategy type
func (idx *Index) KnownStrategy(id, strategyType string) bool {
	c, ok := idx.byID[id]
	return ok && c.Type == strategyType
}

// Get returns the category with the given id, or nil
func (idx *Index) Get(id string) *store.Category {
	return idx.byID[id]
}

// Emotions returns all emotion categories
func (idx *Index) Emotions() []*store.Category {
	return idx.emotions
}

// Strategies returns the categories of one strategy type
func (idx *Index) Strategies(strategyType string) []*store.Category {
	return idx.strategies[strategyType]
}
