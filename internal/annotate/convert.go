package annotate

import (
	"github.com/minghe/poetry-annotator/internal/parse"
	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/taxonomy"
)

// SentenceRows converts validated sentence annotations into the store's
// row representation. The primary emotion carries is_primary; each
// strategy dimension holds at most one value, flagged primary. Log
// recovery uses the same conversion so replayed rows match live ones.
func SentenceRows(annotations []parse.SentenceAnnotation) []store.SentenceRow {
	rows := make([]store.SentenceRow, 0, len(annotations))
	for _, a := range annotations {
		row := store.SentenceRow{
			UID:  a.SentenceUID,
			Text: a.SentenceText,
		}

		if a.PrimaryEmotion != "" {
			row.Emotions = append(row.Emotions, store.EmotionLink{
				EmotionID: a.PrimaryEmotion,
				IsPrimary: true,
			})
		}
		for _, em := range a.SecondaryEmotions {
			if em == a.PrimaryEmotion {
				continue
			}
			row.Emotions = append(row.Emotions, store.EmotionLink{EmotionID: em})
		}

		strategies := []struct {
			id           string
			strategyType string
		}{
			{a.RelationshipAction, taxonomy.TypeRelationshipAction},
			{a.EmotionalStrategy, taxonomy.TypeEmotionalStrategy},
			{a.CommunicationScene, taxonomy.TypeCommunicationScene},
			{a.RiskLevel, taxonomy.TypeRiskLevel},
		}
		for _, s := range strategies {
			if s.id == "" {
				continue
			}
			row.Strategies = append(row.Strategies, store.StrategyLink{
				StrategyID:   s.id,
				StrategyType: s.strategyType,
				IsPrimary:    true,
			})
		}

		rows = append(rows, row)
	}
	return rows
}
