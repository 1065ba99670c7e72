// Package parse turns raw LLM output into validated sentence
// annotations. Extraction tolerates the usual model formatting quirks;
// validation checks the result against the taxonomy and the poem's own
// sentence segmentation.
package parse

import (
	"fmt"
	"strings"
)

// Sentence is one segmented unit of a poem
type Sentence struct {
	UID  string
	Text string
}

// SentenceUID derives the stable sentence identifier from the poem ID
// and the zero-based sentence index. Annotator, validator and log
// recovery all recompute this identically.
func SentenceUID(poemID int64, index int) string {
	return fmt.Sprintf("P%d-S%d", poemID, index+1)
}

// Terminal punctuation ending a sentence in classical Chinese text
var sentenceTerminators = []rune{'。', '！', '？', '；', '!', '?', ';'}

func isTerminator(r rune) bool {
	for _, t := range sentenceTerminators {
		if r == t {
			return true
		}
	}
	return false
}

// Segment splits a poem's paragraphs into sentences and assigns UIDs.
// Each run of text up to a terminal punctuation mark is one sentence,
// keeping the mark; a paragraph without terminal punctuation is a
// single sentence. Empty fragments are dropped.
func Segment(poemID int64, paragraphs []string) []Sentence {
	var sentences []Sentence

	for _, para := range paragraphs {
		var current strings.Builder
		for _, r := range para {
			current.WriteRune(r)
			if isTerminator(r) {
				appendSentence(&sentences, poemID, current.String())
				current.Reset()
			}
		}
		appendSentence(&sentences, poemID, current.String())
	}

	return sentences
}

func appendSentence(sentences *[]Sentence, poemID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	*sentences = append(*sentences, Sentence{
		UID:  SentenceUID(poemID, len(*sentences)),
		Text: text,
	})
}
