package llm

import (
	"fmt"
	"strings"

	"github.com/minghe/poetry-annotator/internal/parse"
	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/taxonomy"
)

const systemPromptHeader = `你是一位中国古典诗词的情感与社交策略标注专家。
你将收到一首诗及其逐句编号，请为每一句标注情感类别和社交策略类别。

标注规则：
1. 每句必须有且仅有一个 primary_emotion，可附加若干 secondary_emotions。
2. 所有类别必须使用下方给出的类别 ID，不得自造。
3. relationship_action、emotional_strategy、communication_scene、risk_level 按句意选填。
4. 只输出一个 JSON 数组，不要输出任何解释文字。

输出格式（每句一个对象）：
[{"sentence_uid": "P1-S1", "primary_emotion": "...", "secondary_emotions": ["..."],
"relationship_action": "...", "emotional_strategy": "...",
"communication_scene": "...", "risk_level": "..."}]`

var strategyTypeNames = map[string]string{
	taxonomy.TypeRelationshipAction: "关系行动 (relationship_action)",
	taxonomy.TypeEmotionalStrategy:  "情感策略 (emotional_strategy)",
	taxonomy.TypeCommunicationScene: "交流场景 (communication_scene)",
	taxonomy.TypeRiskLevel:          "风险等级 (risk_level)",
}

// BuildPrompts constructs the system/user prompt pair for one poem.
// The system prompt carries the task rules and the full category
// catalogue; the user prompt carries the poem with its sentence UIDs.
func BuildPrompts(poem *store.Poem, sentences []parse.Sentence, idx *taxonomy.Index) (string, string) {
	var system strings.Builder
	system.WriteString(systemPromptHeader)
	system.WriteString("\n\n可用类别：\n\n情感 (emotion):\n")
	writeCategories(&system, idx.Emotions())
	for _, st := range taxonomy.StrategyTypes {
		categories := idx.Strategies(st)
		if len(categories) == 0 {
			continue
		}
		system.WriteString("\n" + strategyTypeNames[st] + ":\n")
		writeCategories(&system, categories)
	}

	var user strings.Builder
	fmt.Fprintf(&user, "诗题：%s\n作者：%s\n", poem.Title, poem.Author)
	if poem.AuthorDesc != "" {
		fmt.Fprintf(&user, "作者简介：%s\n", poem.AuthorDesc)
	}
	user.WriteString("\n诗句：\n")
	for _, s := range sentences {
		fmt.Fprintf(&user, "[%s] %s\n", s.UID, s.Text)
	}
	user.WriteString("\n请为以上每一句输出标注 JSON 数组。")

	return system.String(), user.String()
}

func writeCategories(sb *strings.Builder, categories []*store.Category) {
	for _, c := range categories {
		indent := strings.Repeat("  ", c.Level-1)
		if c.NameEn != "" {
			fmt.Fprintf(sb, "%s- %s: %s (%s)\n", indent, c.ID, c.NameZh, c.NameEn)
		} else {
			fmt.Fprintf(sb, "%s- %s: %s\n", indent, c.ID, c.NameZh)
		}
	}
}
