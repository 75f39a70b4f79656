package wiki

import (
	"encoding/json"
	"strings"

	"github.com/kbforge/kbforge/pkg/models"
	"github.com/kbforge/kbforge/pkg/textutil"
)

// childKeys are the node fields that may carry nested content in the
// editor document tree.
var childKeys = []string{"content", "children", "items", "paragraphs"}

// ExtractEditorText flattens a nested rich-text editor document into
// plain text. The content field arrives either as a JSON object or as
// a JSON string containing the encoded object; both are handled.
// Malformed content yields an empty string.
func ExtractEditorText(content []byte) string {
	if len(content) == 0 {
		return ""
	}

	var node any
	if err := json.Unmarshal(content, &node); err != nil {
		return ""
	}
	if encoded, ok := node.(string); ok {
		if err := json.Unmarshal([]byte(encoded), &node); err != nil {
			return ""
		}
	}

	var parts []string
	visitEditorNode(node, &parts)
	return strings.Join(parts, "\n")
}

func visitEditorNode(node any, parts *[]string) {
	switch v := node.(type) {
	case map[string]any:
		if s, ok := v["text"].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				*parts = append(*parts, trimmed)
			}
		}
		for _, key := range childKeys {
			if children, ok := v[key].([]any); ok {
				for _, child := range children {
					visitEditorNode(child, parts)
				}
			}
		}
	case []any:
		for _, item := range v {
			visitEditorNode(item, parts)
		}
	}
}

// CleanText produces the normalized plain text for an item detail,
// falling back to the item title when the body carries no text.
func CleanText(detail models.WikiDetail) string {
	text := textutil.Normalize(ExtractEditorText(detail.Content))
	if text == "" {
		text = textutil.Normalize(detail.Title)
	}
	return text
}
