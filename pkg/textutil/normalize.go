// Package textutil cleans raw message bodies into plain text suitable
// for knowledge-base chunks: markdown is collapsed to its textual
// content, @mentions and emoji are removed, and whitespace runs are
// folded to single spaces.
//
// The canonical emoji coverage is the union of the supplementary-plane
// emoticon, pictograph, transport, flag, and supplemental-symbol blocks
// plus the BMP miscellaneous-symbols/dingbats range and the emoji
// variation selector.
package textutil

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var mentionRe = regexp.MustCompile(`@[A-Za-z0-9_.]+`)

var emojiRanges = [...][2]rune{
	{0x1F300, 0x1F5FF}, // misc symbols and pictographs
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F680, 0x1F6FF}, // transport and map symbols
	{0x1F1E6, 0x1F1FF}, // regional indicators (flags)
	{0x1F900, 0x1F9FF}, // supplemental symbols and pictographs
	{0x2600, 0x27BF},   // misc symbols and dingbats
	{0xFE0F, 0xFE0F},   // emoji variation selector
}

// maxNormalizePasses bounds the cleaning loop; real content settles in
// one or two passes.
const maxNormalizePasses = 10

// Normalize cleans raw text into a single plain-text line.
// It is pure, deterministic, and idempotent; empty input yields "".
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	// Stripping markup can surface text that itself reads as markup
	// (a code span wrapping emphasis markers), so the pass repeats
	// until the result is stable.
	out := raw
	for i := 0; i < maxNormalizePasses; i++ {
		next := normalizeOnce(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func normalizeOnce(raw string) string {
	plain := stripMarkdown(raw)
	plain = mentionRe.ReplaceAllString(plain, "")
	plain = strings.Map(dropEmoji, plain)

	return strings.Join(strings.Fields(plain), " ")
}

func dropEmoji(r rune) rune {
	for _, rng := range emojiRanges {
		if r >= rng[0] && r <= rng[1] {
			return -1
		}
	}
	return r
}

// stripMarkdown parses raw as markdown and returns only the textual
// content of the document, with block boundaries turned into spaces.
func stripMarkdown(raw string) string {
	src := []byte(raw)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}

		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(src))
		case *ast.FencedCodeBlock:
			writeCodeLines(&b, t.BaseBlock, src)
		case *ast.CodeBlock:
			writeCodeLines(&b, t.BaseBlock, src)
		}
		return ast.WalkContinue, nil
	})

	return b.String()
}

func writeCodeLines(b *strings.Builder, block ast.BaseBlock, src []byte) {
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
		b.WriteByte(' ')
	}
}
