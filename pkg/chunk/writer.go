// Package chunk renders and writes knowledge-base chunk artifacts:
// a delimited key-value metadata header, a blank line, then the body.
package chunk

import (
	"fmt"
	"os"
	"strings"
)

const headerDelimiter = "---"

// Field is one metadata header entry. Order is preserved as given.
type Field struct {
	Key   string
	Value string
}

// Render produces the full chunk text: front-matter header, blank
// separator line, and the body lines joined by newlines.
func Render(header []Field, lines []string) string {
	var b strings.Builder

	b.WriteString(headerDelimiter)
	b.WriteByte('\n')
	for _, f := range header {
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteByte('\n')
	}
	b.WriteString(headerDelimiter)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(lines, "\n"))

	return b.String()
}

// WriteFile writes rendered chunk content to path.
func WriteFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write chunk %s: %w", path, err)
	}
	return nil
}

// SanitizeName maps an arbitrary label to a safe file-name fragment.
func SanitizeName(label string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, label)
	return strings.Trim(mapped, "_")
}
