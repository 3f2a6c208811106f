package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/planmark/internal/outline"
)

// TextParser reads an indented list. Each non-blank line is a node; a tab
// or two spaces of indent is one level. Leading "-" or "*" bullets are
// ignored.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*outline.Outline, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	b := outline.NewBuilder(titleFrom(filename, ".txt"))
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		level := indentLevel(raw) + 1
		label := strings.TrimSpace(raw)
		label = strings.TrimSpace(strings.TrimLeft(label, "-*"))
		b.Heading(level, label, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return b.Outline(), nil
}

func indentLevel(s string) int {
	spaces := 0
	for _, r := range s {
		switch r {
		case '\t':
			spaces += 2
		case ' ':
			spaces++
		default:
			return spaces / 2
		}
	}
	return spaces / 2
}
