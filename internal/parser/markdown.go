package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/planmark/internal/outline"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser reads headings as the hierarchy: # is a room, #### a
// cabinet. List items become children one level below the heading they
// follow, and nested lists go one level further.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*outline.Outline, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	b := outline.NewBuilder(titleFrom(filename, ".md", ".markdown"))
	level := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			level = node.Level
			b.Heading(level, extractText(node, src), lineOf(node, src))
		case *ast.List:
			addList(b, node, level+1, src)
			b.Up(level)
		default:
			b.Text(extractText(n, src))
		}
	}
	return b.Outline(), nil
}

func addList(b *outline.Builder, list *ast.List, level int, src []byte) {
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var label string
		var nested []*ast.List
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if l, ok := c.(*ast.List); ok {
				nested = append(nested, l)
				continue
			}
			if label == "" {
				label = extractText(c, src)
			}
		}
		b.Heading(level, label, lineOf(item, src))
		for _, l := range nested {
			addList(b, l, level+1, src)
		}
	}
}

// lineOf returns the 1-based source line of a block node, or 0.
func lineOf(n ast.Node, src []byte) int {
	for c := n; c != nil; c = c.FirstChild() {
		if c.Type() != ast.TypeBlock {
			break
		}
		if lines := c.Lines(); lines.Len() > 0 {
			return bytes.Count(src[:lines.At(0).Start], []byte("\n")) + 1
		}
	}
	return 0
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	writeText(&buf, n, src)
	return strings.TrimSpace(buf.String())
}

func writeText(buf *bytes.Buffer, n ast.Node, src []byte) {
	switch t := n.(type) {
	case *ast.Text:
		buf.Write(t.Segment.Value(src))
		if t.HardLineBreak() || t.SoftLineBreak() {
			buf.WriteByte('\n')
		}
		return
	case *ast.String:
		buf.Write(t.Value)
		return
	}
	// Leaf blocks such as code keep their raw lines.
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		return
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Type() == ast.TypeBlock && buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		writeText(buf, c, src)
	}
}
