// Package textextract turns stored markdown into the plain text fed to
// duplicate detection, so markup differences do not hide copied content.
package textextract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// Plain returns the readable text of a markdown document. Blocks are separated
// by newlines; markup, link targets and raw html are dropped.
func Plain(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))
	var sb strings.Builder
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock && node.Kind() != ast.KindDocument {
				endBlock(&sb)
			}
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			writeLines(&sb, n, source)
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			sb.Write(n.Label(source))
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			sb.Write(n.Segment.Value(source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(n.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// Document joins a title and markdown body into one detection input.
func Document(title, body string) string {
	title = strings.TrimSpace(title)
	plain := Plain(body)
	switch {
	case title == "":
		return plain
	case plain == "":
		return title
	}
	return title + "\n" + plain
}

func writeLines(sb *strings.Builder, n ast.Node, source []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
}

func endBlock(sb *strings.Builder) {
	s := sb.String()
	if len(s) == 0 || s[len(s)-1] == '\n' {
		return
	}
	sb.WriteByte('\n')
}
