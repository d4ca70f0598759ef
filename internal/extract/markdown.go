package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var mdParser = goldmark.New().Parser()

// Markdown flattens markdown into plain lines. Headings keep their "#"
// prefix so the section splitter still sees them; inline markup is dropped.
func Markdown(src string) string {
	source := []byte(src)
	doc := mdParser.Parse(text.NewReader(source))
	var blocks []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			blocks = append(blocks, strings.Repeat("#", node.Level)+" "+strings.TrimSpace(inlineText(node, source)))
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			if line := strings.TrimSpace(inlineText(node, source)); line != "" {
				blocks = append(blocks, line)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if body := strings.TrimRight(rawLines(node, source), "\n"); body != "" {
				blocks = append(blocks, body)
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(blocks, "\n")
}

func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	var walk func(ast.Node)
	walk = func(node ast.Node) {
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			switch child := c.(type) {
			case *ast.Text:
				sb.Write(child.Segment.Value(source))
				if child.SoftLineBreak() || child.HardLineBreak() {
					sb.WriteString("\n")
				}
			case *ast.String:
				sb.Write(child.Value)
			case *ast.AutoLink:
				sb.Write(child.URL(source))
			case *ast.RawHTML:
			default:
				walk(child)
			}
		}
	}
	walk(n)
	return sb.String()
}

func rawLines(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return sb.String()
}
