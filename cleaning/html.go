package cleaning

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

var (
	scriptRe   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	emphasisRe = regexp.MustCompile(`(\*\*|__|\*|_|~~|` + "`" + `)(\S(?:.*?\S)?)(\*\*|__|\*|_|~~|` + "`" + `)`)
	linkRe     = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	headingRe  = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	bulletRe   = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
)

// HTMLCleaner strips markup from definitions pasted from web pages or
// generated with formatting. Plain text passes through with only whitespace
// normalised.
type HTMLCleaner struct {
	converter *md.Converter
}

// NewHTMLCleaner creates an HTMLCleaner.
func NewHTMLCleaner() *HTMLCleaner {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &HTMLCleaner{converter: converter}
}

// Clean implements Cleaner.
func (c *HTMLCleaner) Clean(ctx context.Context, text, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if containsMarkup(text) {
		converted, err := c.converter.ConvertString(extractContent(text))
		if err != nil {
			return "", fmt.Errorf("convert html: %w", err)
		}
		text = converted
	}

	out := flatten(stripMarkdown(text))
	if out == "" {
		return "", ErrEmptyResult
	}
	return out, nil
}

// containsMarkup reports whether text holds at least one HTML element.
func containsMarkup(text string) bool {
	if !strings.Contains(text, "<") {
		return false
	}
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			return true
		}
	}
}

// extractContent drops non-content elements and returns the body markup.
func extractContent(text string) string {
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return basicHTMLCleanup(text)
	}

	removeElements(doc, []string{
		"script", "style", "noscript", "iframe", "object", "embed",
		"form", "input", "button", "nav", "header", "footer", "aside",
	})

	if body := findElement(doc, "body"); body != nil {
		return renderChildren(body)
	}
	return renderNode(doc)
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// removeElements removes all elements with the given tag names.
func removeElements(n *html.Node, tags []string) {
	tagSet := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tagSet[tag] = true
	}

	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.ElementNode && tagSet[node.Data] {
			toRemove = append(toRemove, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)

	for _, node := range toRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

func renderChildren(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(&sb, c)
	}
	return sb.String()
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	render(&sb, n)
	return sb.String()
}

func render(w io.Writer, n *html.Node) {
	// Rendering into a strings.Builder cannot fail.
	_ = html.Render(w, n)
}

// basicHTMLCleanup removes script and style blocks when parsing fails.
func basicHTMLCleanup(content string) string {
	content = scriptRe.ReplaceAllString(content, "")
	return styleRe.ReplaceAllString(content, "")
}

// stripMarkdown removes markdown syntax, keeping the text.
func stripMarkdown(content string) string {
	content = linkRe.ReplaceAllString(content, "$1")
	content = headingRe.ReplaceAllString(content, "")
	content = bulletRe.ReplaceAllString(content, "")
	for {
		next := emphasisRe.ReplaceAllString(content, "$2")
		if next == content {
			break
		}
		content = next
	}
	return html.UnescapeString(content)
}

// flatten joins lines and collapses whitespace into a single line.
func flatten(content string) string {
	return strings.Join(strings.Fields(content), " ")
}
