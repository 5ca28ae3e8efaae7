package main

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	styleBlockRegex = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)

	// a tag opener or a terminated character reference
	markupRegex = regexp.MustCompile(`<[A-Za-z/!?]|&(?:#[0-9]+|#[xX][0-9A-Fa-f]+|[A-Za-z][A-Za-z0-9]*);`)
)

// invisibleElements never contribute visible text
var invisibleElements = map[string]bool{
	"style":    true,
	"script":   true,
	"noscript": true,
	"template": true,
}

// FilterContent reduces an HTML page to its visible text: style blocks are
// dropped, emphasis/strong elements are unwrapped, all other tags are stripped
// and whitespace runs collapse to single spaces. Entities are decoded. Input
// without markup is only whitespace-collapsed, so filtering filtered text is a
// no-op unless the page's visible text itself spells out markup.
func FilterContent(htmlContent string) string {
	if !markupRegex.MatchString(htmlContent) {
		return collapseWhitespace(htmlContent)
	}

	filtered := styleBlockRegex.ReplaceAllString(htmlContent, "")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(filtered))
	if err != nil {
		return collapseWhitespace(filtered)
	}

	doc.Find("em, strong").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithSelection(s.Contents())
	})

	var parts []string
	for _, n := range doc.Nodes {
		collectText(n, &parts)
	}

	return collapseWhitespace(strings.Join(parts, " "))
}

// collectText appends the stripped text of every visible text node under n
func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.ElementNode && invisibleElements[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// htmlToMarkdown is the alternative content mode for the website extractor
func htmlToMarkdown(converter *md.Converter, htmlContent string) (string, error) {
	markdown, err := converter.ConvertString(styleBlockRegex.ReplaceAllString(htmlContent, ""))
	if err != nil {
		return "", fmt.Errorf("converting HTML to markdown: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}
