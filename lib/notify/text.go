package notify

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
)

// PlainText flattens an HTML fragment to its text content.
func PlainText(fragment string) string {
	doc, err := htmlquery.Parse(strings.NewReader(fragment))
	if err != nil {
		return compactWhitespace(fragment)
	}
	body := htmlquery.FindOne(doc, "//body")
	if body == nil {
		body = doc
	}
	return digForText(body)
}

func digForText(n *html.Node) string {
	if n == nil {
		return ""
	}
	buf := new(bytes.Buffer)
	dig(n, buf)
	return compactWhitespace(buf.String())
}

func dig(n *html.Node, buf *bytes.Buffer) {
	if n == nil {
		return
	}
	switch {
	case n.Type == html.TextNode:
		buf.WriteString(n.Data)
	case n.Type == html.ElementNode && isBlock(n.Data):
		buf.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		dig(c, buf)
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "br", "div", "li", "pre", "blockquote", "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func compactWhitespace(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.Trim(s, " ")
	return s
}

const ellipsis = "…"

// Truncate cuts s to max runes and marks the cut with an ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + ellipsis
}
