package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// PageSnapshot is a compact, model-readable view of a page.
type PageSnapshot struct {
	Title       string
	Description string
	// Elements lists the interactive elements with a selector for each.
	Elements []Element
	// HTML is the page with scripts, styles and noise removed.
	HTML      string
	Truncated bool
}

// Element is an interactive element found in a snapshot.
type Element struct {
	Tag      string
	Selector string
	Label    string
}

// Snapshot parses rawHTML into a PageSnapshot. The cleaned HTML is capped at
// maxLength characters; the element outline is always complete.
func Snapshot(rawHTML string, maxLength int) (*PageSnapshot, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := &PageSnapshot{
		Title:       extractTitle(doc),
		Description: extractMetaDescription(doc),
		Elements:    collectElements(doc),
	}

	c := &cleaner{maxLength: maxLength}
	result.Truncated = c.node(doc, 0)
	result.HTML = c.b.String()
	return result, nil
}

// String renders the snapshot for a tool result.
func (p *PageSnapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
	}
	if len(p.Elements) > 0 {
		b.WriteString("\nInteractive elements:\n")
		for _, e := range p.Elements {
			fmt.Fprintf(&b, "- %s %s", e.Tag, e.Selector)
			if e.Label != "" {
				fmt.Fprintf(&b, " %q", e.Label)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\nContent:\n")
	b.WriteString(strings.TrimSpace(p.HTML))
	if p.Truncated {
		b.WriteString("\n\n[Content truncated]")
	}
	return b.String()
}

func collectElements(doc *html.Node) []Element {
	var out []Element
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if isSkippedElement(tag) {
				return
			}
			if isInteractive(n, tag) {
				out = append(out, Element{Tag: tag, Selector: selectorFor(n, tag), Label: labelFor(n)})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func isInteractive(n *html.Node, tag string) bool {
	switch tag {
	case "a":
		return attr(n, "href") != ""
	case "button", "input", "select", "textarea":
		return attr(n, "type") != "hidden"
	}
	role := attr(n, "role")
	return role == "button" || role == "link" || role == "checkbox" || role == "tab"
}

// selectorFor prefers stable attributes: test ids, then id, then name.
func selectorFor(n *html.Node, tag string) string {
	for _, key := range []string{"data-testid", "data-test", "data-qa"} {
		if v := attr(n, key); v != "" {
			return fmt.Sprintf("[%s=%q]", key, v)
		}
	}
	if id := attr(n, "id"); id != "" {
		return "#" + id
	}
	if name := attr(n, "name"); name != "" {
		return fmt.Sprintf("%s[name=%q]", tag, name)
	}
	if label := attr(n, "aria-label"); label != "" {
		return fmt.Sprintf("%s[aria-label=%q]", tag, label)
	}
	if href := attr(n, "href"); href != "" && tag == "a" {
		return fmt.Sprintf("a[href=%q]", href)
	}
	if text := labelFor(n); text != "" {
		return fmt.Sprintf("%s:has-text(%q)", tag, text)
	}
	return tag
}

func labelFor(n *html.Node) string {
	for _, key := range []string{"aria-label", "placeholder", "value", "alt", "title"} {
		if v := strings.TrimSpace(attr(n, key)); v != "" {
			return v
		}
	}
	return collapseSpace(textContent(n))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapseSpace(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}

// cleaner writes a reduced copy of the DOM, keeping structure and the
// attributes useful for targeting elements.
type cleaner struct {
	b         strings.Builder
	length    int
	maxLength int
}

func (c *cleaner) node(n *html.Node, depth int) bool {
	if c.length >= c.maxLength {
		return true
	}
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return false
	case html.TextNode:
		return c.text(n.Data)
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if isSkippedElement(tag) || tag == "head" {
			return false
		}
		return c.element(n, tag, depth)
	}
	return c.children(n, depth)
}

func (c *cleaner) text(raw string) bool {
	text := strings.TrimSpace(raw)
	if text == "" {
		return false
	}
	if remaining := c.maxLength - c.length; len(text) > remaining {
		c.b.WriteString(text[:remaining])
		c.b.WriteString("...")
		c.length = c.maxLength
		return true
	}
	c.b.WriteString(text)
	c.length += len(text)
	return false
}

func (c *cleaner) element(n *html.Node, tag string, depth int) bool {
	block := isBlockElement(tag)
	if depth > 0 && block {
		c.newline(depth)
	}

	c.b.WriteString("<" + tag)
	for _, a := range n.Attr {
		if shouldPreserveAttribute(tag, a.Key) {
			fmt.Fprintf(&c.b, ` %s="%s"`, a.Key, html.EscapeString(a.Val))
		}
	}
	c.b.WriteString(">")
	c.length += len(tag) + 2

	truncated := c.children(n, depth+1)

	if !isVoidElement(tag) {
		if block {
			c.newline(depth)
		}
		c.b.WriteString("</" + tag + ">")
		c.length += len(tag) + 3
	}
	return truncated
}

func (c *cleaner) children(n *html.Node, depth int) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if c.node(child, depth) {
			return true
		}
	}
	return false
}

func (c *cleaner) newline(depth int) {
	c.b.WriteString("\n")
	c.b.WriteString(strings.Repeat("  ", depth))
}

func tagSet(tags ...string) map[string]bool {
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return m
}

var (
	skippedTags = tagSet("script", "style", "noscript", "iframe", "embed", "object", "svg", "template")
	blockTags   = tagSet("div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "table", "tr", "td", "th",
		"form", "fieldset", "blockquote", "pre", "dialog")
	voidTags = tagSet("area", "base", "br", "col", "embed", "hr", "img", "input", "link", "meta",
		"param", "source", "track", "wbr")
	globalAttrs = tagSet("id", "class", "role", "aria-label", "aria-describedby", "aria-expanded",
		"aria-checked", "disabled", "hidden")
)

func isSkippedElement(tagName string) bool { return skippedTags[tagName] }
func isBlockElement(tagName string) bool   { return blockTags[tagName] }
func isVoidElement(tagName string) bool    { return voidTags[tagName] }
// shouldPreserveAttribute keeps attributes that help locate an element.
func shouldPreserveAttribute(tagName, attrName string) bool {
	attrName = strings.ToLower(attrName)
	if globalAttrs[attrName] || strings.HasPrefix(attrName, "data-") {
		return true
	}
	switch tagName {
	case "a":
		return attrName == "href" || attrName == "target"
	case "img":
		return attrName == "src" || attrName == "alt"
	case "input", "textarea", "select":
		return attrName == "name" || attrName == "type" || attrName == "placeholder" || attrName == "value"
	case "button":
		return attrName == "type" || attrName == "name"
	case "form":
		return attrName == "action" || attrName == "method"
	case "label":
		return attrName == "for"
	}
	return false
}

// findElement returns the first element in document order matching match.
func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func extractTitle(doc *html.Node) string {
	n := findElement(doc, func(n *html.Node) bool { return n.Data == "title" })
	if n == nil {
		return ""
	}
	return collapseSpace(textContent(n))
}

func extractMetaDescription(doc *html.Node) string {
	n := findElement(doc, func(n *html.Node) bool {
		return n.Data == "meta" && strings.EqualFold(attr(n, "name"), "description") && attr(n, "content") != ""
	})
	if n == nil {
		return ""
	}
	return strings.TrimSpace(attr(n, "content"))
}
