package browser

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ButtonInfo describes one button found in the page markup.
type ButtonInfo struct {
	Text      string `json:"text"`
	AriaLabel string `json:"aria_label,omitempty"`
	Class     string `json:"class,omitempty"`
	JSName    string `json:"jsname,omitempty"`
	Disabled  bool   `json:"disabled"`
}

// String formats the button for a debug log line.
func (b ButtonInfo) String() string {
	return fmt.Sprintf("text=%q aria-label=%q class=%q jsname=%q disabled=%t",
		b.Text, b.AriaLabel, b.Class, b.JSName, b.Disabled)
}

// ListButtons parses the current page HTML and returns its buttons.
func ListButtons(ctx context.Context, page Page) ([]ButtonInfo, error) {
	content, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}
	return ParseButtons(content)
}

// ParseButtons extracts <button> elements and role="button" elements from
// raw HTML. Buttons inside hidden subtrees (hidden attribute, aria-hidden,
// display:none) are skipped.
func ParseButtons(rawHTML string) ([]ButtonInfo, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var buttons []ButtonInfo
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if isHiddenNode(n) {
				return
			}
			if isButtonNode(n) {
				buttons = append(buttons, ButtonInfo{
					Text:      collapseSpace(nodeText(n)),
					AriaLabel: attr(n, "aria-label"),
					Class:     attr(n, "class"),
					JSName:    attr(n, "jsname"),
					Disabled:  hasAttr(n, "disabled") || attr(n, "aria-disabled") == "true",
				})
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return buttons, nil
}

func isButtonNode(n *html.Node) bool {
	return strings.EqualFold(n.Data, "button") || attr(n, "role") == "button"
}

func isHiddenNode(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "script", "style", "noscript", "template":
		return true
	}
	if hasAttr(n, "hidden") || attr(n, "aria-hidden") == "true" {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(attr(n, "style")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
			return
		}
		if c.Type == html.ElementNode && isHiddenNode(c) {
			return
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
