package extraction

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Anchor is a link together with the text that immediately follows it
type Anchor struct {
	Name     string
	Href     string
	Trailing string
}

// GetText concatenates every text node under node.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextRecursive(child, buffer)
	}
}

// Anchors returns every <a href> under sel. Trailing holds the text of the
// sibling nodes up to the next element, which is where the register puts a
// member state's status, e.g. `<a href="...">DE</a> (Ongoing)`.
func Anchors(sel *goquery.Selection) []Anchor {
	var anchors []Anchor
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		n := a.Get(0)

		var trailing strings.Builder
		for sib := n.NextSibling; sib != nil && sib.Type != html.ElementNode; sib = sib.NextSibling {
			if sib.Type == html.TextNode {
				trailing.WriteString(sib.Data)
			}
		}

		anchors = append(anchors, Anchor{
			Name:     Clean(GetText(n)),
			Href:     strings.TrimSpace(a.AttrOr("href", "")),
			Trailing: Clean(trailing.String()),
		})
	})
	return anchors
}
