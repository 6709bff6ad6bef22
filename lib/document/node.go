package document

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"scrapeflow/lib/htmlutil"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Node is a parsed html tree (or a position inside one) that can be
// queried. The query language depends on how the tree was parsed: css
// selectors for ParseSoup, xpath for ParseXPath.
type Node interface {
	Find(query string) ([]Node, error)
	Text() string
	Attr(key string) (string, bool)
	HTML() (string, error)
	Raw() *html.Node
}

// First returns the first match of query under n.
func First(n Node, query string) (Node, bool, error) {
	matches, err := n.Find(query)
	if err != nil || len(matches) == 0 {
		return nil, false, err
	}
	return matches[0], true, nil
}

// Texts returns the text of every match of query under n.
func Texts(n Node, query string) ([]string, error) {
	matches, err := n.Find(query)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Text()
	}
	return out, nil
}

// Anchors collects the links matched by query, relative hrefs are resolved
// against base when it is not nil.
func Anchors(ctx context.Context, n Node, query string, base *url.URL) ([]htmlutil.Anchor, error) {
	matches, err := n.Find(query)
	if err != nil {
		return nil, err
	}
	raw := make([]*html.Node, len(matches))
	for i, m := range matches {
		raw[i] = m.Raw()
	}
	return htmlutil.GetAnchors(ctx, &goquery.Selection{Nodes: raw}, base), nil
}

type soupNode struct {
	sel *goquery.Selection
}

// ParseSoup parses html into a tree queried with css selectors.
func ParseSoup(r io.Reader) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return soupNode{sel: doc.Selection}, nil
}

func (n soupNode) Find(query string) ([]Node, error) {
	matcher, err := cascadia.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", query, err)
	}
	found := n.sel.FindMatcher(matcher)
	out := make([]Node, found.Length())
	found.Each(func(i int, s *goquery.Selection) {
		out[i] = soupNode{sel: s}
	})
	return out, nil
}

func (n soupNode) Text() string {
	var out strings.Builder
	for _, node := range n.sel.Nodes {
		out.WriteString(htmlutil.GetText(node))
	}
	return out.String()
}

func (n soupNode) Attr(key string) (string, bool) {
	return n.sel.Attr(key)
}

func (n soupNode) HTML() (string, error) {
	return goquery.OuterHtml(n.sel)
}

func (n soupNode) Raw() *html.Node {
	return n.sel.Get(0)
}

type xpathNode struct {
	node *html.Node
}

// ParseXPath parses html into a tree queried with xpath expressions.
func ParseXPath(r io.Reader) (Node, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, err
	}
	return xpathNode{node: root}, nil
}

func (n xpathNode) Find(query string) ([]Node, error) {
	found, err := htmlquery.QueryAll(n.node, query)
	if err != nil {
		return nil, fmt.Errorf("compile xpath %q: %w", query, err)
	}
	out := make([]Node, len(found))
	for i, f := range found {
		out[i] = xpathNode{node: f}
	}
	return out, nil
}

// Text of an attribute match is the attribute value.
func (n xpathNode) Text() string {
	return htmlquery.InnerText(n.node)
}

func (n xpathNode) Attr(key string) (string, bool) {
	return htmlutil.GetAttr(n.node, key)
}

func (n xpathNode) HTML() (string, error) {
	return htmlquery.OutputHTML(n.node, true), nil
}

func (n xpathNode) Raw() *html.Node {
	return n.node
}
