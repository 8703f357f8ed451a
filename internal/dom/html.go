package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseFragment parses an HTML fragment into detached nodes owned by the
// tree. Comments, doctype nodes and whitespace-only text between elements
// are dropped.
func (t *Tree) ParseFragment(fragment string) ([]*Node, error) {
	parsed, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("parse html fragment: %w", err)
	}

	var out []*Node
	for _, h := range parsed {
		if n := t.convert(h); n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// AppendParsedHTML parses a fragment and appends its top-level nodes under
// parent, emitting one ChildList mutation per node.
func (t *Tree) AppendParsedHTML(parent *Node, fragment string) ([]*Node, error) {
	nodes, err := t.ParseFragment(fragment)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		t.AppendChild(parent, n)
	}
	return nodes, nil
}

func (t *Tree) convert(h *html.Node) *Node {
	switch h.Type {
	case html.ElementNode:
		attrs := make(map[string]string, len(h.Attr))
		for _, a := range h.Attr {
			attrs[a.Key] = a.Val
		}
		n := t.CreateElement(h.Data, attrs)
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			if child := t.convert(c); child != nil {
				child.parent = n
				n.children = append(n.children, child)
			}
		}
		return n
	case html.TextNode:
		if strings.TrimSpace(h.Data) == "" {
			return nil
		}
		return t.CreateText(h.Data)
	default:
		return nil
	}
}
