// Package dom provides a mutable, observable document tree. It stands in for
// the host page: element nodes carry attributes, text nodes carry character
// data, and subscribers receive batched mutation notifications for a subtree.
package dom

import "strings"

// NodeType distinguishes element nodes from text nodes.
type NodeType uint8

// Node types.
const (
	ElementNode NodeType = iota
	TextNode
)

// Node is a single tree node. All reads and writes go through the owning
// Tree's lock; Node methods take a read lock themselves, so they are safe to
// call while another goroutine mutates the tree.
type Node struct {
	tree     *Tree
	typ      NodeType
	tag      string
	attrs    map[string]string
	data     string
	parent   *Node
	children []*Node
}

// Type returns the node type.
func (n *Node) Type() NodeType { return n.typ }

// Tag returns the element tag name, empty for text nodes.
func (n *Node) Tag() string { return n.tag }

// Attr returns an attribute value, empty if unset.
func (n *Node) Attr(name string) string {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.attrs[name]
}

// Parent returns the parent node, nil for detached nodes and the root.
func (n *Node) Parent() *Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.parent
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Text returns the concatenated character data of the subtree, trimmed.
func (n *Node) Text() string {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	var sb strings.Builder
	n.collectText(&sb)
	return strings.TrimSpace(sb.String())
}

func (n *Node) collectText(sb *strings.Builder) {
	if n.typ == TextNode {
		sb.WriteString(n.data)
		return
	}
	for _, c := range n.children {
		c.collectText(sb)
	}
}

// Closest returns the nearest self-or-ancestor element with the given tag,
// or nil.
func (n *Node) Closest(tag string) *Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	for cur := n; cur != nil; cur = cur.parent {
		if cur.typ == ElementNode && cur.tag == tag {
			return cur
		}
	}
	return nil
}

// FindByAttr returns the first self-or-descendant element whose attribute
// matches the given value, in document order, or nil.
func (n *Node) FindByAttr(attr, value string) *Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.findByAttr(attr, value)
}

func (n *Node) findByAttr(attr, value string) *Node {
	if n.typ == ElementNode && n.attrs[attr] == value {
		return n
	}
	for _, c := range n.children {
		if found := c.findByAttr(attr, value); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns all self-or-descendant elements with the given tag, in
// document order.
func (n *Node) FindAll(tag string) []*Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	var out []*Node
	n.findAll(tag, &out)
	return out
}

func (n *Node) findAll(tag string, out *[]*Node) {
	if n.typ == ElementNode && n.tag == tag {
		*out = append(*out, n)
	}
	for _, c := range n.children {
		c.findAll(tag, out)
	}
}

// FirstText returns the first text node in the subtree, or nil.
func (n *Node) FirstText() *Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.firstText()
}

func (n *Node) firstText() *Node {
	if n.typ == TextNode {
		return n
	}
	for _, c := range n.children {
		if t := c.firstText(); t != nil {
			return t
		}
	}
	return nil
}

// contains reports whether n is root or a descendant of root.
// Caller must hold the tree lock.
func (n *Node) contains(root *Node) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur == root {
			return true
		}
	}
	return false
}
