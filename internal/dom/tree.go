package dom

import "sync"

// MutationType classifies a tree change.
type MutationType uint8

// Mutation types.
const (
	// ChildList is a structural change: nodes added to or removed from a parent.
	ChildList MutationType = iota
	// CharacterData is an in-place change of a text node's data.
	CharacterData
)

// Mutation describes one observed change. Target is the parent for ChildList
// mutations and the text node for CharacterData mutations.
type Mutation struct {
	Type    MutationType
	Target  *Node
	Added   []*Node
	Removed []*Node
}

// SubscribeOptions selects which mutations a subscription receives,
// mirroring the usual observer init flags.
type SubscribeOptions struct {
	Subtree       bool
	ChildList     bool
	CharacterData bool
}

// Delivery buffer per subscription. A consumer that stops draining loses
// batches rather than blocking document mutation.
const subscriptionBuffer = 256

type subscription struct {
	target *Node
	opts   SubscribeOptions
	ch     chan []Mutation
}

// Tree is an observable document tree with a location path, standing in for
// the host page's document plus address bar.
type Tree struct {
	mu       sync.RWMutex
	root     *Node
	location string
	subs     map[int]*subscription
	nextSub  int
}

// NewTree creates an empty tree with a document root.
func NewTree() *Tree {
	t := &Tree{subs: make(map[int]*subscription)}
	t.root = &Node{tree: t, typ: ElementNode, tag: "#document"}
	return t
}

// Root returns the document root.
func (t *Tree) Root() *Node { return t.root }

// Location returns the current path, e.g. "/c/abc123".
func (t *Tree) Location() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.location
}

// SetLocation updates the path. Like a browser address change, this emits no
// mutation on its own; hosts update a title-like node alongside it.
func (t *Tree) SetLocation(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.location = path
}

// CreateElement creates a detached element node.
func (t *Tree) CreateElement(tag string, attrs map[string]string) *Node {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &Node{tree: t, typ: ElementNode, tag: tag, attrs: attrs}
}

// CreateText creates a detached text node.
func (t *Tree) CreateText(data string) *Node {
	return &Node{tree: t, typ: TextNode, data: data}
}

// AppendChild attaches child under parent and notifies subscribers.
func (t *Tree) AppendChild(parent, child *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	child.parent = parent
	parent.children = append(parent.children, child)
	t.dispatch(Mutation{Type: ChildList, Target: parent, Added: []*Node{child}})
}

// RemoveChild detaches child from parent and notifies subscribers.
// A child that is not under parent is ignored.
func (t *Tree) RemoveChild(parent, child *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range parent.children {
		if c == child {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			child.parent = nil
			t.dispatch(Mutation{Type: ChildList, Target: parent, Removed: []*Node{child}})
			return
		}
	}
}

// SetText replaces a text node's character data and notifies subscribers.
// Element nodes are ignored.
func (t *Tree) SetText(n *Node, data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n.typ != TextNode {
		return
	}
	n.data = data
	t.dispatch(Mutation{Type: CharacterData, Target: n})
}

// FindFirst returns the first element with the given tag in document order,
// or nil.
func (t *Tree) FindFirst(tag string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Node
	t.root.findAll(tag, &out)
	if len(out) == 0 {
		return nil
	}
	return out[0]
}

// Subscribe registers an observer for mutations on target (and its subtree
// when opts.Subtree is set). The returned cancel function detaches the
// observer and closes the channel; it is safe to call more than once.
func (t *Tree) Subscribe(target *Node, opts SubscribeOptions) (<-chan []Mutation, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	sub := &subscription{
		target: target,
		opts:   opts,
		ch:     make(chan []Mutation, subscriptionBuffer),
	}
	t.subs[id] = sub

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if s, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// dispatch fans a mutation out to matching subscriptions. Caller holds the
// write lock, which also serializes sends against cancel's close.
func (t *Tree) dispatch(m Mutation) {
	for _, sub := range t.subs {
		switch m.Type {
		case ChildList:
			if !sub.opts.ChildList {
				continue
			}
		case CharacterData:
			if !sub.opts.CharacterData {
				continue
			}
		}
		if m.Target != sub.target && !(sub.opts.Subtree && m.Target.contains(sub.target)) {
			continue
		}
		select {
		case sub.ch <- []Mutation{m}:
		default:
			// Subscriber stopped draining; drop rather than block the host.
		}
	}
}
