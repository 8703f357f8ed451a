package tracker

import (
	"context"
	"sync"

	"github.com/WDelesposti/tokie/internal/dom"
	"github.com/WDelesposti/tokie/internal/domain/usage"
)

// mockStore records saved snapshots.
type mockStore struct {
	mu     sync.Mutex
	saveFn func(ctx context.Context, rec usage.Record) error
	saved  []usage.Record
}

func (m *mockStore) Save(ctx context.Context, rec usage.Record) error {
	m.mu.Lock()
	m.saved = append(m.saved, rec)
	fn := m.saveFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, rec)
	}
	return nil
}

func (m *mockStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

// mockNotifier records notified snapshots.
type mockNotifier struct {
	mu        sync.Mutex
	snapshots []usage.Record
}

func (m *mockNotifier) Notify(snapshot usage.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snapshot)
}

func (m *mockNotifier) last() (usage.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return usage.Record{}, false
	}
	return m.snapshots[len(m.snapshots)-1], true
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

// newChatDoc builds a tree with a main root.
func newChatDoc() (*dom.Tree, *dom.Node) {
	tree := dom.NewTree()
	main := tree.CreateElement("main", nil)
	tree.AppendChild(tree.Root(), main)
	return tree, main
}

// appendMessage adds an article with one role-tagged block and returns the
// block's text node.
func appendMessage(tree *dom.Tree, root *dom.Node, role, text string) *dom.Node {
	article := tree.CreateElement("article", nil)
	block := tree.CreateElement("div", map[string]string{"data-message-author-role": role})
	txt := tree.CreateText(text)
	// Build the article detached, then attach with one mutation, the way a
	// renderer inserts a complete message node.
	tree.AppendChild(block, txt)
	tree.AppendChild(article, block)
	tree.AppendChild(root, article)
	return txt
}
