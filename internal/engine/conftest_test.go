package engine

import (
	"context"
	"sync"

	"github.com/WDelesposti/tokie/internal/dom"
	"github.com/WDelesposti/tokie/internal/domain/usage"
	"github.com/WDelesposti/tokie/internal/domain/usage/plan"
)

// memStore is an in-memory session store with create-on-load semantics.
type memStore struct {
	mu      sync.Mutex
	records map[string]usage.Record
	current string
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]usage.Record)}
}

func (m *memStore) Load(_ context.Context, sessionID string) (usage.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return usage.Record{}, m.loadErr
	}
	rec, ok := m.records[sessionID]
	if !ok {
		rec = usage.New(sessionID, 0, plan.Free)
		m.records[sessionID] = rec
	}
	return rec, nil
}

func (m *memStore) Save(_ context.Context, rec usage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.SessionID()] = rec
	m.current = rec.SessionID()
	return nil
}

func (m *memStore) CurrentSession(_ context.Context) (usage.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		return usage.Record{}, false, nil
	}
	rec, ok := m.records[m.current]
	return rec, ok, nil
}

func (m *memStore) get(sessionID string) (usage.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sessionID]
	return rec, ok
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

// newPageDoc builds a tree shaped like a chat page: a title node and a main
// chat root.
func newPageDoc() (*dom.Tree, *dom.Node, *dom.Node) {
	tree := dom.NewTree()
	title := tree.CreateElement("title", nil)
	tree.AppendChild(title, tree.CreateText(""))
	tree.AppendChild(tree.Root(), title)
	main := tree.CreateElement("main", nil)
	tree.AppendChild(tree.Root(), main)
	return tree, title, main
}

func appendMessage(tree *dom.Tree, root *dom.Node, role, text string) {
	article := tree.CreateElement("article", nil)
	block := tree.CreateElement("div", map[string]string{"data-message-author-role": role})
	tree.AppendChild(block, tree.CreateText(text))
	tree.AppendChild(article, block)
	tree.AppendChild(root, article)
}
