package identity

import (
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/WDelesposti/tokie/internal/dom"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"/c/abc123", "abc123", true},
		{"/c/abc123-def456", "abc123-def456", true},
		{"/c/abc123/extra", "abc123", true},
		{"/c/", "", false},
		{"/other", "", false},
		{"/some-other-path", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := ResolveKey(tc.path, "/c/")
		if ok != tc.ok || got != tc.want {
			t.Errorf("ResolveKey(%q) = (%q, %v), want (%q, %v)",
				tc.path, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTransientKey(t *testing.T) {
	a := TransientKey()
	b := TransientKey()
	if !strings.HasPrefix(a, "session-") {
		t.Errorf("unexpected transient key %q", a)
	}
	if a == b {
		t.Error("transient keys must be unique")
	}
}

func newTitledTree() (*dom.Tree, *dom.Node) {
	tree := dom.NewTree()
	title := tree.CreateElement("title", nil)
	tree.AppendChild(tree.Root(), title)
	txt := tree.CreateText("Chat")
	tree.AppendChild(title, txt)
	return tree, txt
}

func TestWatcher_FiresOncePerKeyTransition(t *testing.T) {
	tree, titleText := newTitledTree()
	tree.SetLocation("/c/first")

	var mu sync.Mutex
	var fired []string

	w := NewWatcher(tree, "/c/", zap.NewNop())
	w.Start("title", "first", func(key string) {
		mu.Lock()
		fired = append(fired, key)
		mu.Unlock()
	})
	defer w.Stop()

	// Same key: repeated title churn must not fire.
	tree.SetText(titleText, "Chat A")
	tree.SetText(titleText, "Chat A (1)")

	// New key: exactly one fire even across several title mutations.
	tree.SetLocation("/c/second")
	tree.SetText(titleText, "Chat B")
	tree.SetText(titleText, "Chat B (1)")

	// Unresolvable location: no fire.
	tree.SetLocation("/settings")
	tree.SetText(titleText, "Settings")

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != "second" {
		t.Errorf("expected exactly one transition to %q, got %v", "second", fired)
	}
}

func TestWatcher_NoTitleNode_StaysIdle(t *testing.T) {
	tree := dom.NewTree()
	w := NewWatcher(tree, "/c/", zap.NewNop())
	w.Start("title", "", func(string) {
		t.Error("callback must not fire without a title node")
	})
	w.Stop() // must not panic or block
}
