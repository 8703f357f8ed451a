package identity

import (
	"sync"

	"go.uber.org/zap"

	"github.com/WDelesposti/tokie/internal/dom"
)

// Watcher observes a narrow, low-churn title-like node for session changes
// instead of the high-frequency content mutation stream. It fires its
// callback at most once per distinct resolved-key transition.
type Watcher struct {
	tree   *dom.Tree
	prefix string
	log    *zap.Logger

	mu      sync.Mutex
	lastKey string
	cancel  func()
	done    chan struct{}
}

// NewWatcher creates a watcher for the given tree. prefix is the location
// prefix that carries session keys, e.g. "/c/".
func NewWatcher(tree *dom.Tree, prefix string, log *zap.Logger) *Watcher {
	return &Watcher{tree: tree, prefix: prefix, log: log}
}

// Start observes the title node and invokes cb with each newly resolved
// session key. currentKey seeds transition detection so the active session
// does not immediately re-fire. Missing title node means nothing to observe:
// the watcher stays idle.
func (w *Watcher) Start(titleTag, currentKey string, cb func(key string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastKey = currentKey

	title := w.tree.FindFirst(titleTag)
	if title == nil {
		w.log.Debug("title node not found, identity watcher idle",
			zap.String("tag", titleTag))
		return
	}

	ch, cancel := w.tree.Subscribe(title, dom.SubscribeOptions{
		Subtree:       true,
		ChildList:     true,
		CharacterData: true,
	})
	w.cancel = cancel
	done := make(chan struct{})
	w.done = done

	go w.run(ch, done, cb)
}

func (w *Watcher) run(ch <-chan []dom.Mutation, done chan struct{}, cb func(key string)) {
	defer close(done)
	for range ch {
		key, ok := ResolveKey(w.tree.Location(), w.prefix)
		if !ok {
			continue
		}
		w.mu.Lock()
		changed := key != w.lastKey
		if changed {
			w.lastKey = key
		}
		w.mu.Unlock()
		if changed {
			w.log.Info("session changed", zap.String("session_id", key))
			cb(key)
		}
	}
}

// Stop detaches the observation and waits for the callback goroutine.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
