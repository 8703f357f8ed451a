// Package engine wires session identity, the usage store and the tracker
// together, and forwards usage snapshots to the display surface.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/WDelesposti/tokie/internal/dom"
	"github.com/WDelesposti/tokie/internal/domain/usage"
	"github.com/WDelesposti/tokie/internal/identity"
	"github.com/WDelesposti/tokie/internal/metrics"
	"github.com/WDelesposti/tokie/internal/tracker"
)

// Store is the engine's view of usage persistence.
type Store interface {
	Load(ctx context.Context, sessionID string) (usage.Record, error)
	Save(ctx context.Context, rec usage.Record) error
	CurrentSession(ctx context.Context) (usage.Record, bool, error)
}

// Notifier receives immutable usage snapshots. It must render idempotently
// from the latest snapshot alone.
type Notifier interface {
	Notify(snapshot usage.Record)
}

// Config holds document selectors and tracking parameters.
type Config struct {
	RootTag    string // chat root element, e.g. "main"
	TitleTag   string // low-churn node watched for session changes
	PathPrefix string // location prefix carrying session keys, e.g. "/c/"
	Tracker    tracker.Config
}

func (c *Config) applyDefaults() {
	if c.RootTag == "" {
		c.RootTag = "main"
	}
	if c.TitleTag == "" {
		c.TitleTag = "title"
	}
	if c.PathPrefix == "" {
		c.PathPrefix = "/c/"
	}
}

const switchLoadTimeout = 10 * time.Second

// Engine owns one active usage record at a time. A session change swaps the
// whole tracker rather than mutating it in place, so a stale timer or
// observer callback can never write into the wrong record.
type Engine struct {
	cfg      Config
	tree     *dom.Tree
	store    Store
	est      tracker.Estimator
	notifier Notifier
	log      *zap.Logger
	watcher  *identity.Watcher

	mu     sync.Mutex
	active *tracker.Tracker
}

// New creates an engine over the given document tree.
func New(
	tree *dom.Tree,
	store Store,
	est tracker.Estimator,
	notifier Notifier,
	log *zap.Logger,
	cfg Config,
) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:      cfg,
		tree:     tree,
		store:    store,
		est:      est,
		notifier: notifier,
		log:      log,
	}
}

// Start resolves the session key, loads (or creates) its record, begins
// tracking and watches for session changes. A load failure aborts startup:
// a session must not start with fabricated state.
func (e *Engine) Start(ctx context.Context) error {
	key := e.resolveStartKey(ctx)

	rec, err := e.store.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load session %s: %w", key, err)
	}
	e.log.Info("session loaded",
		zap.String("session_id", rec.SessionID()),
		zap.Int("total_tokens", rec.TotalTokens()),
	)

	e.notifier.Notify(rec)
	e.startTracker(rec)

	e.watcher = identity.NewWatcher(e.tree, e.cfg.PathPrefix, e.log)
	e.watcher.Start(e.cfg.TitleTag, key, e.onSessionChange)
	return nil
}

// resolveStartKey prefers the location-derived key, falls back to the stored
// current session (host restarted mid-session), and finally mints a
// transient key so initialization never fails on an unresolvable location.
func (e *Engine) resolveStartKey(ctx context.Context) string {
	if key, ok := identity.ResolveKey(e.tree.Location(), e.cfg.PathPrefix); ok {
		return key
	}
	if cur, found, err := e.store.CurrentSession(ctx); err == nil && found {
		e.log.Info("resuming stored session", zap.String("session_id", cur.SessionID()))
		return cur.SessionID()
	}
	key := identity.TransientKey()
	e.log.Info("location did not resolve, using transient session",
		zap.String("session_id", key))
	return key
}

func (e *Engine) startTracker(rec usage.Record) {
	root := e.tree.FindFirst(e.cfg.RootTag)
	if root == nil {
		// Nothing to observe yet; not an error.
		e.log.Debug("chat root not found, tracking idle", zap.String("tag", e.cfg.RootTag))
		return
	}

	tr := tracker.New(e.tree, root, rec, e.est, e.store, e.notifier, e.log, e.cfg.Tracker)
	e.mu.Lock()
	e.active = tr
	e.mu.Unlock()
	tr.Start()
}

// onSessionChange tears down the current tracker before anything else, so
// its pending timers and observation can never leak into the new record.
func (e *Engine) onSessionChange(key string) {
	metrics.SessionSwitchesTotal.Inc()

	e.mu.Lock()
	old := e.active
	e.active = nil
	e.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), switchLoadTimeout)
	defer cancel()

	rec, err := e.store.Load(ctx, key)
	if err != nil {
		e.log.Error("failed to load session after switch",
			zap.String("session_id", key),
			zap.Error(err),
		)
		return
	}

	e.notifier.Notify(rec)
	e.startTracker(rec)
}

// Stop detaches the identity watcher and the active tracker.
func (e *Engine) Stop() {
	if e.watcher != nil {
		e.watcher.Stop()
	}
	e.mu.Lock()
	active := e.active
	e.active = nil
	e.mu.Unlock()
	if active != nil {
		active.Stop()
	}
}
