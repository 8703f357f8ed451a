// Package tracker keeps a session's usage record current against a live
// chat document.
//
// Tracking has two phases. Until the document settles, every mutation only
// restarts a quiescence timer: streamed rendering produces many incomplete
// mutations, and counting them would double-count partial text. When the
// timer expires uninterrupted, one authoritative full recount runs and the
// tracker switches permanently to incremental aggregation: user blocks are
// counted once on insertion, assistant blocks are debounced while streaming
// and estimated once per completed turn.
//
// A single goroutine owns the record and all timers, so the settlement and
// aggregation phases can never mutate it concurrently.
package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/WDelesposti/tokie/internal/dom"
	"github.com/WDelesposti/tokie/internal/domain/usage"
	"github.com/WDelesposti/tokie/internal/metrics"
)

// Estimator turns text into a token count.
type Estimator interface {
	Estimate(text string) int
}

// Store persists usage records.
type Store interface {
	Save(ctx context.Context, rec usage.Record) error
}

// Notifier receives an immutable usage snapshot after every mutation.
type Notifier interface {
	Notify(snapshot usage.Record)
}

// Config holds tracking parameters.
type Config struct {
	Quiescence    time.Duration // settle window after the last mutation
	Debounce      time.Duration // assistant stream flush window
	Container     string        // message container tag
	RoleAttr      string        // role attribute on content blocks
	RoleUser      string
	RoleAssistant string
}

func (c *Config) applyDefaults() {
	if c.Quiescence <= 0 {
		c.Quiescence = time.Second
	}
	if c.Debounce <= 0 {
		c.Debounce = 800 * time.Millisecond
	}
	if c.Container == "" {
		c.Container = "article"
	}
	if c.RoleAttr == "" {
		c.RoleAttr = "data-message-author-role"
	}
	if c.RoleUser == "" {
		c.RoleUser = "user"
	}
	if c.RoleAssistant == "" {
		c.RoleAssistant = "assistant"
	}
}

const saveTimeout = 5 * time.Second

type phase uint8

const (
	unsettled phase = iota
	settling
	settled
)

// Tracker binds one usage record to one watched document root for the
// record's lifetime. A session switch discards the tracker; it is never
// rebound.
type Tracker struct {
	cfg      Config
	tree     *dom.Tree
	root     *dom.Node
	rec      usage.Record
	est      Estimator
	store    Store
	notifier Notifier
	log      *zap.Logger

	phase       phase
	countedUser map[*dom.Node]struct{}
	buffer      string
	hasBuffer   bool

	settleTimer *time.Timer
	flushTimer  *time.Timer
	muts        <-chan []dom.Mutation
	cancelSub   func()
	stop        chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
}

// New creates a tracker for rec over the given document root.
func New(
	tree *dom.Tree,
	root *dom.Node,
	rec usage.Record,
	est Estimator,
	store Store,
	notifier Notifier,
	log *zap.Logger,
	cfg Config,
) *Tracker {
	cfg.applyDefaults()
	return &Tracker{
		cfg:         cfg,
		tree:        tree,
		root:        root,
		rec:         rec,
		est:         est,
		store:       store,
		notifier:    notifier,
		log:         log,
		countedUser: make(map[*dom.Node]struct{}),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start subscribes to the document and begins the run loop. Adopting a
// record counts as the first activity, so a document that never mutates
// still settles after one quiescence window.
func (t *Tracker) Start() {
	t.muts, t.cancelSub = t.tree.Subscribe(t.root, dom.SubscribeOptions{
		Subtree:       true,
		ChildList:     true,
		CharacterData: true,
	})
	t.settleTimer = time.NewTimer(t.cfg.Quiescence)
	t.flushTimer = newStoppedTimer()
	t.phase = settling
	go t.run()
}

// Stop detaches the observation, cancels pending timers and waits for the
// loop to exit. Safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

func (t *Tracker) run() {
	defer close(t.done)
	defer t.cancelSub()
	defer t.settleTimer.Stop()
	defer t.flushTimer.Stop()

	for {
		select {
		case <-t.stop:
			return
		case batch, ok := <-t.muts:
			if !ok {
				return
			}
			t.onMutations(batch)
		case <-t.settleTimer.C:
			if t.phase != settled {
				t.settle()
			}
		case <-t.flushTimer.C:
			t.flushAssistant()
		}
	}
}

func (t *Tracker) onMutations(batch []dom.Mutation) {
	for _, m := range batch {
		switch m.Type {
		case dom.ChildList:
			metrics.MutationsTotal.WithLabelValues("childlist").Inc()
		case dom.CharacterData:
			metrics.MutationsTotal.WithLabelValues("chardata").Inc()
		}

		if t.phase != settled {
			// Still rendering: restart the quiescence window, count nothing.
			t.phase = settling
			restartTimer(t.settleTimer, t.cfg.Quiescence)
			continue
		}

		switch m.Type {
		case dom.ChildList:
			t.onChildList(m)
		case dom.CharacterData:
			t.onCharacterData(m)
		}
	}
}

// settle performs the one authoritative recount: every role-tagged block
// currently present is re-estimated from scratch, correcting any drift from
// the partial mutations observed while rendering.
func (t *Tracker) settle() {
	var input, output int
	for _, container := range t.root.FindAll(t.cfg.Container) {
		if ub := container.FindByAttr(t.cfg.RoleAttr, t.cfg.RoleUser); ub != nil {
			input += t.estimate(ub.Text())
			t.countedUser[ub] = struct{}{}
		}
		if ab := container.FindByAttr(t.cfg.RoleAttr, t.cfg.RoleAssistant); ab != nil {
			output += t.estimate(ab.Text())
		}
	}

	t.rec.SetCounts(input, output)
	t.phase = settled
	metrics.SettlementsTotal.Inc()
	t.log.Info("chat settled",
		zap.String("session_id", t.rec.SessionID()),
		zap.Int("input_tokens", input),
		zap.Int("output_tokens", output),
	)
	t.persistAndNotify()
}

func (t *Tracker) onChildList(m dom.Mutation) {
	for _, added := range m.Added {
		if added.Type() != dom.ElementNode {
			continue
		}
		for _, container := range added.FindAll(t.cfg.Container) {
			if ab := container.FindByAttr(t.cfg.RoleAttr, t.cfg.RoleAssistant); ab != nil {
				t.bufferAssistant(ab.Text())
			}
			if ub := container.FindByAttr(t.cfg.RoleAttr, t.cfg.RoleUser); ub != nil {
				t.countUser(ub)
			}
		}
	}
}

func (t *Tracker) onCharacterData(m dom.Mutation) {
	container := m.Target.Closest(t.cfg.Container)
	if container == nil {
		return
	}
	if ab := container.FindByAttr(t.cfg.RoleAttr, t.cfg.RoleAssistant); ab != nil {
		t.bufferAssistant(ab.Text())
	}
	// In-place edits of user blocks have no re-subtraction path: totals only
	// grow after settlement.
}

// countUser counts a user block exactly once: user messages are complete at
// insertion, there is no streaming to wait out.
func (t *Tracker) countUser(block *dom.Node) {
	if _, ok := t.countedUser[block]; ok {
		return
	}
	t.countedUser[block] = struct{}{}

	t.rec.AddInput(t.estimate(block.Text()))
	t.persistAndNotify()
}

// bufferAssistant records the latest full text of the in-progress assistant
// block and restarts the flush window. Only an uninterrupted window triggers
// estimation, so a streamed turn costs one pass instead of one per frame.
func (t *Tracker) bufferAssistant(text string) {
	t.buffer = text
	t.hasBuffer = true
	restartTimer(t.flushTimer, t.cfg.Debounce)
}

func (t *Tracker) flushAssistant() {
	if !t.hasBuffer {
		return
	}
	t.rec.AddOutput(t.estimate(t.buffer))
	t.buffer = ""
	t.hasBuffer = false
	t.persistAndNotify()
}

func (t *Tracker) estimate(text string) int {
	metrics.EstimatorRunsTotal.Inc()
	return t.est.Estimate(text)
}

// persistAndNotify saves the record and publishes a snapshot. The in-memory
// record stays authoritative on save failure: the next successful save
// carries the cumulative state forward.
func (t *Tracker) persistAndNotify() {
	t.rec.SetSyncing(true)
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	err := t.store.Save(ctx, t.rec)
	cancel()
	t.rec.SetSyncing(false)

	if err != nil {
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		t.log.Warn("usage save failed, keeping in-memory state",
			zap.String("session_id", t.rec.SessionID()),
			zap.Error(err),
		)
	} else {
		metrics.StoreWritesTotal.WithLabelValues("ok").Inc()
	}

	metrics.UsageTokens.WithLabelValues("input").Set(float64(t.rec.InputTokens()))
	metrics.UsageTokens.WithLabelValues("output").Set(float64(t.rec.OutputTokens()))
	metrics.UsageTokens.WithLabelValues("total").Set(float64(t.rec.TotalTokens()))

	t.notifier.Notify(t.rec)
}

// restartTimer stops, drains and re-arms a loop-owned timer.
func restartTimer(tm *time.Timer, d time.Duration) {
	if !tm.Stop() {
		select {
		case <-tm.C:
		default:
		}
	}
	tm.Reset(d)
}

func newStoppedTimer() *time.Timer {
	tm := time.NewTimer(time.Hour)
	if !tm.Stop() {
		<-tm.C
	}
	return tm
}
