// Package source feeds an HTML chat transcript file into the document tree,
// standing in for the host page's renderer: newly appended message
// containers arrive as child-list mutations, growth of the last assistant
// block arrives as character-data mutations.
package source

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/WDelesposti/tokie/internal/dom"
)

// Config holds transcript parsing parameters.
type Config struct {
	Debounce      time.Duration // coalesce window for file events
	Container     string        // message container tag
	RoleAttr      string        // role attribute on content blocks
	RoleAssistant string
}

func (c *Config) applyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = 200 * time.Millisecond
	}
	if c.Container == "" {
		c.Container = "article"
	}
	if c.RoleAttr == "" {
		c.RoleAttr = "data-message-author-role"
	}
	if c.RoleAssistant == "" {
		c.RoleAssistant = "assistant"
	}
}

// File watches one transcript file and applies its growth to the tree.
// The transcript is append-oriented: containers beyond the last applied
// count are attached, and text growth inside the newest assistant block is
// applied in place.
type File struct {
	cfg  Config
	path string
	tree *dom.Tree
	root *dom.Node
	log  *zap.Logger

	watcher *fsnotify.Watcher
	stop    chan struct{}
	wg      sync.WaitGroup

	applied int // containers already attached
}

// NewFile creates a transcript source writing into root.
func NewFile(path string, tree *dom.Tree, root *dom.Node, log *zap.Logger, cfg Config) *File {
	cfg.applyDefaults()
	return &File{
		cfg:  cfg,
		path: filepath.Clean(path),
		tree: tree,
		root: root,
		log:  log,
		stop: make(chan struct{}),
	}
}

// Start applies the current file contents, then watches the parent
// directory for changes. Watching the directory survives editors that
// replace the file on save.
func (f *File) Start() error {
	f.sync()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		w.Close()
		return err
	}
	f.watcher = w

	f.wg.Add(1)
	go f.run()
	return nil
}

// Stop detaches the file watcher and waits for the loop to exit.
func (f *File) Stop() {
	close(f.stop)
	f.wg.Wait()
}

func (f *File) run() {
	defer f.wg.Done()
	defer f.watcher.Close()

	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-f.stop:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(f.cfg.Debounce)
		case <-debounce.C:
			f.sync()
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.log.Warn("transcript watch error", zap.Error(err))
		}
	}
}

// sync re-parses the transcript and applies what is new. The whole file is
// parsed each time; the applied counter keeps attachment idempotent.
func (f *File) sync() {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.log.Warn("transcript read failed", zap.Error(err))
		}
		return
	}

	nodes, err := f.tree.ParseFragment(string(data))
	if err != nil {
		f.log.Warn("transcript parse failed", zap.Error(err))
		return
	}

	var containers []*dom.Node
	for _, n := range nodes {
		containers = append(containers, n.FindAll(f.cfg.Container)...)
	}

	if len(containers) > f.applied {
		for _, c := range containers[f.applied:] {
			f.tree.AppendChild(f.root, c)
		}
		f.log.Debug("transcript grew",
			zap.Int("new_containers", len(containers)-f.applied))
		f.applied = len(containers)
		return
	}

	if len(containers) > 0 {
		f.applyTextGrowth(containers[len(containers)-1])
	}
}

// applyTextGrowth mirrors in-place streaming: when the container count is
// unchanged but the newest assistant block's text differs, the live block's
// text node is updated, producing a character-data mutation.
func (f *File) applyTextGrowth(parsedLast *dom.Node) {
	live := f.root.FindAll(f.cfg.Container)
	if len(live) == 0 {
		return
	}

	parsedBlock := parsedLast.FindByAttr(f.cfg.RoleAttr, f.cfg.RoleAssistant)
	liveBlock := live[len(live)-1].FindByAttr(f.cfg.RoleAttr, f.cfg.RoleAssistant)
	if parsedBlock == nil || liveBlock == nil {
		return
	}
	if parsedBlock.Text() == liveBlock.Text() {
		return
	}

	if txt := liveBlock.FirstText(); txt != nil {
		f.tree.SetText(txt, parsedBlock.Text())
	} else {
		f.tree.AppendChild(liveBlock, f.tree.CreateText(parsedBlock.Text()))
	}
}
