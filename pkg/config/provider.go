package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Provider publishes the current policy as an immutable snapshot. Scoring
// passes take one snapshot at entry and use it throughout, so a reload
// mid-pass never mixes old and new thresholds.
//
// A file-backed provider watches the policy file and swaps in each valid
// rewrite atomically. An invalid rewrite is never adopted: the provider
// keeps serving the last valid policy and records the reload error.
type Provider struct {
	current atomic.Pointer[Policy]
	lastErr atomic.Pointer[error]

	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	done    chan struct{}
}

// NewStaticProvider wraps a fixed policy, mostly for tests and one-shot
// scans. The policy must already be validated.
func NewStaticProvider(p *Policy) *Provider {
	prov := &Provider{done: make(chan struct{})}
	prov.current.Store(p)
	close(prov.done)
	return prov
}

// NewFileProvider loads the policy file, validates it, and watches it for
// rewrites. The initial load is fatal on any error.
func NewFileProvider(path string, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	p, err := Load(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create policy watcher: %w", err)
	}
	// Watch the directory, not the file: editors and config-management
	// tools replace files via rename, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch policy dir: %w", err)
	}

	prov := &Provider{
		path:    path,
		watcher: watcher,
		logger:  logger,
		done:    make(chan struct{}),
	}
	prov.current.Store(p)
	go prov.watch()
	return prov, nil
}

// Snapshot returns the current policy. The returned value must be treated
// as read-only.
func (pr *Provider) Snapshot() *Policy {
	return pr.current.Load()
}

// LastReloadError returns the error from the most recent failed reload,
// or nil if the last reload succeeded.
func (pr *Provider) LastReloadError() error {
	if e := pr.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

// Close stops the file watcher. Snapshot keeps working afterwards.
func (pr *Provider) Close() error {
	if pr.watcher == nil {
		return nil
	}
	err := pr.watcher.Close()
	<-pr.done
	return err
}

func (pr *Provider) watch() {
	defer close(pr.done)
	target := filepath.Clean(pr.path)

	for {
		select {
		case ev, ok := <-pr.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			pr.reload()
		case err, ok := <-pr.watcher.Errors:
			if !ok {
				return
			}
			pr.logger.Error("policy watcher error", zap.Error(err))
		}
	}
}

func (pr *Provider) reload() {
	// A truncate-then-write rewrite delivers a Write event for the empty
	// file first. An empty file would load as the pure defaults, so treat
	// it as a torn write and keep the last valid policy until the content
	// event arrives.
	if fi, err := os.Stat(pr.path); err == nil && fi.Size() == 0 {
		rerr := fmt.Errorf("policy file %s is empty (rewrite in progress?)", pr.path)
		pr.lastErr.Store(&rerr)
		pr.logger.Warn("policy reload skipped: file is empty, keeping last valid policy",
			zap.String("path", pr.path),
		)
		return
	}

	p, err := Load(pr.path)
	if err != nil {
		pr.lastErr.Store(&err)
		pr.logger.Error("policy reload rejected, keeping last valid policy",
			zap.String("path", pr.path),
			zap.Error(err),
		)
		return
	}
	pr.lastErr.Store(nil)
	pr.current.Store(p)
	pr.logger.Info("policy reloaded",
		zap.String("path", pr.path),
		zap.Float64("quarantine_threshold", p.QuarantineThreshold),
		zap.Float64("review_threshold", p.ReviewThreshold),
	)
}
