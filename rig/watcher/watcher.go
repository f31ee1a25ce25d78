// Package watcher reports changes to files under a set of directories whose names match glob patterns.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// Start a watcher with the provided options.
func Start(options ...Option) (Interface, error) {
	wr := &watcher{}
	for _, option := range options {
		err := option(wr)
		if err != nil {
			return nil, err
		}
	}
	err := wr.start()
	if err != nil {
		return nil, err
	}
	return wr, nil
}

// An Option is a function that can manipulate a watcher during construction
type Option func(*watcher) error

// Include specifies one or more file patterns to include in the watch.  Patterns are matched against the whole path
// as reported for the watched directory, "*" stays within a directory and "**" crosses directories.
// If no patterns are specified, all files are included.
func Include(patterns ...string) Option {
	return func(wr *watcher) (err error) {
		wr.includes, err = appendPatterns(wr.includes, patterns...)
		return
	}
}

// Exclude specifies one or more file patterns to exclude from the watch.
// If no patterns are specified, only files whose base name starts with a dot are excluded.
// If a file matches both an include and an exclude pattern, it is excluded.
func Exclude(patterns ...string) Option {
	return func(wr *watcher) (err error) {
		wr.excludes, err = appendPatterns(wr.excludes, patterns...)
		return
	}
}

func appendPatterns(seq []glob.Glob, patterns ...string) ([]glob.Glob, error) {
	for _, pattern := range patterns {
		rx, err := glob.Compile(pattern, filepath.Separator)
		if err != nil {
			return nil, errors.Wrapf(err, `in %q`, pattern)
		}
		seq = append(seq, rx)
	}
	return seq, nil
}

// Directory specifies one or more directories to watch recursively.
// If no directories are specified, the current working directory is watched.
func Directory(paths ...string) Option {
	return func(wr *watcher) error {
		wr.directories = append(wr.directories, paths...)
		return nil
	}
}

// Poll makes the watcher rescan its directories every interval instead of relying on file system notifications,
// which network mounts and container volumes often never deliver.
func Poll(interval time.Duration) Option {
	return func(wr *watcher) error {
		if interval <= 0 {
			return errors.Errorf(`poll interval must be positive, not %v`, interval)
		}
		wr.poll = interval
		return nil
	}
}

// Interface describes the watcher interface
type Interface interface {
	// Alert delivers the path of a changed file.  Changes that arrive while nobody is receiving are dropped.
	Alert() <-chan string
	// Shutdown stops the watcher and waits for it to finish; it is safe to call more than once.
	Shutdown()
}

type watcher struct {
	includes    []glob.Glob
	excludes    []glob.Glob
	directories []string
	poll        time.Duration

	fsnotify   *fsnotify.Watcher
	files      map[string]stamp // last scan, when polling
	alertCh    chan string      // sent when the watcher has observed a change
	shutdownCh chan struct{}    // closed when the watcher should shut down
	doneCh     chan struct{}    // closed when the watcher is done
	stop       sync.Once
}

func (wr *watcher) start() (err error) {
	if len(wr.directories) == 0 {
		wr.directories = []string{`.`}
	}
	if wr.poll > 0 {
		err = wr.startPolling()
	} else {
		err = wr.startNotify()
	}
	if err != nil {
		return err
	}
	wr.alertCh = make(chan string)
	wr.shutdownCh = make(chan struct{})
	wr.doneCh = make(chan struct{})
	go wr.process()
	return nil
}

func (wr *watcher) startPolling() error {
	for _, dir := range wr.directories {
		_, err := os.Stat(dir)
		if err != nil {
			return err
		}
	}
	wr.files = wr.scan()
	return nil
}

func (wr *watcher) startNotify() (err error) {
	wr.fsnotify, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range wr.directories {
		err := filepath.WalkDir(dir, func(path string, info fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return wr.fsnotify.Add(path)
			}
			return nil
		})
		if err != nil {
			wr.fsnotify.Close()
			return err
		}
	}
	return nil
}

func (wr *watcher) Alert() <-chan string {
	return wr.alertCh
}

func (wr *watcher) Shutdown() {
	wr.stop.Do(func() { close(wr.shutdownCh) })
	<-wr.doneCh
}

func (wr *watcher) process() {
	defer close(wr.doneCh)
	var (
		tick   <-chan time.Time
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if wr.fsnotify != nil {
		defer wr.fsnotify.Close()
		events, errs = wr.fsnotify.Events, wr.fsnotify.Errors
	} else {
		ticker := time.NewTicker(wr.poll)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-wr.shutdownCh:
			return
		case <-tick:
			wr.processScan()
		case event, ok := <-events:
			if !ok {
				return
			}
			wr.processNotification(event)
		case _, ok := <-errs:
			if !ok {
				return
			}
		}
	}
}

type stamp struct {
	mod  int64
	size int64
}

// scan stamps every file under the watched directories; unreadable entries are skipped.
func (wr *watcher) scan() map[string]stamp {
	files := make(map[string]stamp)
	for _, dir := range wr.directories {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			files[path] = stamp{info.ModTime().UnixNano(), info.Size()}
			return nil
		})
	}
	return files
}

// processScan alerts for every file created, modified or removed since the previous scan.
func (wr *watcher) processScan() {
	files := wr.scan()
	for path, st := range files {
		if prev, ok := wr.files[path]; !ok || prev != st {
			wr.issueAlert(path)
		}
	}
	for path := range wr.files {
		if _, ok := files[path]; !ok {
			wr.issueAlert(path)
		}
	}
	wr.files = files
}

func (wr *watcher) processNotification(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// a new directory is not a change, but its files should be watched, including a renamed directory.
			_ = filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
				if err == nil && d.IsDir() {
					_ = wr.fsnotify.Add(path)
				}
				return nil
			})
			return
		}
		wr.issueAlert(event.Name)
		return
	}

	if event.Has(fsnotify.Write) {
		wr.issueAlert(event.Name)
	} else if event.Has(fsnotify.Remove) {
		_ = wr.fsnotify.Remove(event.Name)
		wr.issueAlert(event.Name)
	} else if event.Has(fsnotify.Rename) {
		wr.issueAlert(event.Name)
	}
}

func (wr *watcher) issueAlert(name string) {
	if !wr.shouldInclude(name) {
		return
	}
	select {
	case wr.alertCh <- name:
	default:
	}
}

func (wr *watcher) shouldInclude(name string) bool {
	if len(wr.excludes) == 0 {
		if strings.HasPrefix(filepath.Base(name), `.`) {
			return false
		}
	}
	included := len(wr.includes) == 0
	for _, rx := range wr.includes {
		if rx.Match(name) {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, rx := range wr.excludes {
		if rx.Match(name) {
			return false
		}
	}
	return true
}
