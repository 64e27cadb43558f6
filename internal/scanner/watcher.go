package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// DefaultSettleDelay is how long a file must stay quiet before it is read
const DefaultSettleDelay = 150 * time.Millisecond

// DirectoryWatcher turns image files written into a directory into analyzer frames
type DirectoryWatcher struct {
	dir         string
	extensions  map[string]bool
	analyzer    *Analyzer
	settleDelay time.Duration
	logger      *logrus.Entry

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDirectoryWatcher creates a watcher for dir. Only files with one of extensions are read.
func NewDirectoryWatcher(dir string, extensions []string, analyzer *Analyzer) (*DirectoryWatcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Watch directory is not accessible", err.Error())
	}
	if !info.IsDir() {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Watch path is not a directory", dir)
	}

	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}

	return &DirectoryWatcher{
		dir:         dir,
		extensions:  exts,
		analyzer:    analyzer,
		settleDelay: DefaultSettleDelay,
		logger:      utils.ComponentLogger("watcher").WithField("dir", dir),
		timers:      make(map[string]*time.Timer),
	}, nil
}

// Matches reports whether path has a watched extension
func (w *DirectoryWatcher) Matches(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	return w.extensions[strings.ToLower(filepath.Ext(path))]
}

// ScanExisting submits every matching file already in the directory, oldest name first
func (w *DirectoryWatcher) ScanExisting() (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeProcessing, "Failed to list watch directory", err.Error())
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() && w.Matches(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		w.submitFile(filepath.Join(w.dir, name))
	}
	return len(names), nil
}

// Run watches the directory until ctx ends
func (w *DirectoryWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeProcessing, "Failed to create file watcher", err.Error())
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return utils.NewAppError(utils.ErrCodeProcessing, "Failed to watch directory", err.Error())
	}

	w.logger.Info("Watching directory for images")
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.Matches(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("File watcher error")
		}
	}
}

// schedule reads path once it has been quiet for the settle delay; every
// further write restarts the countdown.
func (w *DirectoryWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.settleDelay)
		return
	}

	w.timers[path] = time.AfterFunc(w.settleDelay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		w.submitFile(path)
	})
}

func (w *DirectoryWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
}

func (w *DirectoryWatcher) submitFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.WithError(err).WithField("path", path).Warn("Failed to read image file")
		return
	}
	if len(data) == 0 {
		return
	}

	w.analyzer.Submit(Frame{
		ID:     utils.GenerateID(),
		Source: SourceWatch,
		Path:   path,
		Data:   data,
	})
}
