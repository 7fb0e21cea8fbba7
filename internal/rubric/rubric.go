// Package rubric loads the ordered topic priorities handed to the tie-break
// judge and reloads them when the file changes.
package rubric

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
)

// DefaultPriorities is used when no rubric file exists.
var DefaultPriorities = []string{
	"Armed conflict and national security",
	"Heads of state, elections and government changes",
	"Major legislation and court rulings",
	"Economic crises and market events",
	"Natural disasters and public health emergencies",
	"Scientific and technological milestones",
	"Culture, sport and society",
}

// ErrEmptyRubric is returned for a file without priorities.
var ErrEmptyRubric = errors.New("rubric has no priorities")

type file struct {
	Priorities []string `yaml:"priorities"`
}

// Load reads priorities from a YAML file of the form `priorities: [...]`.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rubric: %w", err)
	}

	var f file
	if err = yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rubric %s: %w", path, err)
	}

	out := make([]string, 0, len(f.Priorities))
	for _, p := range f.Priorities {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyRubric)
	}
	return out, nil
}

// Rubric holds the current priorities. It satisfies consensus.Rubric.
type Rubric struct {
	path string
	log  logger.Logger

	mu         sync.RWMutex
	priorities []string
}

// New loads path, falling back to DefaultPriorities when path is empty or
// missing. A file that exists but cannot be parsed is an error.
func New(path string, log logger.Logger) (*Rubric, error) {
	r := &Rubric{path: path, log: logger.Component(log, "rubric"), priorities: DefaultPriorities}
	if path == "" {
		return r, nil
	}

	priorities, err := Load(path)
	switch {
	case err == nil:
		r.priorities = priorities
	case errors.Is(err, os.ErrNotExist):
		r.log.Info("Rubric file not found, using defaults", logger.String("path", path))
	default:
		return nil, err
	}
	return r, nil
}

// Priorities returns a copy of the current priorities.
func (r *Rubric) Priorities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.priorities...)
}

// Reload rereads the file. On failure the previous priorities are kept.
func (r *Rubric) Reload() error {
	priorities, err := Load(r.path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.priorities = priorities
	r.mu.Unlock()

	r.log.Info("Rubric reloaded", logger.Int("priorities", len(priorities)))
	return nil
}

// Watch reloads the rubric whenever its file is written or replaced, until
// ctx is done. The parent directory is watched so editors that swap files
// are handled.
func (r *Rubric) Watch(ctx context.Context) error {
	if r.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err = watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.path, err)
	}
	target := filepath.Clean(r.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || (!ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create)) {
				continue
			}
			if reloadErr := r.Reload(); reloadErr != nil {
				r.log.Warn("Rubric reload failed, keeping previous priorities", logger.Error(reloadErr))
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("Rubric watcher error", logger.Error(watchErr))
		}
	}
}
