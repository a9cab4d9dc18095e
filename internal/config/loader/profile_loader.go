// Package loader hot-reloads strategy parameters from a YAML profile file,
// so tuning does not require a pipeline restart.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"riptide/internal/logger"
)

// ProfileDefinition is the hot-reloadable parameter set for the three
// evaluators. Zero values fall back to the evaluator defaults.
type ProfileDefinition struct {
	TrendPullback TrendPullbackParams `yaml:"trend_pullback"`
	RangeBreakout RangeBreakoutParams `yaml:"range_breakout"`
	BandReversion BandReversionParams `yaml:"band_reversion"`
}

type TrendPullbackParams struct {
	MaxDistance   float64 `yaml:"max_distance"`
	MinStop       float64 `yaml:"min_stop"`
	StopATRFactor float64 `yaml:"stop_atr_factor"`
	TargetMult    float64 `yaml:"target_mult"`
	RequireCross  bool    `yaml:"require_cross"`
	RiskFraction  float64 `yaml:"risk_fraction"`
}

type RangeBreakoutParams struct {
	BufferPrice    float64 `yaml:"buffer_price"`
	ProjectionMult float64 `yaml:"projection_mult"`
	MinStop        float64 `yaml:"min_stop"`
	RiskFraction   float64 `yaml:"risk_fraction"`
}

type BandReversionParams struct {
	BandK         float64 `yaml:"band_k"`
	StopSigmaMult float64 `yaml:"stop_sigma_mult"`
	RiskFraction  float64 `yaml:"risk_fraction"`
}

type fileConfig struct {
	Strategy ProfileDefinition `yaml:"strategy"`
}

// ProfileSnapshot is the read-only view handed to listeners.
type ProfileSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Strategy ProfileDefinition
}

type ChangeListener func(ProfileSnapshot)

// ProfileLoader reads the profile file once and then follows filesystem
// events. Watching the directory instead of the file survives the
// rename-and-replace pattern editors and config tools use.
type ProfileLoader struct {
	path    string
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	snapshot  ProfileSnapshot
	listeners []ChangeListener
	closed    bool
}

func NewProfileLoader(path string) (*ProfileLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile loader requires path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	l := &ProfileLoader{path: abs}
	if err := l.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("profile watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("profile watch %s: %w", filepath.Dir(abs), err)
	}
	l.watcher = watcher
	go l.watchLoop()
	return l, nil
}

func (l *ProfileLoader) watchLoop() {
	for {
		select {
		case evt, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != l.path {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}
			if err := l.reload(); err != nil {
				logger.Errorf("profile reload failed (%s): %v", evt.Name, err)
				continue
			}
			l.notify()
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("profile watcher error: %v", err)
		}
	}
}

func (l *ProfileLoader) reload() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read profile config failed: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse profile config failed: %w", err)
	}
	l.mu.Lock()
	l.snapshot = ProfileSnapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Strategy: cfg.Strategy,
	}
	version := l.snapshot.Version
	l.mu.Unlock()
	logger.Infof("Profile loader: reloaded %s (version %d)", filepath.Base(l.path), version)
	return nil
}

func (l *ProfileLoader) Snapshot() ProfileSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Subscribe registers a listener and immediately delivers the current
// snapshot to it.
func (l *ProfileLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := l.snapshot
	l.mu.Unlock()
	go runListener(fn, snap)
}

func (l *ProfileLoader) notify() {
	l.mu.RLock()
	snap := l.snapshot
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		go runListener(fn, snap)
	}
}

func runListener(fn ChangeListener, snap ProfileSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("profile listener panic: %v", r)
		}
	}()
	fn(snap)
}

func (l *ProfileLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.watcher == nil {
		return nil
	}
	l.closed = true
	return l.watcher.Close()
}
