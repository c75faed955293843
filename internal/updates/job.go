package updates

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairpm/fair-go/internal/registry"
	"github.com/fairpm/fair-go/internal/safego"
	"github.com/fairpm/fair-go/internal/telemetry"
)

// Rescanner rebuilds the registry before a sweep. *registry.Scanner
// satisfies it.
type Rescanner interface {
	Rescan() (*registry.ScanResult, error)
}

// Job runs sweeps for both package kinds on a fixed interval.
type Job struct {
	checker *Checker
	scanner Rescanner

	mu   sync.RWMutex
	last map[registry.Kind]*Transient

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewJob creates a job. scanner may be nil to sweep the registry as is.
func NewJob(checker *Checker, scanner Rescanner) *Job {
	return &Job{
		checker: checker,
		scanner: scanner,
		last:    make(map[registry.Kind]*Transient),
		stopCh:  make(chan struct{}),
	}
}

// Start runs a sweep immediately and then every interval until Stop is
// called or ctx is cancelled.
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	slog.Info("starting update check job", "interval", interval)

	j.wg.Add(1)
	safego.Go("update-job", func() {
		defer j.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		j.runSafe(ctx)

		for {
			select {
			case <-ticker.C:
				j.runSafe(ctx)
			case <-j.stopCh:
				slog.Info("update check job stopped")
				return
			case <-ctx.Done():
				slog.Info("update check job context cancelled")
				return
			}
		}
	})
}

// runSafe runs one sweep so that a panic in it does not end the loop.
func (j *Job) runSafe(ctx context.Context) {
	safego.Run("update-sweep", func() { j.RunOnce(ctx) })
}

// Stop stops the job and waits for a running sweep to finish. It is safe
// to call more than once.
func (j *Job) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

// RunOnce rescans and sweeps both kinds. A call made while another sweep is
// running returns false without doing anything.
func (j *Job) RunOnce(ctx context.Context) bool {
	if !j.running.CompareAndSwap(false, true) {
		slog.Info("update sweep already running, skipping")
		return false
	}
	defer j.running.Store(false)

	if j.scanner != nil {
		res, err := j.scanner.Rescan()
		if err != nil {
			slog.Error("package scan failed", "error", err)
		} else {
			slog.Debug("registry rebuilt", "plugins", res.Plugins, "themes", res.Themes)
			telemetry.RegisteredPackages.WithLabelValues(string(registry.KindPlugin)).Set(float64(res.Plugins))
			telemetry.RegisteredPackages.WithLabelValues(string(registry.KindTheme)).Set(float64(res.Themes))
		}
	}

	for _, kind := range []registry.Kind{registry.KindPlugin, registry.KindTheme} {
		t, err := j.checker.Sweep(ctx, kind)
		if err != nil {
			slog.Error("update sweep failed", "kind", kind, "error", err)
			continue
		}
		j.mu.Lock()
		j.last[kind] = t
		j.mu.Unlock()
	}
	return true
}

// Last returns the most recent sweep result for kind, or nil.
func (j *Job) Last(kind registry.Kind) *Transient {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.last[kind]
}
