// Package updates checks registered packages for newer releases. A sweep
// walks every package of one kind and sorts each into "update available" or
// "no update", keyed by its relative install path. Results and failures are
// cached in a RecordStore; a failure pauses checks for that package until its
// backoff window passes.
package updates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/packages"
	"github.com/fairpm/fair-go/internal/registry"
	"github.com/fairpm/fair-go/internal/telemetry"
)

const (
	// DefaultSuccessTTL is how long a successful check is reused.
	DefaultSuccessTTL = time.Hour
	// FailureBackoff is how long checks pause after a failure.
	FailureBackoff = 6 * time.Hour
	// MaxParallelism bounds concurrent per-package checks.
	MaxParallelism = 32
)

// Check outcomes, used as metric labels and history values.
const (
	OutcomeUpdate   = "update"
	OutcomeNoUpdate = "no_update"
	OutcomeError    = "error"
	OutcomeBackoff  = "backoff"
	OutcomeSkipped  = "skipped"
)

// TriggerCLI is the trigger used by the command line and the periodic job.
const TriggerCLI = "cli"

// triggerPages are the host pages on which update checks run.
var triggerPages = map[string]bool{
	"update-core.php":    true,
	"update.php":         true,
	"plugins.php":        true,
	"themes.php":         true,
	"plugin-install.php": true,
	"theme-install.php":  true,
	"admin-ajax.php":     true,
	"index.php":          true,
	"wp-cron.php":        true,
	TriggerCLI:           true,
}

// ShouldRun reports whether a sweep may run for trigger, a host page name
// or path such as "/wp-admin/plugins.php".
func ShouldRun(trigger string) bool {
	if trigger == "" {
		return false
	}
	return triggerPages[path.Base(trigger)]
}

// Notice is the muted message shown for a package whose checks are paused.
type Notice struct {
	DID       string        `json:"did"`
	Message   string        `json:"message"`
	ErrorKind string        `json:"error_kind"`
	RetryIn   time.Duration `json:"retry_in"`
}

// Transient is the result of a sweep.
type Transient struct {
	Kind      registry.Kind       `json:"kind"`
	CheckedAt time.Time           `json:"checked_at"`
	Response  map[string]*Payload `json:"response"`
	NoUpdate  map[string]*Payload `json:"no_update"`
	Notices   map[string]Notice   `json:"notices,omitempty"`
}

func newTransient(kind registry.Kind, now time.Time) *Transient {
	return &Transient{
		Kind:      kind,
		CheckedAt: now,
		Response:  make(map[string]*Payload),
		NoUpdate:  make(map[string]*Payload),
		Notices:   make(map[string]Notice),
	}
}

// CheckEvent describes one per-package check, for history.
type CheckEvent struct {
	DID           string
	Kind          registry.Kind
	RelativePath  string
	LocalVersion  string
	RemoteVersion string
	Outcome       string
	ErrorKind     string
	Error         string
	CheckedAt     time.Time
	Duration      time.Duration
}

// HistoryRecorder persists check events. Failures are logged, never fatal.
type HistoryRecorder interface {
	RecordCheck(ctx context.Context, ev CheckEvent) error
}

// Checker runs update sweeps.
type Checker struct {
	Registry     *registry.Registry
	Source       registry.MetadataSource
	Requirements packages.RequirementChecker
	Records      RecordStore
	Scorer       packages.ArtifactScorer
	History      HistoryRecorder

	SuccessTTL  time.Duration
	Parallelism int

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

func (c *Checker) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Checker) successTTL() time.Duration {
	if c.SuccessTTL > 0 {
		return c.SuccessTTL
	}
	return DefaultSuccessTTL
}

func (c *Checker) parallelism() int {
	switch {
	case c.Parallelism <= 0:
		return 1
	case c.Parallelism > MaxParallelism:
		return MaxParallelism
	}
	return c.Parallelism
}

func (c *Checker) scorer() packages.ArtifactScorer {
	if c.Scorer != nil {
		return c.Scorer
	}
	return packages.NewLangScorer(packages.DefaultLocale)
}

// checkResult is the outcome of one package check.
type checkResult struct {
	outcome string
	payload *Payload
	notice  *Notice
	remote  string
	err     error
}

// Sweep checks every registered package of kind. Per-package failures are
// cached and reported as notices; only cancellation of ctx fails the sweep.
func (c *Checker) Sweep(ctx context.Context, kind registry.Kind) (*Transient, error) {
	start := time.Now()
	defer func() {
		telemetry.UpdateSweepDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	t := newTransient(kind, c.now())
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism())
	for _, pkg := range c.Registry.All(kind) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := c.checkPackage(gctx, pkg)

			mu.Lock()
			defer mu.Unlock()
			rel := pkg.RelativePath()
			switch res.outcome {
			case OutcomeUpdate:
				t.Response[rel] = res.payload.forTransient(pkg)
			case OutcomeNoUpdate:
				t.NoUpdate[rel] = res.payload.forTransient(pkg)
			case OutcomeError, OutcomeBackoff:
				t.Notices[rel] = *res.notice
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("update sweep complete", "kind", kind,
		"updates", len(t.Response), "no_update", len(t.NoUpdate), "paused", len(t.Notices),
		"duration", time.Since(start))
	return t, nil
}

// checkPackage decides one package's outcome, recording metrics and
// history.
func (c *Checker) checkPackage(ctx context.Context, pkg *registry.Package) checkResult {
	start := time.Now()
	res := c.evaluate(ctx, pkg)
	telemetry.UpdateChecksTotal.WithLabelValues(string(pkg.Kind), res.outcome).Inc()

	if res.outcome == OutcomeSkipped || c.History == nil {
		return res
	}
	ev := CheckEvent{
		DID:           pkg.DID,
		Kind:          pkg.Kind,
		RelativePath:  pkg.RelativePath(),
		LocalVersion:  pkg.LocalVersion,
		RemoteVersion: res.remote,
		Outcome:       res.outcome,
		CheckedAt:     c.now(),
		Duration:      time.Since(start),
	}
	if res.err != nil {
		ev.ErrorKind = apperr.Kind(res.err)
		ev.Error = res.err.Error()
	}
	if err := c.History.RecordCheck(ctx, ev); err != nil {
		slog.Warn("failed to record update check", "did", pkg.DID, "error", err)
	}
	return res
}

func (c *Checker) evaluate(ctx context.Context, pkg *registry.Package) checkResult {
	if pkg.Filepath == "" || pkg.LocalVersion == "" {
		return checkResult{outcome: OutcomeSkipped}
	}
	now := c.now()

	rec, err := c.Records.Get(ctx, pkg.DID)
	switch {
	case err == nil && rec.Failed():
		return checkResult{outcome: OutcomeBackoff, notice: c.notice(pkg, rec, now)}
	case err == nil && rec.Payload != nil:
		return c.compare(pkg, rec.Payload)
	case err != nil && !errors.Is(err, ErrRecordNotFound):
		slog.Warn("update record lookup failed", "did", pkg.DID, "error", err)
	}

	payload, err := c.fetchPayload(ctx, pkg)
	if err != nil {
		if ctx.Err() != nil {
			return checkResult{outcome: OutcomeError, err: err, notice: &Notice{DID: pkg.DID, Message: err.Error(), ErrorKind: apperr.Kind(err)}}
		}
		failed := &Record{
			DID:       pkg.DID,
			Error:     err.Error(),
			ErrorKind: apperr.Kind(err),
			CheckedAt: now,
			ExpiresAt: now.Add(FailureBackoff),
		}
		if perr := c.Records.Put(ctx, failed); perr != nil {
			slog.Warn("failed to cache update error", "did", pkg.DID, "error", perr)
		}
		slog.Warn("update check failed", "did", pkg.DID, "error", err, "retry_in", FailureBackoff)
		return checkResult{outcome: OutcomeError, err: err, notice: c.notice(pkg, failed, now)}
	}

	ok := &Record{DID: pkg.DID, Payload: payload, CheckedAt: now, ExpiresAt: now.Add(c.successTTL())}
	if err := c.Records.Put(ctx, ok); err != nil {
		slog.Warn("failed to cache update result", "did", pkg.DID, "error", err)
	}
	return c.compare(pkg, payload)
}

// fetchPayload builds the payload from the package's memoized metadata and
// latest release, fetching them on first use.
func (c *Checker) fetchPayload(ctx context.Context, pkg *registry.Package) (*Payload, error) {
	rel, err := pkg.Release(ctx, c.Source)
	if err != nil {
		return nil, err
	}
	meta, err := pkg.Metadata(ctx, c.Source)
	if err != nil {
		return nil, err
	}
	return BuildPayload(pkg, meta, rel, c.scorer()), nil
}

// compare applies the update rule: compatible and strictly newer.
func (c *Checker) compare(pkg *registry.Package, p *Payload) checkResult {
	res := checkResult{outcome: OutcomeNoUpdate, payload: p, remote: p.Version}
	if err := c.Requirements.Check(p.Requires); err != nil {
		slog.Debug("release not compatible", "did", pkg.DID, "version", p.Version, "reason", err)
		return res
	}
	if packages.IsNewer(p.Version, pkg.LocalVersion) {
		res.outcome = OutcomeUpdate
	}
	return res
}

func (c *Checker) notice(pkg *registry.Package, rec *Record, now time.Time) *Notice {
	retry := rec.RetryIn(now)
	return &Notice{
		DID:       pkg.DID,
		ErrorKind: rec.ErrorKind,
		RetryIn:   retry,
		Message:   fmt.Sprintf("Update checks for %s are paused after an error, retry in %s.", pkg.Slug(), humanize(retry)),
	}
}

// humanize renders a retry delay rounded to the minute.
func humanize(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h == 0:
		return plural(m, "minute")
	case m == 0:
		return plural(h, "hour")
	}
	return plural(h, "hour") + " " + plural(m, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Details returns the payload for the package whose API slug is slug, with
// or without the DID hash suffix. Cached results are used when fresh.
func (c *Checker) Details(ctx context.Context, kind registry.Kind, slug string) (*Payload, error) {
	pkg, ok := c.Registry.FindByAPISlug(ctx, kind, slug, c.Source)
	if !ok {
		return nil, fmt.Errorf("%w: no %s with slug %q", ErrPackageNotFound, kind, slug)
	}
	if rec, err := c.Records.Get(ctx, pkg.DID); err == nil && rec.Payload != nil {
		return rec.Payload, nil
	}
	return c.fetchPayload(ctx, pkg)
}

// ErrPackageNotFound is returned by Details for unknown slugs.
var ErrPackageNotFound = errors.New("package not found")
