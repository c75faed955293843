// Package installer runs the DID-addressed install flow: resolve the DID,
// require signing keys, fetch metadata, pick a release and artifact, download,
// optionally verify the signature, unpack, validate the package shape and
// environment requirements, then move the package into place.
//
// Each step is a state transition. The run stops at the first failing step,
// enters StateFailed, and always cleans up its temp files.
package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/did"
	"github.com/fairpm/fair-go/internal/packages"
	"github.com/fairpm/fair-go/internal/registry"
	"github.com/fairpm/fair-go/internal/signing"
	"github.com/fairpm/fair-go/internal/telemetry"
	"github.com/fairpm/fair-go/pkg/checksum"
)

// State is a step of the install flow.
type State string

const (
	StateInit              State = "init"
	StateKeysResolved      State = "keys_resolved"
	StateMetadataFetched   State = "metadata_fetched"
	StateReleaseSelected   State = "release_selected"
	StateDownloaded        State = "downloaded"
	StateSignatureVerified State = "signature_verified"
	StateUnpacked          State = "unpacked"
	StateValidated         State = "validated"
	StateInstalled         State = "installed"
	StateFailed            State = "failed"
)

// ArchiveInstaller moves bytes: download, unpack, move into place, clean up.
// *archive.HTTPInstaller is the default implementation.
type ArchiveInstaller interface {
	// Download fetches url into a local file and returns its path.
	Download(ctx context.Context, url string) (string, error)
	// Unpack extracts the archive. It returns the package source directory
	// and the extraction root to clean up.
	Unpack(ctx context.Context, archivePath string) (source, root string, err error)
	// Move installs source at dest. It fails with apperr.ErrDestinationExists
	// when dest is present.
	Move(source, dest string) error
	// Cleanup removes temp paths. Empty paths are ignored.
	Cleanup(paths ...string)
}

// MetadataFetcher fetches the metadata document named by a resolved DID
// Document. *packages.Fetcher satisfies it.
type MetadataFetcher interface {
	FetchForDocument(ctx context.Context, doc *did.Document) (*packages.MetadataDocument, error)
}

// Event is one state transition.
type Event struct {
	RunID string
	DID   string
	From  State
	To    State
	Err   error
	At    time.Time
}

// Observer is notified of every transition.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Options controls optional steps and install targets.
type Options struct {
	VerifySignatures   bool
	RequireSigningKeys bool
	VerifyEmbeddedDID  bool
	PluginsDir         string
	ThemesDir          string
}

// Result describes a finished install run.
type Result struct {
	RunID       string
	DID         string
	Kind        registry.Kind
	Version     string
	Slug        string
	Destination string
	Artifact    packages.Artifact
	// Signature is nil when verification was not run.
	Signature *signing.Result
	// States lists every state entered, in order.
	States []State
}

// Installer runs installs. Documents, Metadata, Archives and Requirements are
// required; Scorer defaults to the en_US language scorer.
type Installer struct {
	Documents    packages.DocumentSource
	Metadata     MetadataFetcher
	Archives     ArchiveInstaller
	Requirements packages.RequirementChecker
	Scorer       packages.ArtifactScorer
	Observer     Observer
	// Registry, when set, receives the installed package.
	Registry *registry.Registry
	Options  Options
}

// run carries the state of one install.
type run struct {
	inst   *Installer
	result *Result
	state  State
	temps  []string
}

func (r *run) enter(s State) {
	from := r.state
	r.state = s
	r.result.States = append(r.result.States, s)
	slog.Debug("install state", "run_id", r.result.RunID, "did", r.result.DID, "from", from, "to", s)
	r.notify(from, s, nil)
}

func (r *run) fail(err error) error {
	from := r.state
	r.state = StateFailed
	r.result.States = append(r.result.States, StateFailed)
	r.notify(from, StateFailed, err)
	return err
}

func (r *run) notify(from, to State, err error) {
	if r.inst.Observer == nil {
		return
	}
	r.inst.Observer.Observe(Event{
		RunID: r.result.RunID,
		DID:   r.result.DID,
		From:  from,
		To:    to,
		Err:   err,
		At:    time.Now(),
	})
}

// Install installs the package id at version, or the latest release when
// version is empty. On failure the returned Result still carries the states
// entered.
func (i *Installer) Install(ctx context.Context, id, version string) (*Result, error) {
	r := &run{
		inst:   i,
		result: &Result{RunID: uuid.NewString(), DID: id},
		state:  StateInit,
	}
	r.result.States = append(r.result.States, StateInit)
	defer func() { i.Archives.Cleanup(r.temps...) }()

	err := i.install(ctx, r, version)

	kind := string(r.result.Kind)
	if kind == "" {
		kind = "unknown"
	}
	telemetry.InstallsTotal.WithLabelValues(kind, apperr.Kind(err)).Inc()

	if err != nil {
		slog.Error("install failed", "run_id", r.result.RunID, "did", id, "state", prevState(r.result.States), "error", err)
		return r.result, r.fail(err)
	}
	slog.Info("package installed", "run_id", r.result.RunID, "did", id,
		"version", r.result.Version, "destination", r.result.Destination)
	return r.result, nil
}

func (i *Installer) install(ctx context.Context, r *run, version string) error {
	parsed, err := did.Parse(r.result.DID)
	if err != nil {
		return err
	}

	doc, err := i.Documents.Get(ctx, parsed.String())
	if err != nil {
		return err
	}
	keys := doc.SigningKeys()
	if len(keys) == 0 {
		return fmt.Errorf("%w: %s", apperr.ErrNoSigningKeys, parsed)
	}
	r.enter(StateKeysResolved)

	meta, err := i.Metadata.FetchForDocument(ctx, doc)
	if err != nil {
		return err
	}
	if meta.ID != parsed.String() {
		return fmt.Errorf("%w: metadata id %q", apperr.ErrDIDMismatch, meta.ID)
	}
	kind, ok := registry.KindForType(meta.Type)
	if !ok {
		return fmt.Errorf("%w: unsupported package type %q", apperr.ErrMetadataInvalid, meta.Type)
	}
	r.result.Kind = kind
	r.enter(StateMetadataFetched)

	release := packages.PickRelease(meta.Releases, version)
	if release == nil {
		if version != "" {
			return fmt.Errorf("%w: version %s of %s", apperr.ErrNoReleases, version, parsed)
		}
		return fmt.Errorf("%w: %s", apperr.ErrNoReleases, parsed)
	}
	artifact := packages.PickArtifact(release.Artifacts.Package, i.scorer())
	if artifact == nil {
		return fmt.Errorf("%w: release %s has no package artifact", apperr.ErrNoReleases, release.Version)
	}
	r.result.Version = release.Version
	r.result.Artifact = *artifact
	r.enter(StateReleaseSelected)

	archivePath, err := i.Archives.Download(ctx, artifact.URL)
	if err != nil {
		return err
	}
	r.temps = append(r.temps, archivePath)
	if err := verifyChecksum(archivePath, artifact.Checksum); err != nil {
		return err
	}
	r.enter(StateDownloaded)

	if i.Options.VerifySignatures {
		verifier := signing.NewVerifier(keys, signing.Policy{RequireKeys: i.Options.RequireSigningKeys})
		res, err := verifier.VerifyFile(archivePath, artifact.Signature)
		if err != nil {
			return err
		}
		r.result.Signature = res
		r.enter(StateSignatureVerified)
	}

	source, root, err := i.Archives.Unpack(ctx, archivePath)
	if root != "" {
		r.temps = append(r.temps, root)
	}
	if err != nil {
		return err
	}
	r.enter(StateUnpacked)

	shape, err := ValidateSource(kind, source)
	if err != nil {
		return err
	}
	if i.Options.VerifyEmbeddedDID && shape.DID != parsed.String() {
		if shape.DID == "" {
			return fmt.Errorf("%w: package declares no DID header", apperr.ErrDIDMismatch)
		}
		return fmt.Errorf("%w: package declares %s", apperr.ErrDIDMismatch, shape.DID)
	}
	if err := i.Requirements.Check(release.Requires); err != nil {
		return err
	}
	r.enter(StateValidated)

	slug := PackageSlug(meta)
	dest := filepath.Join(i.dir(kind), slug+"-"+parsed.Hash())
	if err := i.Archives.Move(source, dest); err != nil {
		return err
	}
	r.result.Slug = slug
	r.result.Destination = dest

	if i.Registry != nil {
		mainFile := filepath.Join(dest, filepath.Base(shape.MainFile))
		if _, err := i.Registry.Register(kind, parsed.String(), mainFile); err != nil {
			slog.Warn("installed package not registered", "did", parsed, "error", err)
		}
	}
	r.enter(StateInstalled)
	return nil
}

// verifyChecksum checks the archive against the artifact's declared digest.
// Digests in algorithms other than sha256 are skipped.
func verifyChecksum(path, expected string) error {
	if expected == "" {
		return nil
	}
	ok, err := checksum.VerifyFile(path, expected)
	switch {
	case errors.Is(err, checksum.ErrUnsupportedAlgorithm):
		slog.Warn("skipping archive checksum", "checksum", expected, "error", err)
		return nil
	case err != nil:
		return fmt.Errorf("%w: %v", apperr.ErrIncompatibleArchive, err)
	case !ok:
		return fmt.Errorf("%w: archive checksum does not match %s", apperr.ErrIncompatibleArchive, expected)
	}
	return nil
}

func (i *Installer) scorer() packages.ArtifactScorer {
	if i.Scorer != nil {
		return i.Scorer
	}
	return packages.NewLangScorer(packages.DefaultLocale)
}

func (i *Installer) dir(kind registry.Kind) string {
	if kind == registry.KindTheme {
		return i.Options.ThemesDir
	}
	return i.Options.PluginsDir
}

func prevState(states []State) State {
	if len(states) == 0 {
		return StateInit
	}
	return states[len(states)-1]
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// PackageSlug returns the directory slug for a package: the metadata slug,
// else its sanitized name, else "package".
func PackageSlug(meta *packages.MetadataDocument) string {
	for _, s := range []string{meta.Slug, meta.Name} {
		s = strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-"), "-")
		if s != "" {
			return s
		}
	}
	return "package"
}
