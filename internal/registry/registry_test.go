package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/did"
	"github.com/fairpm/fair-go/internal/packages"
)

const (
	pluginDID = "did:plc:deoui6ztyx6paqajconl67rz"
	themeDID  = "did:web:themes.example.com"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type stubSource struct {
	mu    sync.Mutex
	docs  map[string]*packages.MetadataDocument
	err   error
	calls int
}

func (s *stubSource) FetchPackageMetadata(_ context.Context, id string) (*packages.MetadataDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return doc, nil
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestRegistry(t *testing.T) (*Registry, string, string) {
	t.Helper()
	root := t.TempDir()
	plugins := filepath.Join(root, "plugins")
	themes := filepath.Join(root, "themes")
	return New(plugins, themes), plugins, themes
}

// ---------------------------------------------------------------------------
// Register / lookups
// ---------------------------------------------------------------------------

func TestRegister_PluginPaths(t *testing.T) {
	reg, plugins, _ := newTestRegistry(t)
	path := writeFile(t, filepath.Join(plugins, "git-updater", "git-updater.php"), "<?php\n/*\n * Plugin Name: Git Updater\n * Version: 12.0.0\n */\n")

	pkg, err := reg.Register(KindPlugin, pluginDID, path)
	require.NoError(t, err)

	assert.Equal(t, "12.0.0", pkg.LocalVersion)
	assert.Equal(t, "git-updater", pkg.Slug())
	assert.Equal(t, "git-updater/git-updater.php", pkg.RelativePath())
	assert.Equal(t, did.Hash(pluginDID), pkg.DIDHash())

	got, ok := reg.Get(KindPlugin, pluginDID)
	require.True(t, ok)
	assert.Same(t, pkg, got)

	_, ok = reg.Get(KindTheme, pluginDID)
	assert.False(t, ok, "plugins and themes are disjoint")

	bySlug, ok := reg.GetBySlug(KindPlugin, "git-updater")
	require.True(t, ok)
	assert.Same(t, pkg, bySlug)

	byFile, ok := reg.GetByFile("git-updater/git-updater.php")
	require.True(t, ok)
	assert.Same(t, pkg, byFile)

	_, ok = reg.GetByFile("other/other.php")
	assert.False(t, ok)
}

func TestRegister_LoosePluginFile(t *testing.T) {
	reg, plugins, _ := newTestRegistry(t)
	path := writeFile(t, filepath.Join(plugins, "hello.php"), "<?php // Plugin Name: Hello\n")

	pkg, err := reg.Register(KindPlugin, pluginDID, path)
	require.NoError(t, err)
	assert.Equal(t, "hello", pkg.Slug())
	assert.Equal(t, "hello.php", pkg.RelativePath())
	assert.Empty(t, pkg.LocalVersion)
}

func TestRegister_ThemePaths(t *testing.T) {
	reg, _, themes := newTestRegistry(t)
	path := writeFile(t, filepath.Join(themes, "fair-theme", "style.css"), "/*\nTheme Name: Fair\nVersion: 1.2\n*/")

	pkg, err := reg.Register(KindTheme, themeDID, path)
	require.NoError(t, err)
	assert.Equal(t, "fair-theme", pkg.Slug())
	assert.Equal(t, "fair-theme", pkg.RelativePath())
	assert.Equal(t, "1.2", pkg.LocalVersion)
}

func TestRegister_InvalidDID(t *testing.T) {
	reg, plugins, _ := newTestRegistry(t)
	_, err := reg.Register(KindPlugin, "not-a-did", filepath.Join(plugins, "x.php"))
	assert.ErrorIs(t, err, apperr.ErrInvalidDID)
	assert.Equal(t, 0, reg.Len(KindPlugin))
}

func TestRegister_ReplacesExisting(t *testing.T) {
	reg, plugins, _ := newTestRegistry(t)
	first, err := reg.Register(KindPlugin, pluginDID, filepath.Join(plugins, "a", "a.php"))
	require.NoError(t, err)
	second, err := reg.Register(KindPlugin, pluginDID, filepath.Join(plugins, "b", "b.php"))
	require.NoError(t, err)

	got, _ := reg.Get(KindPlugin, pluginDID)
	assert.NotSame(t, first, got)
	assert.Same(t, second, got)
	assert.Equal(t, 1, reg.Len(KindPlugin))
}

func TestAll_SortedAndReset(t *testing.T) {
	reg, plugins, _ := newTestRegistry(t)
	ids := []string{"did:plc:zzz", "did:plc:aaa", "did:plc:mmm"}
	for _, id := range ids {
		_, err := reg.Register(KindPlugin, id, filepath.Join(plugins, id[8:], "p.php"))
		require.NoError(t, err)
	}

	all := reg.All(KindPlugin)
	require.Len(t, all, 3)
	assert.Equal(t, "did:plc:aaa", all[0].DID)
	assert.Equal(t, "did:plc:mmm", all[1].DID)
	assert.Equal(t, "did:plc:zzz", all[2].DID)

	reg.Reset()
	assert.Empty(t, reg.All(KindPlugin))
	assert.Equal(t, 0, reg.Len(KindTheme))
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	reg, plugins, _ := newTestRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "did:plc:p" + string(rune('a'+i))
			_, _ = reg.Register(KindPlugin, id, filepath.Join(plugins, "p", "p.php"))
			reg.All(KindPlugin)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, reg.Len(KindPlugin))
}

// ---------------------------------------------------------------------------
// Metadata / Release memoization
// ---------------------------------------------------------------------------

func TestPackage_MetadataMemoizedOnSuccessOnly(t *testing.T) {
	reg, plugins, _ := newTestRegistry(t)
	pkg, err := reg.Register(KindPlugin, pluginDID, filepath.Join(plugins, "p", "p.php"))
	require.NoError(t, err)

	src := &stubSource{err: errors.New("temporarily down")}
	_, err = pkg.Metadata(context.Background(), src)
	require.Error(t, err)
	_, err = pkg.Metadata(context.Background(), src)
	require.Error(t, err)
	assert.Equal(t, 2, src.calls, "errors must not be memoized")

	src.err = nil
	src.docs = map[string]*packages.MetadataDocument{pluginDID: {ID: pluginDID, Slug: "p"}}
	for i := 0; i < 3; i++ {
		meta, err := pkg.Metadata(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, "p", meta.Slug)
	}
	assert.Equal(t, 3, src.calls, "success is memoized")

	pkg.Forget()
	_, err = pkg.Metadata(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 4, src.calls)
}

func TestPackage_ReleaseIsHighestVersion(t *testing.T) {
	reg, plugins, _ := newTestRegistry(t)
	pkg, err := reg.Register(KindPlugin, pluginDID, filepath.Join(plugins, "p", "p.php"))
	require.NoError(t, err)

	src := &stubSource{docs: map[string]*packages.MetadataDocument{
		pluginDID: {ID: pluginDID, Releases: []packages.ReleaseDocument{
			{Version: "1.0.0"}, {Version: "1.10.0"}, {Version: "1.9.0"},
		}},
	}}
	rel, err := pkg.Release(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", rel.Version)

	_, err = pkg.Release(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestPackage_ReleaseNoReleases(t *testing.T) {
	reg, plugins, _ := newTestRegistry(t)
	pkg, err := reg.Register(KindPlugin, pluginDID, filepath.Join(plugins, "p", "p.php"))
	require.NoError(t, err)

	src := &stubSource{docs: map[string]*packages.MetadataDocument{pluginDID: {ID: pluginDID}}}
	_, err = pkg.Release(context.Background(), src)
	assert.ErrorIs(t, err, apperr.ErrNoReleases)
}

// ---------------------------------------------------------------------------
// FindByAPISlug
// ---------------------------------------------------------------------------

func TestFindByAPISlug(t *testing.T) {
	reg, plugins, _ := newTestRegistry(t)
	pkg, err := reg.Register(KindPlugin, pluginDID, filepath.Join(plugins, "git-updater", "git-updater.php"))
	require.NoError(t, err)
	_, err = reg.Register(KindPlugin, "did:plc:broken", filepath.Join(plugins, "broken", "broken.php"))
	require.NoError(t, err)

	src := &stubSource{docs: map[string]*packages.MetadataDocument{
		pluginDID: {ID: pluginDID, Slug: "git-updater"},
	}}
	ctx := context.Background()

	got, ok := reg.FindByAPISlug(ctx, KindPlugin, "git-updater", src)
	require.True(t, ok)
	assert.Same(t, pkg, got)

	got, ok = reg.FindByAPISlug(ctx, KindPlugin, "git-updater-"+did.Hash(pluginDID), src)
	require.True(t, ok)
	assert.Same(t, pkg, got)

	_, ok = reg.FindByAPISlug(ctx, KindPlugin, "git-updater-000000", src)
	assert.False(t, ok)
	_, ok = reg.FindByAPISlug(ctx, KindPlugin, "", src)
	assert.False(t, ok)
	_, ok = reg.FindByAPISlug(ctx, KindTheme, "git-updater", src)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Kind
// ---------------------------------------------------------------------------

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"plugin": KindPlugin, "Plugins": KindPlugin, "theme": KindTheme, " themes ": KindTheme} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseKind("widget")
	assert.Error(t, err)

	assert.Equal(t, packages.TypePlugin, KindPlugin.PackageType())
	assert.Equal(t, packages.TypeTheme, KindTheme.PackageType())
	k, ok := KindForType(packages.TypeTheme)
	assert.True(t, ok)
	assert.Equal(t, KindTheme, k)
	_, ok = KindForType("wp-core")
	assert.False(t, ok)
}
