package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/headers"
	"github.com/fairpm/fair-go/internal/registry"
)

// Shape is what validation found in an unpacked package.
type Shape struct {
	Name string
	// DID is the DID declared in the package's headers, if any.
	DID string
	// MainFile is the plugin main file or the theme stylesheet.
	MainFile string
}

// blockThemeTemplates are the files that make a theme without a Template
// header usable.
var blockThemeTemplates = []string{
	"index.php",
	filepath.Join("templates", "index.html"),
	filepath.Join("block-templates", "index.html"),
}

// ValidateSource checks that dir holds a package of the given kind.
func ValidateSource(kind registry.Kind, dir string) (*Shape, error) {
	switch kind {
	case registry.KindPlugin:
		return validatePlugin(dir)
	case registry.KindTheme:
		return validateTheme(dir)
	}
	return nil, fmt.Errorf("%w: unsupported package kind %q", apperr.ErrIncompatibleArchive, kind)
}

// validatePlugin requires a top-level .php file with a Plugin Name header.
// Files are tried in name order.
func validatePlugin(dir string) (*Shape, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrIncompatibleArchive, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".php") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		path := filepath.Join(dir, name)
		data, err := headers.ReadFile(path, headers.Plugin...)
		if err != nil {
			continue
		}
		if n := data.Get(headers.PluginName); n != "" {
			return &Shape{Name: n, DID: data.PackageDID(), MainFile: path}, nil
		}
	}
	return nil, fmt.Errorf("%w: no valid plugins were found", apperr.ErrIncompatibleArchive)
}

// validateTheme requires style.css with a Theme Name header, and either a
// Template header (child theme) or one of the index templates.
func validateTheme(dir string) (*Shape, error) {
	stylesheet := filepath.Join(dir, registry.ThemeStylesheet)
	if _, err := os.Stat(stylesheet); err != nil {
		return nil, fmt.Errorf("%w: the theme is missing the %s stylesheet", apperr.ErrIncompatibleArchive, registry.ThemeStylesheet)
	}
	data, err := headers.ReadFile(stylesheet, headers.Theme...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrIncompatibleArchive, err)
	}
	name := data.Get(headers.ThemeName)
	if name == "" {
		return nil, fmt.Errorf("%w: the %s stylesheet does not contain a valid theme header", apperr.ErrIncompatibleArchive, registry.ThemeStylesheet)
	}

	if data.Get(headers.Template) == "" && !hasAny(dir, blockThemeTemplates) {
		return nil, fmt.Errorf("%w: the theme is missing the index template (index.php, templates/index.html or block-templates/index.html)", apperr.ErrIncompatibleArchive)
	}
	return &Shape{Name: name, DID: data.PackageDID(), MainFile: stylesheet}, nil
}

func hasAny(dir string, rel []string) bool {
	for _, r := range rel {
		if info, err := os.Stat(filepath.Join(dir, r)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}
