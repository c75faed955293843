// Package headers reads the comment headers WordPress uses to describe
// plugins and themes ("Plugin Name: Foo"). Only the start of a file is read.
package headers

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
)

// MaxBytes is how much of a file is searched for headers.
const MaxBytes = 8 << 10

// Header names.
const (
	PluginName  = "Plugin Name"
	PluginID    = "Plugin ID"
	ThemeName   = "Theme Name"
	ThemeID     = "Theme ID"
	PackageID   = "Package ID"
	Version     = "Version"
	Template    = "Template"
	RequiresWP  = "Requires at least"
	RequiresPHP = "Requires PHP"
	TextDomain  = "Text Domain"
	UpdateURI   = "Update URI"
	Author      = "Author"
	Description = "Description"
)

// Plugin lists the headers read from plugin main files.
var Plugin = []string{PluginName, PluginID, PackageID, Version, RequiresWP, RequiresPHP, TextDomain, UpdateURI, Author, Description}

// Theme lists the headers read from a theme's style.css.
var Theme = []string{ThemeName, ThemeID, PackageID, Version, Template, RequiresWP, RequiresPHP, TextDomain, UpdateURI, Author, Description}

var (
	patternsMu sync.Mutex
	patterns   = map[string]*regexp.Regexp{}
)

func pattern(name string) *regexp.Regexp {
	patternsMu.Lock()
	defer patternsMu.Unlock()
	re, ok := patterns[name]
	if !ok {
		re = regexp.MustCompile(`(?im)^(?:[ \t]*<\?php)?[ \t/*#@]*` + regexp.QuoteMeta(name) + `:(.*)$`)
		patterns[name] = re
	}
	return re
}

// Data maps header names to values. Missing headers are absent.
type Data map[string]string

// Get returns the value of a header, or "".
func (d Data) Get(name string) string { return d[name] }

// Parse extracts the named headers from content. Matching is
// case-insensitive and the first occurrence wins.
func Parse(content string, names ...string) Data {
	content = strings.ReplaceAll(content, "\r", "\n")
	out := Data{}
	for _, name := range names {
		m := pattern(name).FindStringSubmatch(content)
		if m == nil {
			continue
		}
		if v := cleanup(m[1]); v != "" {
			out[name] = v
		}
	}
	return out
}

// cleanup strips a trailing comment or PHP close tag.
func cleanup(v string) string {
	if i := strings.Index(v, "*/"); i >= 0 {
		v = v[:i]
	}
	if i := strings.Index(v, "?>"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// Read parses headers from the first MaxBytes of r.
func Read(r io.Reader, names ...string) (Data, error) {
	buf, err := io.ReadAll(io.LimitReader(r, MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}
	return Parse(string(buf), names...), nil
}

// ReadFile parses headers from the file at path.
func ReadFile(path string, names ...string) (Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, names...)
}

// PackageDID returns the DID a package declares, preferring the kind
// specific header over the generic Package ID.
func (d Data) PackageDID() string {
	for _, name := range []string{PluginID, ThemeID, PackageID} {
		if v := d[name]; v != "" {
			return v
		}
	}
	return ""
}
