package packages

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairpm/fair-go/internal/apperr"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/metadata.json")
	require.NoError(t, err)
	return data
}

func TestParseMetadata_Fixture(t *testing.T) {
	doc, err := ParseMetadata(loadFixture(t))
	require.NoError(t, err)

	assert.Equal(t, "did:plc:deoui6ztyx6paqajconl67rz", doc.ID)
	assert.Equal(t, TypePlugin, doc.Type)
	assert.Equal(t, "git-updater", doc.Slug)
	assert.Equal(t, "MIT", doc.License)
	assert.Equal(t, []string{"updates", "git"}, doc.Keywords)
	require.Len(t, doc.Authors, 1)
	assert.Equal(t, "Andy Fragen", doc.Authors[0].Name)
	require.Len(t, doc.Releases, 3)
	assert.Equal(t, "12.0.0", doc.Releases[0].Version)
	assert.Equal(t, ">=6.0", doc.Releases[0].Requires["env:wp"])
	assert.Len(t, doc.Releases[0].Artifacts.Package, 2)
	assert.Equal(t, "de-DE", doc.Releases[0].Artifacts.Package[1].Lang)
	assert.Equal(t, "image/svg+xml", doc.Releases[0].Artifacts.Icon[2].ContentType)

	ids := make([]string, 0, len(doc.Sections))
	for _, s := range doc.Sections {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"changelog", "description", "custom_tab", "faq"}, ids, "document order is preserved")
}

func TestParseMetadata_MandatoryFields(t *testing.T) {
	for _, field := range []string{"id", "type", "license", "authors", "security"} {
		t.Run("missing "+field, func(t *testing.T) {
			var m map[string]any
			require.NoError(t, json.Unmarshal(loadFixture(t), &m))
			delete(m, field)
			data, _ := json.Marshal(m)

			_, err := ParseMetadata(data)
			require.ErrorIs(t, err, ErrMissingField)
			assert.ErrorIs(t, err, apperr.ErrMetadataInvalid)
			assert.Contains(t, err.Error(), field)
		})
		t.Run("null "+field, func(t *testing.T) {
			var m map[string]any
			require.NoError(t, json.Unmarshal(loadFixture(t), &m))
			m[field] = nil
			data, _ := json.Marshal(m)

			_, err := ParseMetadata(data)
			assert.ErrorIs(t, err, ErrMissingField)
		})
	}
}

func TestParseMetadata_OptionalFieldsMayBeAbsent(t *testing.T) {
	data := `{"id":"did:plc:abc","type":"wp-theme","license":"GPL-2.0","authors":[],"security":[],
		"releases":[{"version":"1.0.0","artifacts":{}}]}`
	doc, err := ParseMetadata([]byte(data))
	require.NoError(t, err)
	assert.Empty(t, doc.Name)
	assert.Empty(t, doc.Slug)
	assert.Empty(t, doc.Sections)
}

func TestParseMetadata_Releases(t *testing.T) {
	base := `{"id":"did:plc:abc","type":"wp-plugin","license":"MIT","authors":[],"security":[]`

	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"no releases key", base + `}`, ErrMissingReleases},
		{"empty releases", base + `,"releases":[]}`, ErrMissingReleases},
		{"release missing version", base + `,"releases":[{"artifacts":{}}]}`, ErrMissingField},
		{"second release missing artifacts", base + `,"releases":[{"version":"1","artifacts":{}},{"version":"2"}]}`, ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetadata([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseMetadata_InvalidJSON(t *testing.T) {
	for _, in := range []string{"", "{", "null", "[]", `"string"`} {
		_, err := ParseMetadata([]byte(in))
		if !errors.Is(err, apperr.ErrMetadataInvalid) {
			t.Errorf("ParseMetadata(%q) error = %v, want ErrMetadataInvalid", in, err)
		}
	}
}

func TestParseMetadata_WrongFieldType(t *testing.T) {
	data := strings.Replace(string(loadFixture(t)), `"license": "MIT"`, `"license": 42`, 1)
	_, err := ParseMetadata([]byte(data))
	assert.ErrorIs(t, err, apperr.ErrMetadataInvalid)
}

func TestLastUpdated(t *testing.T) {
	doc := &MetadataDocument{}
	_, ok := doc.LastUpdated()
	assert.False(t, ok)

	doc.Headers = http.Header{}
	doc.Headers.Set("Last-Modified", "Wed, 21 Oct 2026 07:28:00 GMT")
	got, ok := doc.LastUpdated()
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2026, 10, 21, 7, 28, 0, 0, time.UTC)), "got %v", got)
}
