package packages

import (
	"slices"
	"strings"
)

// DefaultLocale is used when no locale is configured.
const DefaultLocale = "en_US"

// LanguagePriorityList returns the language tags to prefer for locale,
// best first. Matching follows RFC 4647 lookup with two changes: "_" is
// treated as "-", and the primary subtag doubled (de -> de-de) is tried
// after the truncated prefixes. en-us and en always close the list.
func LanguagePriorityList(locale string) []string {
	if locale == "" {
		locale = DefaultLocale
	}
	locale = strings.ToLower(strings.ReplaceAll(locale, "_", "-"))

	langs := []string{locale}
	for i := len(locale); ; {
		i = strings.LastIndex(locale[:i], "-")
		if i <= 0 {
			break
		}
		// Skip a truncation that would end on the private-use singleton.
		if locale[i-1] == 'x' && (i == 1 || locale[i-2] == '-') {
			continue
		}
		langs = append(langs, locale[:i])
	}

	primary, _, _ := strings.Cut(locale, "-")
	langs = append(langs, primary+"-"+primary, "en-us", "en")
	return dedupe(langs)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ArtifactScorer ranks artifacts; higher is better.
type ArtifactScorer interface {
	Score(a Artifact) int
}

// LangScorer scores artifacts by the position of their language in a
// priority list. Unlisted languages score 0.
type LangScorer struct {
	langs []string
	index map[string]int
}

// NewLangScorer builds a scorer for locale.
func NewLangScorer(locale string) *LangScorer {
	langs := LanguagePriorityList(locale)
	idx := make(map[string]int, len(langs))
	for i, l := range langs {
		idx[l] = i
	}
	return &LangScorer{langs: langs, index: idx}
}

// Languages returns the priority list the scorer uses.
func (s *LangScorer) Languages() []string { return slices.Clone(s.langs) }

// Score returns (len - idx) * 100 for a listed language.
func (s *LangScorer) Score(a Artifact) int {
	i, ok := s.index[strings.ToLower(strings.ReplaceAll(a.Lang, "_", "-"))]
	if !ok {
		return 0
	}
	return (len(s.langs) - i) * 100
}

// PickArtifact returns the best scoring artifact. On a tie the earlier
// artifact wins. It returns nil only for an empty list.
func PickArtifact(artifacts []Artifact, scorer ArtifactScorer) *Artifact {
	if len(artifacts) == 0 {
		return nil
	}
	best, bestScore := 0, scorer.Score(artifacts[0])
	for i := 1; i < len(artifacts); i++ {
		if s := scorer.Score(artifacts[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	a := artifacts[best]
	return &a
}

// PickArtifactByLang is PickArtifact with a LangScorer for locale.
func PickArtifactByLang(artifacts []Artifact, locale string) *Artifact {
	return PickArtifact(artifacts, NewLangScorer(locale))
}

// Size is an image size in pixels.
type Size struct {
	Width  int
	Height int
}

// Banner sizes.
var (
	BannerRegular = Size{Width: 772, Height: 250}
	BannerHighRes = Size{Width: 1544, Height: 500}
)

// Icon sizes.
var (
	IconRegular = Size{Width: 128, Height: 128}
	IconHighRes = Size{Width: 256, Height: 256}
)

// ImageVariant holds the URLs chosen for a regular and a high resolution
// display. Either may be empty.
type ImageVariant struct {
	URL        string `json:"url,omitempty"`
	HighResURL string `json:"high_res_url,omitempty"`
	SVGURL     string `json:"svg_url,omitempty"`
}

// IsEmpty reports whether no variant was found.
func (v ImageVariant) IsEmpty() bool {
	return v.URL == "" && v.HighResURL == "" && v.SVGURL == ""
}

// PickImageVariant selects artifacts whose dimensions match regular and
// highRes exactly. The first match for each size wins.
func PickImageVariant(artifacts []Artifact, regular, highRes Size) ImageVariant {
	var v ImageVariant
	for _, a := range artifacts {
		switch {
		case v.URL == "" && a.Width == regular.Width && a.Height == regular.Height:
			v.URL = a.URL
		case v.HighResURL == "" && a.Width == highRes.Width && a.Height == highRes.Height:
			v.HighResURL = a.URL
		}
	}
	return v
}

// PickBanners selects the regular and high resolution banners.
func PickBanners(artifacts []Artifact) ImageVariant {
	return PickImageVariant(artifacts, BannerRegular, BannerHighRes)
}

// PickIcons selects icons by size and additionally records the first SVG
// icon, which fits any size.
func PickIcons(artifacts []Artifact) ImageVariant {
	v := PickImageVariant(artifacts, IconRegular, IconHighRes)
	for _, a := range artifacts {
		if a.ContentType == "image/svg+xml" {
			v.SVGURL = a.URL
			break
		}
	}
	return v
}
