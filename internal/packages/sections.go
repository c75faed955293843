package packages

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Section is one named block of package documentation (HTML).
type Section struct {
	ID      string
	Content string
}

// Sections keeps sections in document order. It decodes from and encodes to
// a JSON object.
type Sections []Section

// predefinedSectionOrder is the display order for well-known sections.
var predefinedSectionOrder = []string{
	"description",
	"installation",
	"faq",
	"screenshots",
	"changelog",
	"security",
	"reviews",
	"other_notes",
}

// UnmarshalJSON decodes an object, preserving key order.
func (s *Sections) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	delim, ok := tok.(json.Delim)
	if ok && delim == '[' && !dec.More() {
		// An empty JSON array is how some servers encode an empty map.
		*s = Sections{}
		return nil
	}
	if !ok || delim != '{' {
		return fmt.Errorf("sections: expected object, got %v", tok)
	}

	out := Sections{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("sections: expected string key, got %v", keyTok)
		}
		var content string
		if err := dec.Decode(&content); err != nil {
			return fmt.Errorf("sections: %s: %w", key, err)
		}
		out = append(out, Section{ID: key, Content: content})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

// MarshalJSON encodes the sections as an object in slice order.
func (s Sections) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sec := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(sec.ID)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(sec.Content)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the content of the section with the given id.
func (s Sections) Get(id string) (string, bool) {
	for _, sec := range s {
		if sec.ID == id {
			return sec.Content, true
		}
	}
	return "", false
}

// Ordered returns the well-known sections first, in their display order,
// followed by any other sections in document order.
func (s Sections) Ordered() Sections {
	out := make(Sections, 0, len(s))
	known := make(map[string]bool, len(predefinedSectionOrder))
	for _, id := range predefinedSectionOrder {
		known[id] = true
		if content, ok := s.Get(id); ok {
			out = append(out, Section{ID: id, Content: content})
		}
	}
	for _, sec := range s {
		if !known[sec.ID] {
			out = append(out, sec)
		}
	}
	return out
}

// SectionTitle returns the display title for a section id.
func SectionTitle(id string) string {
	switch id {
	case "faq":
		return "FAQ"
	case "other_notes":
		return "Other Notes"
	}
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
