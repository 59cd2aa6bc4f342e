package feedback

import (
	"regexp"
	"strings"
)

// Fields holds the three feedback sections extracted from a generated blob.
type Fields struct {
	Fluency    string `json:"fluency"`
	Vocabulary string `json:"vocabulary"`
	Grammar    string `json:"grammar"`
}

// markerRe locates a section marker: a known label at the start of a line,
// optionally preceded by decorative glyphs ("💬 Fluency", "**Vocabulary**"),
// with any trailing separator consumed so the content starts clean.
var markerRe = regexp.MustCompile(`(?im)^[^\pL\pN\n]*(fluency|vocabulary|grammar)\b[ \t]*[:：\-–—]*[ \t]*`)

type marker struct {
	start   int // first byte of the marker line decoration
	content int // first byte after the marker and its separator
}

// Extract splits generated feedback text into its three labeled sections.
//
// Each section runs from just after its marker to the start of the next
// found marker, or to the end of the text. Markers may be missing or out of
// order; a missing marker yields an empty field. When no marker is found at
// all the whole trimmed text is returned in Fluency so nothing is silently
// dropped. Extract never fails on malformed input.
func Extract(text string) Fields {
	matches := markerRe.FindAllStringSubmatchIndex(text, -1)

	found := make(map[string]marker, 3)
	for _, m := range matches {
		label := strings.ToLower(text[m[2]:m[3]])
		if _, ok := found[label]; !ok {
			found[label] = marker{start: m[0], content: m[1]}
		}
	}

	if len(found) == 0 {
		return Fields{Fluency: strings.TrimSpace(text)}
	}

	return Fields{
		Fluency:    section(text, "fluency", found),
		Vocabulary: section(text, "vocabulary", found),
		Grammar:    section(text, "grammar", found),
	}
}

func section(text, label string, found map[string]marker) string {
	m, ok := found[label]
	if !ok {
		return ""
	}
	end := len(text)
	for other, om := range found {
		if other == label {
			continue
		}
		if om.start >= m.content && om.start < end {
			end = om.start
		}
	}
	return strings.TrimSpace(text[m.content:end])
}
