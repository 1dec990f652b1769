package retrieval

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
)

// captionTrack mirrors one entry of the watch page's captionTracks array.
type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	// Kind is "asr" for auto-generated tracks, empty for manual ones.
	Kind string `json:"kind"`
}

const captionTracksMarker = `"captionTracks":`

// extractCaptionTracks locates the captionTracks JSON array embedded in the
// watch page HTML. A page without the marker has no captions at all; that is
// reported as zero tracks, not an error.
func extractCaptionTracks(body []byte) ([]captionTrack, error) {
	idx := strings.Index(string(body), captionTracksMarker)
	if idx < 0 {
		return nil, nil
	}
	rest := string(body)[idx+len(captionTracksMarker):]
	raw, err := balancedArray(rest)
	if err != nil {
		return nil, err
	}
	var tracks []captionTrack
	if err := json.Unmarshal([]byte(raw), &tracks); err != nil {
		return nil, fmt.Errorf("unmarshal caption tracks: %w", err)
	}
	return tracks, nil
}

// balancedArray returns the leading JSON array of s by bracket matching,
// skipping brackets inside string literals.
func balancedArray(s string) (string, error) {
	if len(s) == 0 || s[0] != '[' {
		return "", fmt.Errorf("caption tracks marker not followed by array")
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[:i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated caption tracks array")
}

// selectTrack picks the best caption track: the first preferred language with
// a manual track wins, then the first preferred language at all, then any
// manual track, then whatever is left.
func selectTrack(tracks []captionTrack, languages []string) (captionTrack, bool) {
	if len(tracks) == 0 {
		return captionTrack{}, false
	}
	for _, lang := range languages {
		var langMatch *captionTrack
		for i := range tracks {
			if !strings.HasPrefix(tracks[i].LanguageCode, lang) {
				continue
			}
			if tracks[i].Kind != "asr" {
				return tracks[i], true
			}
			if langMatch == nil {
				langMatch = &tracks[i]
			}
		}
		if langMatch != nil {
			return *langMatch, true
		}
	}
	for i := range tracks {
		if tracks[i].Kind != "asr" {
			return tracks[i], true
		}
	}
	return tracks[0], true
}

type timedText struct {
	Texts []timedTextLine `xml:"text"`
}

type timedTextLine struct {
	Value string `xml:",chardata"`
}

// parseTimedText flattens a timedtext XML document into one plain-text
// transcript. YouTube double-escapes entities, so lines are unescaped once
// more after XML decoding.
func parseTimedText(body []byte) (string, error) {
	var doc timedText
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("unmarshal timedtext: %w", err)
	}
	parts := make([]string, 0, len(doc.Texts))
	for _, line := range doc.Texts {
		text := strings.TrimSpace(html.UnescapeString(line.Value))
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " "), nil
}
