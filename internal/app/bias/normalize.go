package bias

import (
	"regexp"
	"strings"

	"github.com/osa030/dynbox/internal/domain/track"
)

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}

	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
		regexp.MustCompile(`\s*-\s*live\b.*$`),         // "- Live at Wembley"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}

	spaces = regexp.MustCompile(`\s+`)
)

// normalizeTrackName strips remaster and version decorations so that
// different releases of one recording compare equal.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = spaces.ReplaceAllString(normalized, " ")

	return strings.TrimRight(normalized, " -")
}

// isSameArtist reports whether two tracks share their main artist.
func isSameArtist(t1, t2 track.Track) bool {
	if len(t1.Artists) == 0 || len(t2.Artists) == 0 {
		return false
	}
	return strings.EqualFold(t1.Artists[0], t2.Artists[0])
}

// songKey identifies a song independently of its release.
func songKey(t *track.Track) string {
	return nameKey(t.MainArtist(), t.Name)
}

// nameKey identifies a song by loosely written artist and title, as
// returned by external services.
func nameKey(artist, title string) string {
	return strings.ToLower(strings.TrimSpace(artist)) + "\x00" + normalizeTrackName(title)
}
