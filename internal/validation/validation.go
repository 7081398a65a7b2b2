// Package validation recognizes video URLs and identifiers.
package validation

import (
	"regexp"
	"strings"
)

var videoIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// urlShapes are tried in priority order: watch page, short link, embed,
// legacy /v/. They are unanchored so any scheme or subdomain (www., m.,
// music.) is accepted, and each capture stops at the shape's delimiter.
var urlShapes = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/watch\?v=([^&]+)`),
	regexp.MustCompile(`youtu\.be/([^?]+)`),
	regexp.MustCompile(`youtube\.com/embed/([^?]+)`),
	regexp.MustCompile(`youtube\.com/v/([^?]+)`),
}

// ExtractVideoID returns the identifier encoded in rawURL and true, or ""
// and false when rawURL matches none of the recognized shapes.
func ExtractVideoID(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}

	for _, shape := range urlShapes {
		if m := shape.FindStringSubmatch(rawURL); m != nil && m[1] != "" {
			return m[1], true
		}
	}

	return "", false
}

// IsValidVideoID reports whether id has the canonical 11 character shape.
func IsValidVideoID(id string) bool {
	return videoIDRegex.MatchString(id)
}

// CanonicalURL returns the watch page URL for an identifier.
func CanonicalURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
