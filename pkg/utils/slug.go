package utils

import (
	"regexp"
	"strings"
)

var nonSlug = regexp.MustCompile("[^a-z0-9]+")

// Slugify lowercases s and collapses anything that is not [a-z0-9] into hyphens.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = nonSlug.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
