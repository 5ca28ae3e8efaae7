package main

import (
	"net/url"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	slugLength = 8
	// used when a title has no letters or digits at all
	fallbackSlug = "error"
)

// Slug derives the short identifier for a title: lower-cased letters and
// digits only, truncated to eight characters. Collisions are not detected.
func Slug(title string) string {
	return truncate(sanitizeSlug(title), slugLength)
}

// sanitizeSlug folds Latin diacritics ("é" to "e") and keeps only lower-case
// letters and digits. Other scripts are kept as they are.
func sanitizeSlug(s string) string {
	folded, _, err := transform.String(diacriticFolder(), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// diacriticFolder strips combining diacritical marks (U+0300..U+036F).
// A transformer holds state, so each call gets its own.
func diacriticFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r >= 0x300 && r <= 0x36f
	})), norm.NFC)
}

// truncate keeps the first n runes of s
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// filenameSlug derives an identifier from the last path segment of a document
// URL, used for PDFs when the extracted title yields no slug
func filenameSlug(rawURL string) string {
	_, p := splitURL(rawURL)
	name := path.Base(p)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if ext := path.Ext(name); strings.EqualFold(ext, ".pdf") {
		name = strings.TrimSuffix(name, ext)
	}
	return sanitizeSlug(name)
}

// shortURL joins the short-link domain and a slug; an empty slug becomes the
// fallback slug so the link never ends in a bare "/"
func shortURL(domain, slug string) string {
	if slug == "" {
		slug = fallbackSlug
	}
	return strings.TrimRight(domain, "/") + "/" + slug
}
