package main

import (
	"net/url"
	"regexp"
	"strings"
)

// doiPattern matches a DOI-shaped substring anywhere in a URL
var doiPattern = regexp.MustCompile(`10\.\d{4,}/[-._;()/:\w]+`)

// videoHosts is the set of video-platform domains, matched on host suffix
var videoHosts = []string{"youtube.com", "youtu.be", "youtube-nocookie.com"}

// doiHosts are DOI resolvers
var doiHosts = []string{"doi.org"}

// Classify selects the source type of a URL from its scheme, host and path
// alone. It never performs I/O and always returns a type; rule order matters.
func Classify(rawURL string) SourceType {
	host, path := splitURL(rawURL)

	switch {
	case matchesHost(host, videoHosts):
		return SourceYouTube
	case strings.HasSuffix(strings.ToLower(path), ".pdf"):
		return SourcePDF
	case matchesHost(host, doiHosts) || doiPattern.MatchString(rawURL):
		return SourceDOI
	case strings.Contains(host, "wikipedia.org"):
		return SourceWikipedia
	default:
		return SourceWebsite
	}
}

// splitURL returns the lower-cased host and the path without query or
// fragment. Unparseable input falls back to plain string slicing.
func splitURL(rawURL string) (host, path string) {
	trimmed := strings.TrimSpace(rawURL)
	if u, err := url.Parse(trimmed); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname()), u.Path
	}

	// Scheme-less or malformed input
	rest := trimmed
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.Index(rest, "/"); i >= 0 {
		return strings.ToLower(rest[:i]), rest[i:]
	}
	return strings.ToLower(rest), ""
}

func matchesHost(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
