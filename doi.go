package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultCrossrefAPIURL = "https://api.crossref.org"

// doiExtractPattern captures a DOI up to the query string or fragment
var doiExtractPattern = regexp.MustCompile(`10\.\d{4,}/[^?#\s]+`)

// publisherSuffixRegex matches the path publishers append after the DOI on
// landing pages, from the first view or file-name segment onwards
var publisherSuffixRegex = regexp.MustCompile(`(?i)/(?:full|abstract|pdf|epdf|pdfdirect|summary|references|figures|fulltext|full-text|[^/]*\.(?:html?|pdf|xml|epub))(?:/.*)?$`)

// crossrefWork is the subset of a registry work record we read
type crossrefWork struct {
	Title           []string         `json:"title"`
	ContainerTitle  []string         `json:"container-title"`
	Author          []crossrefAuthor `json:"author"`
	PublishedPrint  *crossrefDate    `json:"published-print"`
	PublishedOnline *crossrefDate    `json:"published-online"`
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"` // organisational authors
}

type crossrefDate struct {
	DateParts [][]*int `json:"date-parts"`
}

// DOIExtractor resolves a DOI against the scholarly-metadata registry
type DOIExtractor struct {
	fetcher *Fetcher
	apiURL  string
	mailto  string
	domain  string
	logger  *slog.Logger
}

func (h *DOIExtractor) Extract(ctx context.Context, rawURL string) (*SourceRecord, error) {
	doi, err := extractDOI(rawURL)
	if err != nil {
		return nil, err
	}

	work, err := h.lookup(ctx, doi)
	if err != nil {
		return nil, err
	}

	title := notFoundTitle
	if len(work.Title) > 0 && strings.TrimSpace(work.Title[0]) != "" {
		title = strings.TrimSpace(work.Title[0])
	}
	source := notFoundSource
	if len(work.ContainerTitle) > 0 && strings.TrimSpace(work.ContainerTitle[0]) != "" {
		source = strings.TrimSpace(work.ContainerTitle[0])
	}

	return &SourceRecord{
		Type:        SourceDOI,
		Title:       title,
		Author:      formatAuthors(work.Author),
		Date:        resolveWorkDate(work),
		Source:      source,
		OriginalURL: rawURL,
		ShortURL:    shortURL(h.domain, Slug(title)),
	}, nil
}

func (h *DOIExtractor) lookup(ctx context.Context, doi string) (*crossrefWork, error) {
	apiURL := h.apiURL
	if apiURL == "" {
		apiURL = defaultCrossrefAPIURL
	}
	endpoint := strings.TrimRight(apiURL, "/") + "/works/" + doi
	if h.mailto != "" {
		endpoint += "?" + url.Values{"mailto": {h.mailto}}.Encode()
	}

	body, err := h.fetcher.Get(ctx, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, newExtractionError(KindUpstreamUnavailable, err, "registry lookup failed for %s", doi)
	}

	work, err := decodeWork(body)
	if err != nil {
		return nil, newExtractionError(KindMalformedResponse, err, "decoding registry response for %s", doi)
	}
	h.logger.Debug("doi.lookup.ok", "doi", doi, "authors", len(work.Author))
	return work, nil
}

// decodeWork accepts both the registry envelope {"message": {...}} and a bare
// work object
func decodeWork(body []byte) (*crossrefWork, error) {
	var envelope struct {
		Message *crossrefWork `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if envelope.Message != nil {
		return envelope.Message, nil
	}
	var work crossrefWork
	if err := json.Unmarshal(body, &work); err != nil {
		return nil, err
	}
	return &work, nil
}

// extractDOI finds the DOI in a resolver link or any URL embedding one
func extractDOI(rawURL string) (string, error) {
	candidate := rawURL
	if unescaped, err := url.PathUnescape(rawURL); err == nil {
		candidate = unescaped
	}
	doi := doiExtractPattern.FindString(candidate)
	// the segment right after the prefix always belongs to the DOI
	if prefix := strings.Index(doi, "/"); prefix >= 0 {
		if next := strings.Index(doi[prefix+1:], "/"); next >= 0 {
			cut := prefix + 1 + next
			doi = doi[:cut] + publisherSuffixRegex.ReplaceAllString(doi[cut:], "")
		}
	}
	doi = strings.TrimRight(doi, "/.,;")
	if doi == "" {
		return "", newExtractionError(KindIdentifierNotFound, nil, "no DOI found in %s", rawURL)
	}
	return doi, nil
}

// formatAuthors joins every author as "Given Family" (or the organisation
// name); truncation to "et al." happens during normalization
func formatAuthors(authors []crossrefAuthor) string {
	var names []string
	for _, a := range authors {
		name := strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family))
		if name == "" {
			name = strings.TrimSpace(a.Name)
		}
		if name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return notFoundAuthor
	}
	return strings.Join(names, ", ")
}

// resolveWorkDate prefers the print date, then the online date
func resolveWorkDate(work *crossrefWork) string {
	for _, d := range []*crossrefDate{work.PublishedPrint, work.PublishedOnline} {
		if d == nil || len(d.DateParts) == 0 {
			continue
		}
		if formatted := formatDateParts(d.DateParts[0]); formatted != noDate {
			return formatted
		}
	}
	return noDate
}

// formatDateParts renders [y,m,d] as "Jan 02, 2006", [y,m] as "Jan 2006" and
// [y] as the bare year. Missing or zero parts shorten the precision.
func formatDateParts(parts []*int) string {
	values := make([]int, 0, 3)
	for _, p := range parts {
		if p == nil || *p == 0 || len(values) == 3 {
			break
		}
		values = append(values, *p)
	}

	if len(values) >= 2 && (values[1] < 1 || values[1] > 12) {
		values = values[:1]
	}
	if len(values) == 3 && (values[2] < 1 || values[2] > 31) {
		values = values[:2]
	}

	switch len(values) {
	case 3:
		return time.Date(values[0], time.Month(values[1]), values[2], 0, 0, 0, 0, time.UTC).Format("Jan 02, 2006")
	case 2:
		return time.Date(values[0], time.Month(values[1]), 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006")
	case 1:
		return strconv.Itoa(values[0])
	default:
		return noDate
	}
}
