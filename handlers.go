package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// sourceContentVar is the placeholder every extraction prompt template carries
const sourceContentVar = "{{.source_content}}"

// Extractor turns one URL of a known source type into a record. Extractors
// fail loudly; recovery happens in the Processor.
type Extractor interface {
	Extract(ctx context.Context, url string) (*SourceRecord, error)
}

// Extractors maps each source type to the variant that handles it
type Extractors map[SourceType]Extractor

// For returns the extractor registered for t
func (e Extractors) For(t SourceType) (Extractor, error) {
	ex, ok := e[t]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for %s", t)
	}
	return ex, nil
}

// structuredStep runs the generative-text structured-extraction cycle
type structuredStep struct {
	client           *TextClient
	contentMaxTokens int
	logger           *slog.Logger
}

// Extract renders template with content, sends it, and parses the fenced JSON.
// A nil result with nil error means the response was malformed.
func (s *structuredStep) Extract(ctx context.Context, template, content string) (ExtractionResult, error) {
	prompt, err := renderPrompt(template, limitContentTokens(content, s.contentMaxTokens))
	if err != nil {
		return nil, err
	}
	raw, err := s.client.Request(ctx, prompt)
	if err != nil {
		return nil, err
	}
	fields := ParseStructured(raw, s.logger)
	if fields == nil {
		s.logger.Warn("extract.structured.malformed", "kind", KindMalformedResponse)
	}
	return fields, nil
}

// renderPrompt substitutes the source content into a prompt template
func renderPrompt(template, content string) (string, error) {
	if !strings.Contains(template, sourceContentVar) {
		return "", fmt.Errorf("prompt template must contain %s variable", sourceContentVar)
	}
	return strings.ReplaceAll(template, sourceContentVar, content), nil
}

// limitContentTokens limits content to approximately N tokens (using 4 chars ≈ 1 token)
func limitContentTokens(content string, maxTokens int) string {
	if maxTokens <= 0 {
		return content
	}
	maxChars := maxTokens * 4
	if len(content) <= maxChars {
		return content
	}
	return content[:maxChars] + "..."
}

// formatExtractedDate renders a YYYY-MM-DD date as "Jan 02, 2006"; other
// non-empty values are kept verbatim
func formatExtractedDate(fields ExtractionResult, fallback string) string {
	raw, ok := fields.Field("date")
	if !ok {
		return fallback
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.Format("Jan 02, 2006")
	}
	return raw
}

// PDFExtractor downloads a document, reads its first pages and asks the
// generative-text service for the bibliographic fields
type PDFExtractor struct {
	fetcher  *Fetcher
	step     *structuredStep
	prompt   string
	maxPages int
	domain   string
	logger   *slog.Logger
}

func (h *PDFExtractor) Extract(ctx context.Context, url string) (*SourceRecord, error) {
	data, err := h.fetcher.Get(ctx, url, nil)
	if err != nil {
		return nil, newExtractionError(KindUpstreamUnavailable, err, "failed to download PDF")
	}

	text, err := extractPDFText(data, h.maxPages)
	if err != nil {
		h.logger.Warn("extract.pdf.text_failed", "url", url, "error", err)
		return h.placeholder(url), nil
	}

	fields, err := h.step.Extract(ctx, h.prompt, text)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return h.placeholder(url), nil
	}

	slug := Slug(fields.Or("slug", ""))
	if slug == "" {
		slug = filenameSlug(url)
	}

	return &SourceRecord{
		Type:        SourcePDF,
		Title:       fields.Or("title", notFoundTitle),
		Author:      fields.Or("author", unknownValue),
		Date:        formatExtractedDate(fields, noDate),
		Source:      fields.Or("source_organization", "PDF Document"),
		OriginalURL: url,
		ShortURL:    shortURL(h.domain, slug),
	}, nil
}

func (h *PDFExtractor) placeholder(url string) *SourceRecord {
	return &SourceRecord{
		Type:        SourcePDF,
		Title:       failedPDFTitle,
		Author:      unknownValue,
		Source:      unknownValue,
		OriginalURL: url,
		ShortURL:    shortURL(h.domain, "error"),
	}
}

// extractPDFText returns the plain text of at most maxPages leading pages.
// The PDF decoder panics on some malformed inputs; that is reported as an error.
func extractPDFText(data []byte, maxPages int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoding PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage() && i <= maxPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("no extractable text in first %d pages", maxPages)
	}
	return b.String(), nil
}

// WikipediaExtractor reads the article heading; author and date are not
// populated because attribution is collective
type WikipediaExtractor struct {
	fetcher *Fetcher
	domain  string
}

func (h *WikipediaExtractor) Extract(ctx context.Context, url string) (*SourceRecord, error) {
	body, err := h.fetcher.GetPage(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	heading := doc.Find("h1#firstHeading").First()
	if heading.Length() == 0 {
		return nil, newExtractionError(KindMissingField, nil, "title heading not found")
	}
	title := strings.TrimSpace(heading.Text())

	return &SourceRecord{
		Type:        SourceWikipedia,
		Title:       title,
		Source:      "Wikipedia",
		OriginalURL: url,
		ShortURL:    shortURL(h.domain, Slug(title)),
	}, nil
}

// Website content modes
const (
	ContentFormatText     = "text"
	ContentFormatMarkdown = "markdown"
)

// WebsiteExtractor is the generic fallback: fetch, filter, structured extraction
type WebsiteExtractor struct {
	fetcher       *Fetcher
	step          *structuredStep
	prompt        string
	contentFormat string
	converter     *md.Converter
	domain        string
	logger        *slog.Logger
}

func (h *WebsiteExtractor) Extract(ctx context.Context, url string) (*SourceRecord, error) {
	body, err := h.fetcher.GetPage(ctx, url)
	if err != nil {
		return nil, err
	}

	content := FilterContent(string(body))
	if h.contentFormat == ContentFormatMarkdown {
		markdown, err := htmlToMarkdown(h.converter, string(body))
		if err != nil {
			h.logger.Warn("extract.website.markdown_failed", "url", url, "error", err)
		} else {
			content = markdown
		}
	}
	h.logger.Debug("extract.website.filtered", "url", url, "html_bytes", len(body), "content_bytes", len(content))

	fields, err := h.step.Extract(ctx, h.prompt, content)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return &SourceRecord{
			Type:        SourceWebsite,
			Title:       failedWebsiteTitle,
			Author:      unknownValue,
			Source:      unknownValue,
			OriginalURL: url,
			ShortURL:    shortURL(h.domain, "error"),
		}, nil
	}

	slug := "error"
	title, ok := fields.Field("title")
	if ok {
		slug = Slug(title)
	} else {
		title = notFoundTitle
	}

	return &SourceRecord{
		Type:        SourceWebsite,
		Title:       title,
		Author:      fields.Or("author", notFoundAuthor),
		Date:        formatExtractedDate(fields, ""),
		Source:      fields.Or("source_organization", notFoundSource),
		OriginalURL: url,
		ShortURL:    shortURL(h.domain, slug),
	}, nil
}
