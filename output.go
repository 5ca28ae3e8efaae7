package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const bibliographyHeader = "References:"

// renderCitation renders the house-style citation line for a successful
// record. Errored records have no citation.
func renderCitation(r *SourceRecord) string {
	switch r.Type {
	case SourceYouTube:
		return fmt.Sprintf("%s. %s. %s", r.Author, r.Title, r.OriginalURL)
	case SourceWikipedia:
		return fmt.Sprintf("%s. %s", r.Title, r.OriginalURL)
	case SourceWebsite:
		return fmt.Sprintf("%s. %s", r.Title, r.ShortURL)
	case SourcePDF, SourceDOI:
		return fmt.Sprintf("%s (%s). %s. %s - %s", r.Author, r.Date, r.Title, r.Source, r.ShortURL)
	default:
		return ""
	}
}

// FormatReferences renders and normalizes one line per successful record,
// in record order
func FormatReferences(ctx context.Context, records []*SourceRecord, normalizer Normalizer, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	lines := make([]string, 0, len(records))
	for _, r := range records {
		if r == nil || r.Type == SourceError {
			continue
		}
		line := renderCitation(r)
		normalized, err := normalizer.Normalize(ctx, r.Type, line)
		if err != nil {
			logger.Warn("normalize.failed", "url", r.OriginalURL, "error", err)
			normalized = line
		}
		lines = append(lines, normalized)
	}
	return lines
}

// writeBibliography writes the "References:" header followed by each line,
// every line followed by a blank line
func writeBibliography(path string, lines []string) error {
	var buf bytes.Buffer
	buf.WriteString(bibliographyHeader + "\n\n")
	for _, l := range lines {
		buf.WriteString(l + "\n\n")
	}
	return writeFile(path, buf.Bytes())
}

// writeCSV writes the tabular output, one row per record
func writeCSV(path string, records []*SourceRecord) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(tableHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(r.Row()); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encoding CSV: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// readCSV loads records previously written by writeCSV
func readCSV(path string) ([]*SourceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	// Skip header row if it exists
	startIdx := 0
	if strings.EqualFold(strings.TrimSpace(rows[0][0]), tableHeader[0]) {
		startIdx = 1
	}

	records := make([]*SourceRecord, 0, len(rows)-startIdx)
	for i := startIdx; i < len(rows); i++ {
		r, err := recordFromRow(rows[i])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// writeXLSX writes the tabular output as a single-sheet workbook
func writeXLSX(path string, records []*SourceRecord, logger *slog.Logger) error {
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "References"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for i, h := range tableHeader {
		write(i+1, 1, h)
	}
	for i, r := range records {
		for j, v := range r.Row() {
			write(j+1, i+2, v)
		}
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 12) // type
	_ = f.SetColWidth(sheet, "B", "B", 48) // title
	_ = f.SetColWidth(sheet, "C", "C", 32) // author
	_ = f.SetColWidth(sheet, "D", "E", 18) // date, source
	_ = f.SetColWidth(sheet, "F", "F", 60) // url
	_ = f.SetColWidth(sheet, "G", "G", 20) // short url

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	if err := writeFile(path, buf.Bytes()); err != nil {
		return err
	}

	logger.Info("export.xlsx.ok", "path", path, "rows", len(records), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// readURLs loads the input list from a file, "-" for stdin, or an http(s)
// location. Blank lines are ignored.
func readURLs(ctx context.Context, source string, stdin io.Reader, fetcher *Fetcher) ([]string, error) {
	switch {
	case source == "-":
		return parseURLList(stdin)
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		data, err := fetcher.Get(ctx, source, nil)
		if err != nil {
			return nil, fmt.Errorf("fetching URL list: %w", err)
		}
		return parseURLList(bytes.NewReader(data))
	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return parseURLList(f)
	}
}

// parseURLList reads newline-delimited URLs. A first line reading "url" is
// treated as a CSV header, and for CSV-shaped lines only the first column is
// kept.
func parseURLList(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var urls []string
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			if strings.EqualFold(firstCSVColumn(line), "url") {
				continue
			}
		}
		urls = append(urls, firstCSVColumn(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading URL list: %w", err)
	}
	return urls, nil
}

// firstCSVColumn returns the leading comma-separated field of a line whose
// first field is a URL; anything else is returned unchanged
func firstCSVColumn(line string) string {
	idx := strings.Index(line, ",")
	if idx < 0 {
		return line
	}
	head := strings.Trim(strings.TrimSpace(line[:idx]), `"`)
	if head == "url" || strings.HasPrefix(head, "http://") || strings.HasPrefix(head, "https://") {
		return head
	}
	return line
}

// addURLToList appends url to the list file, creating it if needed.
// Duplicates are rejected.
func addURLToList(path, url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("invalid URL format: %s (must start with http:// or https://)", url)
	}

	var existing []string
	if f, err := os.Open(path); err == nil {
		existing, err = parseURLList(f)
		f.Close()
		if err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading URL list: %w", err)
	}

	for _, u := range existing {
		if u == url {
			return fmt.Errorf("URL already exists in list: %s", url)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating list directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening URL list: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	prefix := ""
	if info.Size() > 0 && !endsWithNewline(path) {
		prefix = "\n"
	}
	if _, err := f.WriteString(prefix + url + "\n"); err != nil {
		return fmt.Errorf("writing URL list: %w", err)
	}
	return nil
}

func endsWithNewline(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return true
	}
	return data[len(data)-1] == '\n'
}
