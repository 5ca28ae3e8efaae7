package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRecords() []*SourceRecord {
	return []*SourceRecord{
		{
			Type:        SourceYouTube,
			Title:       "Why Is It Dark at Night?",
			Author:      "Veritasium",
			Date:        "Apr 15, 2023",
			Source:      "YouTube",
			OriginalURL: "https://youtu.be/abc",
			ShortURL:    "ve42.co/whyisitd",
		},
		errorRecord("https://example.com/broken", errors.New("HTTP 500 for https://example.com/broken, giving up")),
		{
			Type:        SourceDOI,
			Title:       "Example Paper",
			Author:      "A Smith",
			Date:        "May 01, 2020",
			Source:      "Journal X",
			OriginalURL: "https://doi.org/10.1000/xyz123",
			ShortURL:    "ve42.co/examplep",
		},
		{
			Type:        SourceWikipedia,
			Title:       "Physics",
			Source:      "Wikipedia",
			OriginalURL: "https://en.wikipedia.org/wiki/Physics",
			ShortURL:    "ve42.co/physics",
		},
		{
			Type:        SourceWebsite,
			Title:       "Dark Matter Explained",
			Author:      "Jane Doe",
			Source:      "Physics Today",
			OriginalURL: "https://example.com/dark-matter",
			ShortURL:    "ve42.co/darkmatt",
		},
	}
}

func TestRenderCitation(t *testing.T) {
	records := sampleRecords()

	tests := []struct {
		name     string
		record   *SourceRecord
		expected string
	}{
		{"youtube", records[0], "Veritasium. Why Is It Dark at Night?. https://youtu.be/abc"},
		{"error", records[1], ""},
		{"doi", records[2], "A Smith (May 01, 2020). Example Paper. Journal X - ve42.co/examplep"},
		{"wikipedia", records[3], "Physics. https://en.wikipedia.org/wiki/Physics"},
		{"website", records[4], "Dark Matter Explained. ve42.co/darkmatt"},
		{
			"pdf",
			&SourceRecord{Type: SourcePDF, Title: "Report", Author: "Unknown", Date: "No date", Source: "PDF Document", ShortURL: "ve42.co/report"},
			"Unknown (No date). Report. PDF Document - ve42.co/report",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, renderCitation(tt.record))
		})
	}
}

func TestFormatReferences(t *testing.T) {
	records := append(sampleRecords(), nil)
	n := &LocalNormalizer{domain: "ve42.co"}

	lines := FormatReferences(context.Background(), records, n, discardLogger())
	assert.Equal(t, []string{
		"Veritasium. Why Is It Dark at Night? https://youtu.be/abc",
		"A Smith (May 01, 2020). Example Paper. Journal X - ve42.co/examplep",
		"Physics. https://en.wikipedia.org/wiki/Physics",
		"Dark Matter Explained. ve42.co/darkmatt",
	}, lines)
}

func TestWriteBibliography(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "references.txt")
	require.NoError(t, writeBibliography(path, []string{"First.", "Second."}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "References:\n\nFirst.\n\nSecond.\n\n", string(data))

	require.NoError(t, writeBibliography(path, nil))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "References:\n\n", string(data))
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "references.csv")
	records := sampleRecords()
	require.NoError(t, writeCSV(path, records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, len(records)+1)
	assert.Equal(t, "source_type,title,author,date,source,original_url,short_url", lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "ERROR,ERROR,"), "error row: %s", lines[2])

	got, err := readCSV(path)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestReadCSVWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.csv")
	require.NoError(t, os.WriteFile(path, []byte("wikipedia,Physics,,,Wikipedia,https://en.wikipedia.org/wiki/Physics,ve42.co/physics\n"), 0o644))

	got, err := readCSV(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Physics", got[0].Title)

	require.NoError(t, os.WriteFile(path, []byte("podcast,x,,,,,\n"), 0o644))
	_, err = readCSV(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err = readCSV(path)
	assert.Error(t, err)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "references.xlsx")
	records := sampleRecords()
	require.NoError(t, writeXLSX(path, records, discardLogger()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"References"}, f.GetSheetList())

	rows, err := f.GetRows("References")
	require.NoError(t, err)
	require.Len(t, rows, len(records)+1)
	assert.Equal(t, tableHeader, rows[0])
	assert.Equal(t, "Why Is It Dark at Night?", rows[1][1])
	assert.Equal(t, "ERROR", rows[2][0])
	assert.Equal(t, "ERROR", rows[2][1])
	assert.Equal(t, "https://example.com/broken", rows[2][5])
}

func TestParseURLList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "plain list with blank lines",
			input:    "https://a.com\n\n   \nhttps://b.com  \n",
			expected: []string{"https://a.com", "https://b.com"},
		},
		{
			name:     "csv header and extra columns",
			input:    "url,notes\nhttps://a.com,first\n\"https://b.com\",second\n",
			expected: []string{"https://a.com", "https://b.com"},
		},
		{
			name:     "bare url header",
			input:    "url\nhttps://a.com\n",
			expected: []string{"https://a.com"},
		},
		{
			name:     "duplicates kept in order",
			input:    "https://a.com\nhttps://b.com\nhttps://a.com\n",
			expected: []string{"https://a.com", "https://b.com", "https://a.com"},
		},
		{
			name:     "not a url kept verbatim",
			input:    "not-a-url\n",
			expected: []string{"not-a-url"},
		},
		{
			name:     "empty",
			input:    "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseURLList(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestReadURLs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("https://remote.example.com/a\nhttps://remote.example.com/b\n"))
	}))
	defer server.Close()

	fetcher := NewFetcher(5*time.Second, "", 0, 1, discardLogger())
	ctx := context.Background()

	got, err := readURLs(ctx, "-", strings.NewReader("https://stdin.example.com\n"), fetcher)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://stdin.example.com"}, got)

	got, err = readURLs(ctx, server.URL+"/urls.txt", nil, fetcher)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://remote.example.com/a", "https://remote.example.com/b"}, got)

	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://file.example.com\n"), 0o644))
	got, err = readURLs(ctx, path, nil, fetcher)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://file.example.com"}, got)

	_, err = readURLs(ctx, filepath.Join(t.TempDir(), "missing.txt"), nil, fetcher)
	assert.Error(t, err)
}

func TestAddURLToList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists", "urls.txt")

	require.NoError(t, addURLToList(path, "https://a.com"))
	require.NoError(t, addURLToList(path, "https://b.com"))

	err := addURLToList(path, "https://a.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	err = addURLToList(path, "ftp://a.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid URL format")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://a.com\nhttps://b.com\n", string(data))
}

func TestAddURLToListWithoutTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://a.com"), 0o644))

	require.NoError(t, addURLToList(path, "https://b.com"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://a.com\nhttps://b.com\n", string(data))
}
