package main

import (
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		expected string
	}{
		{"basic", "Example Paper", "examplep"},
		{"short", "Go", "go"},
		{"punctuation", "What's New? (2024)", "whatsnew"},
		{"digits", "2001: A Space Odyssey", "2001aspa"},
		{"diacritics folded", "Café Naïve", "cafenaiv"},
		{"accented start", "Éléphant café", "elephant"},
		{"non-latin script kept", "Физика частиц", "физикача"},
		{"empty", "", ""},
		{"only symbols", "!!! ???", ""},
		{"uppercase", "NASA REPORT", "nasarepo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slug(tt.title))
		})
	}
}

func TestSlugProperties(t *testing.T) {
	valid := regexp.MustCompile(`^[\p{Ll}\p{Lo}\p{Nd}]*$`)
	inputs := []string{
		"",
		"A",
		strings.Repeat("Long Title ", 20),
		"日本語のタイトル",
		"Mixed 123 CASE with-dashes_and_underscores",
	}

	for _, in := range inputs {
		got := Slug(in)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), 8, "slug %q too long", got)
		assert.Regexp(t, valid, got)
		assert.Equal(t, got, Slug(in), "slug not deterministic")
	}
}

func TestSlugCollisionsAreTolerated(t *testing.T) {
	assert.Equal(t, Slug("Quantum Mechanics I"), Slug("Quantum Mechanics II"))
}

func TestFilenameSlug(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://example.com/files/Annual_Report-2023.pdf", "annualreport2023"},
		{"https://example.com/My%20Paper.PDF", "mypaper"},
		{"https://example.com/download.pdf?x=1", "download"},
		{"https://example.com/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, filenameSlug(tt.url))
		})
	}
}

func TestShortURL(t *testing.T) {
	assert.Equal(t, "ve42.co/example", shortURL("ve42.co", "example"))
	assert.Equal(t, "ve42.co/example", shortURL("ve42.co/", "example"))
	assert.Equal(t, "ve42.co/error", shortURL("ve42.co", Slug("!!! ???")))
}
