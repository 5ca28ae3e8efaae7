package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected SourceType
	}{
		{"youtube watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", SourceYouTube},
		{"youtu.be short link", "https://youtu.be/dQw4w9WgXcQ", SourceYouTube},
		{"mobile youtube", "https://m.youtube.com/watch?v=abc", SourceYouTube},
		{"youtube pdf-looking path", "https://www.youtube.com/file.pdf", SourceYouTube},
		{"pdf path", "https://example.com/papers/report.pdf", SourcePDF},
		{"pdf uppercase extension", "https://example.com/REPORT.PDF", SourcePDF},
		{"pdf before query string", "https://example.com/report.pdf?download=1", SourcePDF},
		{"pdf and doi shaped", "https://journals.example.org/10.1000/xyz123/paper.pdf", SourcePDF},
		{"doi resolver", "https://doi.org/10.1000/xyz123", SourceDOI},
		{"dx doi resolver", "https://dx.doi.org/10.1000/xyz123", SourceDOI},
		{"doi in path", "https://www.nature.com/articles/10.1038/s41586-020-2649-2", SourceDOI},
		{"wikipedia", "https://en.wikipedia.org/wiki/Go_(programming_language)", SourceWikipedia},
		{"wikipedia mobile", "https://en.m.wikipedia.org/wiki/Physics", SourceWikipedia},
		{"generic website", "https://example.com/blog/post", SourceWebsite},
		{"pdf in query only", "https://example.com/view?file=report.pdf", SourceWebsite},
		{"empty string", "", SourceWebsite},
		{"not a url", "not-a-url", SourceWebsite},
		{"scheme-less wikipedia", "en.wikipedia.org/wiki/Physics", SourceWikipedia},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.url))
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	urls := []string{
		"https://doi.org/10.1000/xyz123",
		"https://example.com/a.pdf",
		"https://youtu.be/abc",
		"https://example.com",
	}
	for _, u := range urls {
		first := Classify(u)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Classify(u), "classification of %s changed", u)
		}
	}
}

func TestSplitURL(t *testing.T) {
	tests := []struct {
		url  string
		host string
		path string
	}{
		{"https://Example.COM/a/b?x=1#frag", "example.com", "/a/b"},
		{"example.com/path.pdf?q=1", "example.com", "/path.pdf"},
		{"ftp://host", "host", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			host, path := splitURL(tt.url)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.path, path)
		})
	}
}
