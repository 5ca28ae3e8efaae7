package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"nil", nil, ""},
		{"extraction error", newExtractionError(KindIdentifierNotFound, nil, "no video id in %s", "x"), KindIdentifierNotFound},
		{"wrapped extraction error", fmt.Errorf("outer: %w", newExtractionError(KindMissingField, nil, "no title")), KindMissingField},
		{"http error", &HTTPError{StatusCode: 503, URL: "https://example.com"}, KindUpstreamUnavailable},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindUpstreamUnavailable},
		{"plain error", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestExtractionErrorIs(t *testing.T) {
	cause := &HTTPError{StatusCode: 404, URL: "https://api.example.com"}
	err := newExtractionError(KindUpstreamNotFound, cause, "no such work")

	assert.ErrorIs(t, err, ErrUpstreamNotFound)
	assert.NotErrorIs(t, err, ErrIdentifierNotFound)

	var httpErr *HTTPError
	assert.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 404, httpErr.StatusCode)

	assert.Equal(t, "no such work: HTTP 404 for https://api.example.com", err.Error())
	assert.Equal(t, "plain", newExtractionError(KindUnknown, nil, "plain").Error())
}
