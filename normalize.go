package main

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Normalization modes
const (
	NormalizeLLM   = "llm"
	NormalizeLocal = "local"
	NormalizeOff   = "off"
)

const maxAuthorsBeforeEtAl = 3

var (
	// "?." and "!." (and longer runs of periods after them)
	terminalPunctRegex = regexp.MustCompile(`([?!])\.+`)
	// exactly two periods, leaving ellipses alone
	doublePeriodRegex = regexp.MustCompile(`(^|[^.])\.\.([^.]|$)`)
	wordRegex         = regexp.MustCompile(`\S+`)
)

// Normalizer is the "final check" applied to one rendered citation line.
// Lines are normalized independently; no state is shared between calls.
type Normalizer interface {
	Normalize(ctx context.Context, sourceType SourceType, line string) (string, error)
}

// NewNormalizer builds the normalizer for mode. client may be nil unless the
// mode is llm.
func NewNormalizer(mode string, client *TextClient, domain string, logger *slog.Logger) (Normalizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	local := &LocalNormalizer{domain: domain}

	switch mode {
	case NormalizeLLM, "":
		if client == nil {
			return nil, fmt.Errorf("normalize mode %q requires a generative-text client", NormalizeLLM)
		}
		return &LLMNormalizer{client: client, local: local, logger: logger}, nil
	case NormalizeLocal:
		return local, nil
	case NormalizeOff:
		return passthroughNormalizer{}, nil
	default:
		return nil, fmt.Errorf("unsupported normalize mode: %s", mode)
	}
}

// LocalNormalizer enforces the mechanically checkable rules: author lists
// longer than three names become "<first> et al.", doubled terminal
// punctuation outside links is collapsed, and short-link slugs are
// re-sanitized. Nothing else changes. Applying it twice yields the same line.
type LocalNormalizer struct {
	domain string
}

func (n *LocalNormalizer) Normalize(_ context.Context, sourceType SourceType, line string) (string, error) {
	return n.apply(sourceType, line), nil
}

func (n *LocalNormalizer) apply(sourceType SourceType, line string) string {
	line = strings.TrimSpace(line)
	if sourceType == SourcePDF || sourceType == SourceDOI {
		line = truncateAuthors(line)
	}
	line = wordRegex.ReplaceAllStringFunc(line, func(word string) string {
		if n.isLink(word) {
			return word
		}
		return collapsePunctuation(word)
	})
	return n.sanitizeShortLinks(line)
}

// isLink reports whether word is a URL or a short link; links are never
// rewritten by the punctuation rule
func (n *LocalNormalizer) isLink(word string) bool {
	if strings.HasPrefix(word, "http://") || strings.HasPrefix(word, "https://") {
		return true
	}
	return n.domain != "" && strings.HasPrefix(word, strings.TrimRight(n.domain, "/")+"/")
}

// truncateAuthors shortens the author list that precedes " (" in a
// document citation
func truncateAuthors(line string) string {
	idx := strings.Index(line, " (")
	if idx <= 0 {
		return line
	}
	names := strings.Split(line[:idx], ", ")
	if len(names) <= maxAuthorsBeforeEtAl {
		return line
	}
	return strings.TrimSpace(names[0]) + " et al." + line[idx:]
}

func collapsePunctuation(line string) string {
	for {
		next := terminalPunctRegex.ReplaceAllString(line, "$1")
		next = doublePeriodRegex.ReplaceAllString(next, "$1.$2")
		if next == line {
			return line
		}
		line = next
	}
}

// sanitizeShortLinks lower-cases and strips non-alphanumerics from every slug
// following the short-link domain
func (n *LocalNormalizer) sanitizeShortLinks(line string) string {
	if n.domain == "" {
		return line
	}
	prefix := strings.TrimRight(n.domain, "/") + "/"

	var b strings.Builder
	rest := line
	for {
		idx := strings.Index(rest, prefix)
		if idx < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:idx+len(prefix)])
		rest = rest[idx+len(prefix):]

		end := strings.IndexAny(rest, " \t\n")
		if end < 0 {
			end = len(rest)
		}
		b.WriteString(sanitizeSlug(rest[:end]))
		rest = rest[end:]
	}
}

// LLMNormalizer asks the generative-text service to lint the line against
// the full rule set, then re-applies the mechanical rules locally. A service
// failure keeps the rendered line.
type LLMNormalizer struct {
	client *TextClient
	local  *LocalNormalizer
	logger *slog.Logger
}

func (n *LLMNormalizer) Normalize(ctx context.Context, sourceType SourceType, line string) (string, error) {
	response, err := n.client.Request(ctx, line)
	if err != nil {
		n.logger.Warn("normalize.llm.failed", "line", line, "error", err)
		return n.local.apply(sourceType, line), nil
	}

	normalized := firstLine(response)
	if normalized == "" {
		n.logger.Warn("normalize.llm.empty", "line", line)
		normalized = line
	}
	return n.local.apply(sourceType, normalized), nil
}

// firstLine returns the first non-blank line of a response with any
// wrapping quotes or code fences removed
func firstLine(response string) string {
	for _, l := range strings.Split(response, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "```") {
			continue
		}
		if len(l) >= 2 && l[0] == '"' && l[len(l)-1] == '"' {
			l = strings.TrimSpace(l[1 : len(l)-1])
		}
		return l
	}
	return ""
}

type passthroughNormalizer struct{}

func (passthroughNormalizer) Normalize(_ context.Context, _ SourceType, line string) (string, error) {
	return line, nil
}
