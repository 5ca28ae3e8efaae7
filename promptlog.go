package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PromptEntry is one request/response exchange with the generative-text service
type PromptEntry struct {
	ID        string
	Timestamp time.Time
	Model     string
	Prompt    string
	Response  string
	Tokens    int
	CostUSD   float64
}

// PromptLog is the process-wide, append-only audit trail of generative-text
// exchanges. It is created at run start, appended to by every TextClient and
// closed at run end. Appends are serialized; file errors are logged and
// swallowed so auditing never fails an extraction.
type PromptLog struct {
	mu             sync.Mutex
	entries        []PromptEntry
	w              io.Writer
	closer         io.Closer
	costPerMillion float64
	logger         *slog.Logger
	now            func() time.Time
}

// NewPromptLog truncates path and starts a new run. An empty path keeps the log
// in memory only; a file that cannot be created degrades to the same.
func NewPromptLog(path string, costPerMillion float64, logger *slog.Logger) *PromptLog {
	if logger == nil {
		logger = slog.Default()
	}
	l := &PromptLog{costPerMillion: costPerMillion, logger: logger, now: time.Now}

	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			logger.Warn("promptlog.open_failed", "path", path, "error", err)
		} else {
			l.w, l.closer = f, f
		}
	}

	l.write(fmt.Sprintf("=== New Run Starting %s ===\n", l.now().Format(time.RFC3339)))
	return l
}

// Append records an exchange and returns the stored entry. A nil log is a no-op.
func (l *PromptLog) Append(model, prompt, response string, tokens int) PromptEntry {
	if l == nil {
		return PromptEntry{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := PromptEntry{
		ID:        uuid.New().String(),
		Timestamp: l.now(),
		Model:     model,
		Prompt:    prompt,
		Response:  response,
		Tokens:    tokens,
		CostUSD:   l.costPerMillion * float64(tokens) / 1_000_000,
	}
	l.entries = append(l.entries, entry)

	l.writeLocked(fmt.Sprintf("\n\n=== %s ===\nModel: %s\nPrompt:\n%s\n\nResponse:\n%s\n",
		entry.Timestamp.Format(time.RFC3339Nano), model, prompt, response))
	return entry
}

// Entries returns a copy of the entries recorded so far
func (l *PromptLog) Entries() []PromptEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PromptEntry(nil), l.entries...)
}

// Totals sums tokens and cost across the run
func (l *PromptLog) Totals() (tokens int, costUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		tokens += e.Tokens
		costUSD += e.CostUSD
	}
	return tokens, costUSD
}

// Close flushes and closes the underlying file
func (l *PromptLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.w, l.closer = nil, nil
	return err
}

func (l *PromptLog) write(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLocked(s)
}

func (l *PromptLog) writeLocked(s string) {
	if l.w == nil {
		return
	}
	if _, err := io.WriteString(l.w, s); err != nil {
		l.logger.Warn("promptlog.write_failed", "error", err)
	}
}
