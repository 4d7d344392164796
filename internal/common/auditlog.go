package common

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// AuditEntry captures a single identity field change made during conversion.
type AuditEntry struct {
	RunID        string    `json:"runId,omitempty"`
	Path         string    `json:"path"`
	MessageIndex int       `json:"messageIndex"`
	Offset       int64     `json:"offset"`
	Message      string    `json:"message"`
	Field        string    `json:"field"`
	Before       string    `json:"before"`
	After        string    `json:"after"`
	Ts           time.Time `json:"ts"`
}

// AuditLog provides append-only access to a JSONL audit log. It is safe for
// concurrent use by batch workers.
type AuditLog struct {
	path  string
	runID string
	mu    sync.Mutex
}

// NewAuditLog returns an AuditLog that writes to the provided path.
func NewAuditLog(path, runID string) *AuditLog {
	return &AuditLog{path: path, runID: runID}
}

// Path returns the backing file path for the log.
func (a *AuditLog) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Append writes entries to the log, one JSON object per line.
func (a *AuditLog) Append(entries ...AuditEntry) error {
	if a == nil {
		return errors.New("nil audit log")
	}
	if len(entries) == 0 {
		return nil
	}
	var buf []byte
	now := time.Now().UTC()
	for _, entry := range entries {
		if entry.Field == "" {
			return errors.New("audit entry missing field")
		}
		if entry.Ts.IsZero() {
			entry.Ts = now
		}
		if entry.RunID == "" {
			entry.RunID = a.runID
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	dir := filepath.Dir(a.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Sync()
}

// ReadAuditLog loads every entry from the supplied JSONL file.
func ReadAuditLog(path string) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []AuditEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry AuditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
