// Package activity keeps a human-readable JSONL trail of every file the
// organizer touched, one file per day.
package activity

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type ParseMethod string

const (
	MethodRegex ParseMethod = "regex"
	MethodAI    ParseMethod = "ai"
	MethodCache ParseMethod = "cache"
)

// MethodFor maps a ParsedInfo source string to a ParseMethod.
func MethodFor(source string) ParseMethod {
	if source == "ai" {
		return MethodAI
	}
	return MethodRegex
}

type Entry struct {
	Timestamp   time.Time   `json:"ts"`
	Action      string      `json:"action"`
	BatchID     string      `json:"batch_id,omitempty"`
	ItemID      int64       `json:"item_id,omitempty"`
	Source      string      `json:"source"`
	Target      string      `json:"target,omitempty"`
	MediaType   string      `json:"media_type,omitempty"`
	ParseMethod ParseMethod `json:"parse_method,omitempty"`
	ParsedTitle string      `json:"parsed_title,omitempty"`
	ParsedYear  *int        `json:"parsed_year,omitempty"`
	ExternalID  string      `json:"external_id,omitempty"`
	Confidence  *float64    `json:"confidence,omitempty"`
	Success     bool        `json:"success"`
	Bytes       int64       `json:"bytes,omitempty"`
	DurationMs  int64       `json:"duration_ms,omitempty"`
	ExecutedBy  string      `json:"executed_by,omitempty"`
	Error       string      `json:"error,omitempty"`
}

type Logger struct {
	mu          sync.Mutex
	logDir      string
	currentFile *os.File
	currentDate string
	now         func() time.Time
}

// NewLogger writes activity-YYYY-MM-DD.jsonl files into logDir.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}
	return &Logger{logDir: logDir, now: time.Now}, nil
}

// Log appends entry. A nil Logger discards it.
func (l *Logger) Log(entry Entry) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	today := now.Format("2006-01-02")
	if l.currentDate != today || l.currentFile == nil {
		if err := l.rotateFile(today); err != nil {
			return err
		}
	}

	_, err = l.currentFile.Write(append(line, '\n'))
	return err
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentFile != nil {
		err := l.currentFile.Close()
		l.currentFile = nil
		return err
	}
	return nil
}

// PruneOld deletes daily files older than retentionDays.
func (l *Logger) PruneOld(retentionDays int) error {
	cutoff := l.now().AddDate(0, 0, -retentionDays)

	for _, name := range l.logFiles() {
		fileDate, err := time.Parse("2006-01-02", strings.TrimSuffix(strings.TrimPrefix(name, "activity-"), ".jsonl"))
		if err != nil {
			continue
		}
		if fileDate.Before(cutoff) {
			os.Remove(filepath.Join(l.logDir, name))
		}
	}
	return nil
}

func (l *Logger) rotateFile(date string) error {
	if l.currentFile != nil {
		l.currentFile.Close()
	}

	filePath := filepath.Join(l.logDir, "activity-"+date+".jsonl")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	l.currentFile = file
	l.currentDate = date
	return nil
}

func (l *Logger) GetLogDir() string {
	return l.logDir
}

// logFiles returns activity file names, oldest first.
func (l *Logger) logFiles() []string {
	entries, err := os.ReadDir(l.logDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "activity-") && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// GetRecentEntries returns the most recent activity entries, up to limit,
// newest first.
func (l *Logger) GetRecentEntries(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	files := l.logFiles()
	var results []Entry
	for i := len(files) - 1; i >= 0; i-- {
		fileEntries, err := readEntriesFromFile(filepath.Join(l.logDir, files[i]))
		if err != nil {
			continue
		}
		for j := len(fileEntries) - 1; j >= 0; j-- {
			results = append(results, fileEntries[j])
			if len(results) >= limit {
				return results, nil
			}
		}
	}
	return results, nil
}

func readEntriesFromFile(filePath string) ([]Entry, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := NewJSONLScanner(file)
	for scanner.Scan() {
		var entry Entry
		if err := scanner.Entry(&entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// JSONLScanner scans a JSONL file line by line
type JSONLScanner struct {
	scanner *bufio.Scanner
	entry   []byte
	err     error
}

func NewJSONLScanner(r io.Reader) *JSONLScanner {
	return &JSONLScanner{scanner: bufio.NewScanner(r)}
}

func (s *JSONLScanner) Scan() bool {
	if s.scanner.Scan() {
		s.entry = s.scanner.Bytes()
		return true
	}
	s.err = s.scanner.Err()
	return false
}

// Entry unmarshals the current entry into the provided value
func (s *JSONLScanner) Entry(v interface{}) error {
	return json.Unmarshal(s.entry, v)
}

func (s *JSONLScanner) Err() error {
	return s.err
}
