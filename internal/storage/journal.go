package storage

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"topwr_rag/pkg"

	"github.com/bytedance/sonic"
)

// FileJournal appends finished exchanges to one JSON-lines file per session
type FileJournal struct {
	dir string
	mu  sync.Mutex
}

// NewFileJournal creates a journal rooted at dir
func NewFileJournal(dir string) *FileJournal {
	return &FileJournal{dir: dir}
}

// Append writes record as one line of its session's file
func (j *FileJournal) Append(ctx context.Context, record pkg.ExchangeRecord) error {
	line, err := sonic.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange record: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	f, err := os.OpenFile(j.path(record.SessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to write journal record: %w", err)
	}
	return nil
}

// Load reads every record of a session in write order
func (j *FileJournal) Load(ctx context.Context, sessionID string) ([]pkg.ExchangeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return []pkg.ExchangeRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer f.Close()

	records := []pkg.ExchangeRecord{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}
		var rec pkg.ExchangeRecord
		if err := sonic.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("failed to parse journal line %d: %w", line, err)
		}
		if rec.SessionID != sessionID {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal file: %w", err)
	}
	return records, nil
}

// path keeps the readable part of the id and appends a digest of the raw id,
// so ids that sanitize alike ("a/b", "a.b", "a_b") get distinct files.
func (j *FileJournal) path(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return filepath.Join(j.dir, sanitizeFileName(sessionID)+"-"+hex.EncodeToString(sum[:8])+".jsonl")
}

// sanitizeFileName maps a session id onto a safe file name
func sanitizeFileName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
