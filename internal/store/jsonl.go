package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hitherto/hitherto/internal/regime"
	"github.com/hitherto/hitherto/internal/signal"
)

type jsonlEntry struct {
	Type  string          `json:"type"` // cycle | regime_transition | override
	Data  json.RawMessage `json:"data"`
	Event time.Time       `json:"event"`
}

// JSONL is the file-backed store: one JSON object per line, append-only.
// It is the default driver and needs no external service.
type JSONL struct {
	mu   sync.Mutex
	path string
}

func NewJSONL(path string) (*JSONL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &JSONL{path: path}, nil
}

func (s *JSONL) append(entryType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", entryType, err)
	}
	line, err := json.Marshal(jsonlEntry{Type: entryType, Data: raw, Event: time.Now().UTC()})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(string(line) + "\n"); err != nil {
		return err
	}
	return f.Sync()
}

func (s *JSONL) SaveCycle(_ context.Context, rec CycleRecord) error {
	return s.append("cycle", rec)
}

func (s *JSONL) RecordRegimeTransition(_ context.Context, t regime.Transition) error {
	return s.append("regime_transition", t)
}

func (s *JSONL) RecordOverride(_ context.Context, o signal.Override) error {
	return s.append("override", o)
}

// ActiveRegime scans the file for the last recorded transition. The file is
// append-only so the final matching line wins.
func (s *JSONL) ActiveRegime(_ context.Context) (regime.Label, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return "", 0, ErrNoRegime
	}
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	var last *regime.Transition
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var entry jsonlEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry.Type != "regime_transition" {
			continue
		}
		var t regime.Transition
		if err := json.Unmarshal(entry.Data, &t); err != nil {
			continue
		}
		last = &t
	}
	if err := scanner.Err(); err != nil {
		return "", 0, err
	}
	if last == nil {
		return "", 0, ErrNoRegime
	}
	return last.To, last.Confidence, nil
}

func (s *JSONL) Close() error { return nil }
