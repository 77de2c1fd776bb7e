package evidence

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
)

// NDJSONFilename is the per-run evidence file written by the ndjson sink.
const NDJSONFilename = "evidence-chain.ndjson"

// Sink persists entries outside the process.
type Sink interface {
	Write(ctx context.Context, e Entry) error
	Load(ctx context.Context) ([]Entry, error)
	Close() error
}

// NewSink creates the sink configured by cfg for one run.
// A "none" sink returns nil, which NewChain treats as in-memory only.
func NewSink(cfg api.EvidenceConfig, runDir, runID string) (Sink, error) {
	switch cfg.Sink {
	case api.SinkNone:
		return nil, nil
	case api.SinkNDJSON:
		s, err := NewNDJSONSink(filepath.Join(runDir, NDJSONFilename))
		if err != nil {
			return nil, err
		}
		return s, nil
	case api.SinkSQLite:
		path := cfg.Path
		if path == "" {
			path = filepath.Join(runDir, "evidence.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating evidence directory: %w", err)
		}
		s, err := NewSQLiteSink(path, runID)
		if err != nil {
			return nil, err
		}
		return s, nil
	case api.SinkRedis:
		return NewRedisSink(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKeyPrefix+runID), nil
	default:
		return nil, fmt.Errorf("unknown evidence sink: %s", cfg.Sink)
	}
}

// NDJSONSink appends one JSON document per line.
type NDJSONSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewNDJSONSink opens path for appending, creating parent directories.
func NewNDJSONSink(path string) (*NDJSONSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating evidence directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening evidence file: %w", err)
	}
	return &NDJSONSink{path: path, f: f}, nil
}

func (s *NDJSONSink) Write(_ context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("appending to %s: %w", s.path, err)
	}
	return nil
}

func (s *NDJSONSink) Load(_ context.Context) ([]Entry, error) {
	return ReadNDJSON(s.path)
}

func (s *NDJSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// ReadNDJSON reads a persisted chain. Blank lines are ignored; malformed lines are an error.
func ReadNDJSON(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening evidence file: %w", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading evidence file: %w", err)
	}
	slog.Debug("loaded evidence file", "path", path, "entries", len(entries))
	return entries, nil
}
