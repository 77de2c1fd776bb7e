// Package evidence implements the append-only audit log of a pipeline run.
//
// Entries are numbered from 1 and linked by a sha256 hash over the previous
// entry's hash and the entry's own content. Order equals append order.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/metrics"
)

var (
	ErrEntryNotFound = errors.New("evidence entry not found")
	ErrBrokenChain   = errors.New("evidence chain broken")
)

// Chain is safe for concurrent use.
type Chain struct {
	mu      sync.RWMutex
	entries []Entry
	sink    Sink
	now     func() time.Time
}

// Option configures a Chain.
type Option func(*Chain)

// WithSink mirrors every append to s. A failed sink write fails the append.
func WithSink(s Sink) Option {
	return func(c *Chain) { c.sink = s }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

// NewChain returns an empty chain.
func NewChain(opts ...Option) *Chain {
	c := &Chain{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append adds an entry for data and returns the stored copy.
func (c *Chain) Append(ctx context.Context, workerID, stage string, data Payload) (Entry, error) {
	if data == nil {
		return Entry{}, fmt.Errorf("appending evidence for %s: nil payload", workerID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry{
		Seq:       uint64(len(c.entries)) + 1,
		Type:      data.EntryType(),
		WorkerID:  workerID,
		Stage:     stage,
		Timestamp: c.now().UTC(),
		Data:      clonePayload(data),
	}
	if n := len(c.entries); n > 0 {
		e.PrevHash = c.entries[n-1].Hash
	}

	hash, err := hashEntry(e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = hash

	if c.sink != nil {
		if err := c.sink.Write(ctx, e); err != nil {
			return Entry{}, fmt.Errorf("writing evidence entry %d: %w", e.Seq, err)
		}
	}

	c.entries = append(c.entries, e)
	metrics.EvidenceAppendedTotal.WithLabelValues(string(e.Type)).Inc()
	e.Data = clonePayload(e.Data)
	return e, nil
}

// Note appends a Note entry.
func (c *Chain) Note(ctx context.Context, workerID, stage, message string, fields map[string]any) (Entry, error) {
	return c.Append(ctx, workerID, stage, Note{Message: message, Fields: fields})
}

// Len returns the number of entries.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns all entries in append order.
func (c *Chain) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		e.Data = clonePayload(e.Data)
		out[i] = e
	}
	return out
}

// Entry returns the entry with the given sequence number.
func (c *Chain) Entry(seq uint64) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if seq == 0 || seq > uint64(len(c.entries)) {
		return Entry{}, fmt.Errorf("%w: seq %d", ErrEntryNotFound, seq)
	}
	e := c.entries[seq-1]
	e.Data = clonePayload(e.Data)
	return e, nil
}

// Range returns entries with from <= seq <= to.
func (c *Chain) Range(from, to uint64) []Entry {
	return FilterRange(c.Entries(), from, to)
}

// CountType returns how many entries of type t have been appended.
func (c *Chain) CountType(t EntryType) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Verify recomputes every hash link.
func (c *Chain) Verify() error {
	return VerifyEntries(c.Entries())
}

// FilterRange returns entries with from <= seq <= to, preserving order.
func FilterRange(entries []Entry, from, to uint64) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Seq >= from && e.Seq <= to {
			out = append(out, e)
		}
	}
	return out
}

// VerifyEntries checks numbering and hash links of a persisted or in-memory chain.
func VerifyEntries(entries []Entry) error {
	prev := ""
	for i, e := range entries {
		if e.Seq != uint64(i)+1 {
			return fmt.Errorf("%w: entry %d has seq %d", ErrBrokenChain, i+1, e.Seq)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d prevHash mismatch", ErrBrokenChain, e.Seq)
		}
		want, err := hashEntry(e)
		if err != nil {
			return err
		}
		if e.Hash != want {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrBrokenChain, e.Seq)
		}
		prev = e.Hash
	}
	return nil
}

type hashInput struct {
	Seq       uint64    `json:"seq"`
	Type      EntryType `json:"type"`
	WorkerID  string    `json:"workerId"`
	Stage     string    `json:"stage"`
	Timestamp string    `json:"timestamp"`
	PrevHash  string    `json:"prevHash"`
	Data      Payload   `json:"data"`
}

func hashEntry(e Entry) (string, error) {
	b, err := json.Marshal(hashInput{
		Seq:       e.Seq,
		Type:      e.Type,
		WorkerID:  e.WorkerID,
		Stage:     e.Stage,
		Timestamp: formatTimestamp(e.Timestamp),
		PrevHash:  e.PrevHash,
		Data:      e.Data,
	})
	if err != nil {
		return "", fmt.Errorf("hashing evidence entry %d: %w", e.Seq, err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
