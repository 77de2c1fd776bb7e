package evidence

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// EntryType discriminates the payload carried by an Entry.
// The string values are persisted; do not rename.
type EntryType string

const (
	TypeNote    EntryType = "note"
	TypeLLMCall EntryType = "llm_call"
)

// Payload is implemented by every known entry shape.
type Payload interface {
	EntryType() EntryType
}

// Note is a free-form progress or decision record.
type Note struct {
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (Note) EntryType() EntryType { return TypeNote }

// LLMCall records one inference request/response pair.
type LLMCall struct {
	Role             string  `json:"role"`
	Model            string  `json:"model,omitempty"`
	SystemPrompt     string  `json:"systemPrompt,omitempty"`
	Prompt           string  `json:"prompt"`
	MaxTokens        int     `json:"maxTokens,omitempty"`
	Temperature      float64 `json:"temperature"`
	Response         string  `json:"response,omitempty"`
	ResponseChars    int     `json:"responseChars"`
	StopReason       string  `json:"stopReason,omitempty"`
	PromptTokens     int     `json:"promptTokens,omitempty"`
	CompletionTokens int     `json:"completionTokens,omitempty"`
	DurationMs       int64   `json:"durationMs"`
	Error            string  `json:"error,omitempty"`
}

func (LLMCall) EntryType() EntryType { return TypeLLMCall }

// Entry is one immutable link of the chain.
type Entry struct {
	Seq       uint64
	Type      EntryType
	WorkerID  string
	Stage     string
	Timestamp time.Time
	PrevHash  string
	Hash      string
	Data      Payload
}

type entryJSON struct {
	Seq       uint64          `json:"seq"`
	Type      EntryType       `json:"type"`
	WorkerID  string          `json:"workerId"`
	Stage     string          `json:"stage"`
	Timestamp string          `json:"timestamp"`
	PrevHash  string          `json:"prevHash,omitempty"`
	Hash      string          `json:"hash"`
	Data      json.RawMessage `json:"data"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", e.Type, err)
	}
	return json.Marshal(entryJSON{
		Seq:       e.Seq,
		Type:      e.Type,
		WorkerID:  e.WorkerID,
		Stage:     e.Stage,
		Timestamp: formatTimestamp(e.Timestamp),
		PrevHash:  e.PrevHash,
		Hash:      e.Hash,
		Data:      data,
	})
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	payload, err := decodePayload(raw.Type, raw.Data)
	if err != nil {
		return err
	}

	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("parsing timestamp of entry %d: %w", raw.Seq, err)
	}

	*e = Entry{
		Seq:       raw.Seq,
		Type:      raw.Type,
		WorkerID:  raw.WorkerID,
		Stage:     raw.Stage,
		Timestamp: ts,
		PrevHash:  raw.PrevHash,
		Hash:      raw.Hash,
		Data:      payload,
	}
	return nil
}

func decodePayload(t EntryType, data json.RawMessage) (Payload, error) {
	switch t {
	case TypeNote:
		var n Note
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("decoding note payload: %w", err)
		}
		return n, nil
	case TypeLLMCall:
		var c LLMCall
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decoding llm_call payload: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown entry type: %q", t)
	}
}

func clonePayload(p Payload) Payload {
	if n, ok := p.(Note); ok {
		n.Fields = cloneFields(n.Fields)
		return n
	}
	return p
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the container types notes carry. Other values are
// returned as-is.
func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneFields(v)
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(v)
	case []int:
		return slices.Clone(v)
	case map[string]string:
		return maps.Clone(v)
	default:
		return v
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
