package nutrition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultKey names the record returned for labels without an entry.
const DefaultKey = "default"

var ErrMissingDefault = errors.New(`nutrition data has no "default" entry`)

// Catalog maps lower-cased food labels to opaque nutrition records.
// It is immutable after construction and safe for concurrent reads.
type Catalog struct {
	records  map[string]json.RawMessage
	fallback json.RawMessage
}

// Load reads a JSON object of label -> record from path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read nutrition data: %w", err)
	}

	var records map[string]json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to parse nutrition data: %w", err)
	}
	if records == nil {
		return nil, errors.New("nutrition data must be a JSON object")
	}
	return New(records)
}

func New(records map[string]json.RawMessage) (*Catalog, error) {
	normalized := make(map[string]json.RawMessage, len(records))
	for label, record := range records {
		key := normalize(label)
		if _, dup := normalized[key]; dup {
			return nil, fmt.Errorf("nutrition data has duplicate label %q after lower-casing", key)
		}
		if len(bytes.TrimSpace(record)) == 0 {
			return nil, fmt.Errorf("nutrition record for %q is empty", label)
		}
		normalized[key] = record
	}

	fallback, ok := normalized[DefaultKey]
	if !ok {
		return nil, ErrMissingDefault
	}
	return &Catalog{records: normalized, fallback: fallback}, nil
}

// Lookup returns the record for label, or the default record. It never fails.
func (c *Catalog) Lookup(label string) json.RawMessage {
	if record, ok := c.records[normalize(label)]; ok {
		return record
	}
	return c.fallback
}

func (c *Catalog) Has(label string) bool {
	_, ok := c.records[normalize(label)]
	return ok
}

func (c *Catalog) Default() json.RawMessage {
	return c.fallback
}

// Len counts entries, the default included.
func (c *Catalog) Len() int {
	return len(c.records)
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
