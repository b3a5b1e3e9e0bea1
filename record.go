package kvs

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// delimiter terminates every encoded record in the log file.
const delimiter = '\n'

// RecordKind distinguishes the two record variants a log can hold.
type RecordKind int

const (
	// KindSet records that Key now holds Value.
	KindSet RecordKind = iota
	// KindRemove is a tombstone marking Key deleted.
	KindRemove
)

// Record is one Set or Remove entry, the unit of log append. Value is
// only meaningful when Kind is KindSet.
type Record struct {
	Kind  RecordKind
	Key   string
	Value string
}

// NewSetRecord builds a Set(key, value) record.
func NewSetRecord(key, value string) Record {
	return Record{Kind: KindSet, Key: key, Value: value}
}

// NewRemoveRecord builds a Remove(key) tombstone record.
func NewRemoveRecord(key string) Record {
	return Record{Kind: KindRemove, Key: key}
}

// wireRecord is the externally-tagged JSON shape a Record marshals to:
// {"Set":["k","v"]} or {"Remove":"k"}. Exactly one field is ever set.
type wireRecord struct {
	Set    *[2]string `json:"Set,omitempty"`
	Remove *string    `json:"Remove,omitempty"`
}

// MarshalJSON produces the externally-tagged wire form used on disk.
func (r Record) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindSet:
		pair := [2]string{r.Key, r.Value}
		return json.Marshal(wireRecord{Set: &pair})
	case KindRemove:
		key := r.Key
		return json.Marshal(wireRecord{Remove: &key})
	default:
		return nil, fmt.Errorf("kvs: unknown record kind %d", r.Kind)
	}
}

// UnmarshalJSON parses the tagged-object wire form. It rejects objects
// that name neither or both variants.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Set != nil && w.Remove == nil:
		*r = Record{Kind: KindSet, Key: w.Set[0], Value: w.Set[1]}
	case w.Remove != nil && w.Set == nil:
		*r = Record{Kind: KindRemove, Key: *w.Remove}
	default:
		return fmt.Errorf("kvs: record names neither Set nor Remove: %s", data)
	}
	return nil
}

// EncodeRecord serializes r into its self-delimited on-disk form and
// reports the exact byte length the encoding occupies, including the
// terminating delimiter.
func EncodeRecord(r Record) ([]byte, int, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, 0, fmt.Errorf("kvs: encode record: %w", err)
	}
	data = append(data, delimiter)
	return data, len(data), nil
}

// DecodeRecord parses one delimited record. line must not include the
// trailing delimiter.
func DecodeRecord(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// validateKey rejects keys that cannot be safely appended to the log:
// empty keys and keys containing the record delimiter byte.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	if strings.IndexByte(key, delimiter) != -1 {
		return fmt.Errorf("%w: key contains delimiter byte", ErrInvalidArgument)
	}
	return nil
}

// validateValue rejects values containing the record delimiter byte.
func validateValue(value string) error {
	if strings.IndexByte(value, delimiter) != -1 {
		return fmt.Errorf("%w: value contains delimiter byte", ErrInvalidArgument)
	}
	return nil
}
