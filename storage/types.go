package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata holds caller supplied fields merged into a Pointer at write time.
type Metadata map[string]interface{}

// Reserved pointer field names; metadata entries using them are dropped.
const (
	fieldStart    = "start"
	fieldLength   = "length"
	fieldSequence = "sequence"
)

// Clean returns a copy without reserved field names, or nil when nothing remains.
func (m Metadata) Clean() Metadata {
	var ret Metadata
	for k, v := range m {
		switch k {
		case fieldStart, fieldLength, fieldSequence:
			continue
		}
		if ret == nil {
			ret = make(Metadata, len(m))
		}
		ret[k] = v
	}
	return ret
}

// Normalize returns a cleaned copy in the form it takes after a JSON round
// trip: numbers become float64, nested values become maps and slices.
// The result shares no memory with m.
func (m Metadata) Normalize() (Metadata, error) {
	cleaned := m.Clean()
	if cleaned == nil {
		return nil, nil
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	var ret Metadata
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return ret, nil
}

// Pointer locates a serialized Record inside the value log.
//
// Start: byte offset of the record within the value log.
// Length: size of the serialized record in bytes.
// Sequence: mirrors Record.Sequence so versions can be filtered without a read.
// Meta: caller metadata, stored flat next to the fields above.
type Pointer struct {
	Start    int64
	Length   int64
	Sequence uint64
	Meta     Metadata
}

// End returns the offset just past the record.
func (p *Pointer) End() int64 {
	return p.Start + p.Length
}

// Clone returns a deep enough copy for independent mutation of Meta.
func (p *Pointer) Clone() *Pointer {
	if p == nil {
		return nil
	}
	ret := *p
	if p.Meta != nil {
		ret.Meta = make(Metadata, len(p.Meta))
		for k, v := range p.Meta {
			ret.Meta[k] = v
		}
	}
	return &ret
}

// MarshalJSON writes the pointer as a flat object: core fields plus metadata.
func (p Pointer) MarshalJSON() ([]byte, error) {
	fields := make(map[string]interface{}, len(p.Meta)+3)
	for k, v := range p.Meta {
		switch k {
		case fieldStart, fieldLength, fieldSequence:
			continue
		}
		fields[k] = v
	}
	fields[fieldStart] = p.Start
	fields[fieldLength] = p.Length
	fields[fieldSequence] = p.Sequence
	return json.Marshal(fields)
}

// UnmarshalJSON reads a flat pointer object, moving unknown fields into Meta.
func (p *Pointer) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*p = Pointer{}
	for k, raw := range fields {
		var err error
		switch k {
		case fieldStart:
			err = json.Unmarshal(raw, &p.Start)
		case fieldLength:
			err = json.Unmarshal(raw, &p.Length)
		case fieldSequence:
			err = json.Unmarshal(raw, &p.Sequence)
		default:
			var v interface{}
			if err = json.Unmarshal(raw, &v); err == nil {
				if p.Meta == nil {
					p.Meta = Metadata{}
				}
				p.Meta[k] = v
			}
		}
		if err != nil {
			return fmt.Errorf("pointer field %q: %w", k, err)
		}
	}
	return nil
}

// Record is one stored version of a key.
type Record struct {
	Value     json.RawMessage `json:"value,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Sequence  uint64          `json:"sequence"`
	Previous  *Pointer        `json:"previous,omitempty"`
}

// Deleted reports whether the record is a logical delete marker.
func (r *Record) Deleted() bool {
	return len(r.Value) == 0
}

// Time returns the record creation time.
func (r *Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Decode unmarshals the record value into dest; a deleted record leaves dest untouched.
func (r *Record) Decode(dest interface{}) error {
	if r.Deleted() {
		return nil
	}
	return json.Unmarshal(r.Value, dest)
}

// DecodeRecord parses serialized record bytes read at ptr.
func DecodeRecord(data []byte) (*Record, error) {
	record := &Record{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return record, nil
}

// Stats exposes basic value log metrics.
type Stats struct {
	Appends      uint64 `json:"appends"`
	BytesWritten uint64 `json:"bytesWritten"`
	BytesRead    uint64 `json:"bytesRead"`
	Size         int64  `json:"size"`
}

// ValueLog defines an append-only byte log addressed by (start, length).
// Implementations must be safe for concurrent reads and a single writer.
type ValueLog interface {
	// Append writes data at the current end and returns its location.
	// start equals the log size before the write.
	Append(data []byte) (start int64, length int64, err error)

	// Read loads length bytes at start.
	Read(start, length int64) ([]byte, error)

	// Size returns the current logical size.
	Size() int64

	// Sync flushes written data to stable storage.
	Sync() error

	// Close releases resources. After Close every call returns ErrClosed.
	Close() error

	// Stats returns best-effort metrics.
	Stats() Stats
}
