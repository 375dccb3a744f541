package search

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// SerializationVersion is the snapshot format written by Snapshot.
const SerializationVersion = 2

// Snapshot is the serializable state of an Index. Maps keyed by short
// document id use decimal string keys so the same structure encodes to JSON
// objects and msgpack maps.
type Snapshot struct {
	SerializationVersion int                       `json:"serializationVersion" msgpack:"serializationVersion"`
	DocumentCount        int                       `json:"documentCount" msgpack:"documentCount"`
	NextID               int                       `json:"nextId" msgpack:"nextId"`
	DocumentIDs          map[string]any            `json:"documentIds" msgpack:"documentIds"`
	FieldIDs             map[string]int            `json:"fieldIds" msgpack:"fieldIds"`
	FieldLength          map[string][]int          `json:"fieldLength" msgpack:"fieldLength"`
	AverageFieldLength   []float64                 `json:"averageFieldLength" msgpack:"averageFieldLength"`
	StoredFields         map[string]map[string]any `json:"storedFields" msgpack:"storedFields"`
	Index                []TermEntry               `json:"index" msgpack:"index"`
}

// TermEntry holds the postings of one term, keyed by field id and then by
// short document id. It encodes as a two element array.
//
// Version 1 snapshots nest each field's postings under a "ds" key next to
// a document frequency "df"; Load accepts both shapes.
type TermEntry struct {
	_msgpack struct{} `msgpack:",as_array"`

	Term     string
	Postings map[string]any
}

func (e TermEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Term, e.Postings})
}

func (e *TermEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: index entry has %d elements, want 2", ErrConfig, len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Term); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &e.Postings)
}

// Snapshot captures the current state of the index.
func (idx *Index) Snapshot() *Snapshot {
	snap := &Snapshot{
		SerializationVersion: SerializationVersion,
		DocumentCount:        idx.documentCount,
		NextID:               idx.nextID,
		DocumentIDs:          make(map[string]any, len(idx.documentIDs)),
		FieldIDs:             make(map[string]int, len(idx.fieldIDs)),
		FieldLength:          make(map[string][]int, len(idx.fieldLength)),
		AverageFieldLength:   append([]float64(nil), idx.avgFieldLength...),
		StoredFields:         make(map[string]map[string]any, len(idx.storedFields)),
		Index:                make([]TermEntry, 0, idx.index.Len()),
	}
	for shortID, id := range idx.documentIDs {
		snap.DocumentIDs[strconv.Itoa(shortID)] = id
	}
	for field, id := range idx.fieldIDs {
		snap.FieldIDs[field] = id
	}
	for shortID, lengths := range idx.fieldLength {
		snap.FieldLength[strconv.Itoa(shortID)] = append([]int(nil), lengths...)
	}
	for shortID, stored := range idx.storedFields {
		snap.StoredFields[strconv.Itoa(shortID)] = maps.Clone(stored)
	}
	for term, p := range idx.index.All() {
		entry := TermEntry{Term: term, Postings: make(map[string]any, len(p))}
		for fieldID, docs := range p {
			freqs := make(map[string]any, len(docs))
			for shortID, freq := range docs {
				freqs[strconv.Itoa(shortID)] = freq
			}
			entry.Postings[strconv.Itoa(fieldID)] = freqs
		}
		snap.Index = append(snap.Index, entry)
	}
	return snap
}

// MarshalJSON encodes the index snapshot.
func (idx *Index) MarshalJSON() ([]byte, error) {
	return json.Marshal(idx.Snapshot())
}

// LoadJSON restores an index from JSON produced by MarshalJSON. opts must
// match the options the index was created with.
func LoadJSON(data []byte, opts Options) (*Index, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return Load(&snap, opts)
}

// Load restores an index from a snapshot. opts must match the options the
// index was created with; functions are not part of the snapshot.
func Load(snap *Snapshot, opts Options) (*Index, error) {
	if snap.SerializationVersion != 1 && snap.SerializationVersion != 2 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, snap.SerializationVersion)
	}
	idx, err := New(opts)
	if err != nil {
		return nil, err
	}

	idx.documentCount = snap.DocumentCount
	idx.nextID = snap.NextID
	if len(snap.FieldIDs) > 0 {
		idx.fieldIDs = make(map[string]int, len(snap.FieldIDs))
		for field, id := range snap.FieldIDs {
			idx.fieldIDs[field] = id
		}
	}
	idx.avgFieldLength = make([]float64, max(len(idx.fieldIDs), len(snap.AverageFieldLength)))
	copy(idx.avgFieldLength, snap.AverageFieldLength)

	for key, id := range snap.DocumentIDs {
		shortID, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: document id key %q: %v", ErrConfig, key, err)
		}
		if !hashable(id) {
			return nil, fmt.Errorf("%w: document id of type %T", ErrConfig, id)
		}
		id = normalizeID(id)
		idx.documentIDs[shortID] = id
		idx.idToShortID[id] = shortID
	}
	for key, lengths := range snap.FieldLength {
		shortID, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: field length key %q: %v", ErrConfig, key, err)
		}
		idx.fieldLength[shortID] = append([]int(nil), lengths...)
	}
	for key, stored := range snap.StoredFields {
		shortID, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: stored fields key %q: %v", ErrConfig, key, err)
		}
		idx.storedFields[shortID] = maps.Clone(stored)
	}

	for _, entry := range snap.Index {
		p, err := decodePostings(entry.Postings, snap.SerializationVersion)
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", entry.Term, err)
		}
		idx.index.Set(entry.Term, p)
	}
	return idx, nil
}

func decodePostings(raw map[string]any, version int) (postings, error) {
	p := make(postings, len(raw))
	for fieldKey, value := range raw {
		fieldID, err := strconv.Atoi(fieldKey)
		if err != nil {
			return nil, fmt.Errorf("%w: field id %q", ErrConfig, fieldKey)
		}
		freqs, ok := asMap(value)
		if !ok {
			return nil, fmt.Errorf("%w: postings of field %q are %T", ErrConfig, fieldKey, value)
		}
		if version == 1 {
			if freqs, ok = asMap(freqs["ds"]); !ok {
				return nil, fmt.Errorf("%w: field %q has no ds entry", ErrConfig, fieldKey)
			}
		}

		docs := make(map[int]int, len(freqs))
		for docKey, f := range freqs {
			shortID, err := strconv.Atoi(docKey)
			if err != nil {
				return nil, fmt.Errorf("%w: document key %q", ErrConfig, docKey)
			}
			freq, ok := asInt(f)
			if !ok {
				return nil, fmt.Errorf("%w: frequency %v of document %q", ErrConfig, f, docKey)
			}
			docs[shortID] = freq
		}
		p[fieldID] = docs
	}
	return p, nil
}

// asMap accepts the map shapes produced by encoding/json and msgpack.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]int:
		out := make(map[string]any, len(m))
		for k, n := range m {
			out[k] = n
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, n := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = n
		}
		return out, true
	}
	return nil, false
}

// asInt converts any decoded numeric value to int.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return int(n), float32(int(n)) == n
	case float64:
		return int(n), float64(int(n)) == n
	}
	return 0, false
}
