package domain

import (
	"fmt"
	"reflect"
)

// Mutation is one partial state change for one entity, as decoded from a
// transaction. Only observed fields of Fields take part in the merge.
type Mutation struct {
	Type      EntityType
	Key       string
	Timestamp int64
	Fields    Fields
}

// Normalize validates the mutation and canonicalizes its key.
func (m Mutation) Normalize() (Mutation, error) {
	if !m.Type.Valid() {
		return m, fmt.Errorf("%w: unknown entity type %q", ErrStructural, m.Type)
	}
	if m.Timestamp <= 0 {
		return m, fmt.Errorf("%w: %s %s has non-positive timestamp %d", ErrStructural, m.Type, m.Key, m.Timestamp)
	}
	if isNil(m.Fields) {
		return m, fmt.Errorf("%w: %s %s has no fields", ErrStructural, m.Type, m.Key)
	}
	if m.Fields.EntityType() != m.Type {
		return m, fmt.Errorf("%w: %s %s carries %s fields", ErrStructural, m.Type, m.Key, m.Fields.EntityType())
	}
	key, err := CanonicalKey(m.Type, m.Key)
	if err != nil {
		return m, err
	}
	m.Key = key
	return m, nil
}

// VersionedRecord is one validity interval [Lower, Upper) of an entity's
// state. A nil Upper marks the current version.
type VersionedRecord struct {
	Type   EntityType
	Key    string
	Fields Fields
	Lower  int64
	Upper  *int64
}

func (r VersionedRecord) IsCurrent() bool { return r.Upper == nil }

// Contains reports whether ts falls inside the validity interval.
func (r VersionedRecord) Contains(ts int64) bool {
	return ts >= r.Lower && (r.Upper == nil || ts < *r.Upper)
}

// RecordFile is the checkpoint descriptor written with every committed batch.
type RecordFile struct {
	Index          int64  `json:"index"`
	Name           string `json:"name"`
	ConsensusStart int64  `json:"consensus_start"`
	ConsensusEnd   int64  `json:"consensus_end"`
	Hash           string `json:"hash"`
	PrevHash       string `json:"prev_hash,omitempty"`
	Count          int64  `json:"count"`
	HapiVersion    string `json:"hapi_version,omitempty"`
	LoadStart      int64  `json:"load_start,omitempty"`
	LoadEnd        int64  `json:"load_end,omitempty"`
}

func (rf *RecordFile) Validate() error {
	if rf.Index < 0 {
		return fmt.Errorf("%w: record file %q has negative index", ErrStructural, rf.Name)
	}
	if rf.Hash == "" {
		return fmt.Errorf("%w: record file %q has no hash", ErrStructural, rf.Name)
	}
	if rf.ConsensusEnd < rf.ConsensusStart {
		return fmt.Errorf("%w: record file %q ends before it starts", ErrStructural, rf.Name)
	}
	return nil
}

// isNil reports a missing value, including a typed nil pointer held in an
// interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
