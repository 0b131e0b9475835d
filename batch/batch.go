package batch

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ar-conmit/hedera-mirror-node/domain"
	"github.com/ar-conmit/hedera-mirror-node/merge"
)

var ErrSealed = errors.New("batch is sealed")

// Partial is the merged state of all mutations of one record at one timestamp.
type Partial struct {
	Timestamp int64
	Fields    domain.Fields
}

// Staged collects the partial states of one record within a record file,
// ordered by timestamp. Each distinct timestamp becomes one version at commit.
type Staged struct {
	Type     domain.EntityType
	Key      string
	partials []Partial
}

func (s *Staged) Partials() []Partial {
	out := make([]Partial, len(s.partials))
	copy(out, s.partials)
	return out
}

// Lower is the first timestamp staged for the record.
func (s *Staged) Lower() int64 { return s.partials[0].Timestamp }

func (s *Staged) LastModified() int64 { return s.partials[len(s.partials)-1].Timestamp }

type stageKey struct {
	typ domain.EntityType
	key string
}

// Batch accumulates the mutations of one record file. It never touches the
// store; reconciliation with persisted state happens in the committer.
type Batch struct {
	registry *merge.Registry
	arena    []*Staged
	index    map[stageKey]int
	pending  []domain.Mutation
	events   []domain.Event
	applied  int
	sealed   bool
	err      error
}

func New(registry *merge.Registry) *Batch {
	b := &Batch{registry: registry}
	b.Open()
	return b
}

// Open clears all staged state.
func (b *Batch) Open() {
	b.arena = nil
	b.index = make(map[stageKey]int)
	b.pending = nil
	b.events = nil
	b.applied = 0
	b.sealed = false
	b.err = nil
}

// Apply merges one mutation into the staged state. A structural defect fails
// the batch and every later Apply returns the same error.
func (b *Batch) Apply(m domain.Mutation) error {
	if b.sealed {
		return ErrSealed
	}
	if b.err != nil {
		return b.err
	}

	m, err := m.Normalize()
	if err == nil {
		err = b.apply(m)
	}
	if err != nil {
		b.err = fmt.Errorf("mutation %d: %w", b.applied, err)
		return b.err
	}
	b.applied++
	return nil
}

// Append records an append-only event. Events are written as given and take
// no part in the merge; an invalid event fails the batch like a structural
// mutation defect.
func (b *Batch) Append(e domain.Event) error {
	if b.sealed {
		return ErrSealed
	}
	if b.err != nil {
		return b.err
	}
	if err := e.Validate(); err != nil {
		b.err = fmt.Errorf("event %d: %w", len(b.events), err)
		return b.err
	}
	b.events = append(b.events, e)
	return nil
}

func (b *Batch) apply(m domain.Mutation) error {
	s, err := b.registry.Lookup(m.Type)
	if err != nil {
		return err
	}
	if s.Gated(m.Fields) && !s.Established(b.valueAt(m.Type, m.Key, m.Timestamp)) {
		b.pending = append(b.pending, m)
		return nil
	}
	b.stage(s, m)
	b.replay(s, m.Type, m.Key)
	return nil
}

func (b *Batch) stage(s merge.Strategy, m domain.Mutation) {
	k := stageKey{m.Type, m.Key}
	i, ok := b.index[k]
	if !ok {
		i = len(b.arena)
		b.arena = append(b.arena, &Staged{Type: m.Type, Key: m.Key})
		b.index[k] = i
	}
	rec := b.arena[i]

	pos := sort.Search(len(rec.partials), func(j int) bool {
		return rec.partials[j].Timestamp >= m.Timestamp
	})
	if pos < len(rec.partials) && rec.partials[pos].Timestamp == m.Timestamp {
		rec.partials[pos].Fields = s.Merge(rec.partials[pos].Fields, m.Fields)
		return
	}
	rec.partials = append(rec.partials, Partial{})
	copy(rec.partials[pos+1:], rec.partials[pos:])
	rec.partials[pos] = Partial{Timestamp: m.Timestamp, Fields: m.Fields}
}

// replay applies buffered gated mutations for the key that are now satisfied.
func (b *Batch) replay(s merge.Strategy, t domain.EntityType, key string) {
	if len(b.pending) == 0 {
		return
	}
	kept := b.pending[:0]
	for _, p := range b.pending {
		if p.Type == t && p.Key == key && s.Established(b.valueAt(t, key, p.Timestamp)) {
			b.stage(s, p)
			continue
		}
		kept = append(kept, p)
	}
	b.pending = kept
}

// valueAt folds the staged partials of a record up to and including ts.
func (b *Batch) valueAt(t domain.EntityType, key string, ts int64) domain.Fields {
	i, ok := b.index[stageKey{t, key}]
	if !ok {
		return nil
	}
	s, _ := b.registry.Lookup(t)
	var state domain.Fields
	for _, p := range b.arena[i].partials {
		if p.Timestamp > ts {
			break
		}
		state = s.Merge(state, p.Fields)
	}
	return state
}

// Value returns the merged staged state of a record, independent of the order
// in which its mutations were applied.
func (b *Batch) Value(t domain.EntityType, key string) (domain.Fields, bool) {
	key, err := domain.CanonicalKey(t, key)
	if err != nil {
		return nil, false
	}
	if _, ok := b.index[stageKey{t, key}]; !ok {
		return nil, false
	}
	const maxTimestamp = int64(^uint64(0) >> 1)
	return b.valueAt(t, key, maxTimestamp), true
}

// Records returns the staged records in first-seen order.
func (b *Batch) Records() []*Staged {
	out := make([]*Staged, len(b.arena))
	copy(out, b.arena)
	return out
}

// Pending returns gated mutations still waiting for their dependency.
func (b *Batch) Pending() []domain.Mutation {
	out := make([]domain.Mutation, len(b.pending))
	copy(out, b.pending)
	return out
}

// Events returns the appended events in arrival order.
func (b *Batch) Events() []domain.Event {
	out := make([]domain.Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *Batch) Applied() int { return b.applied }

func (b *Batch) Len() int { return len(b.arena) }

func (b *Batch) Err() error { return b.err }

// Seal freezes the batch for the committer. A failed batch cannot be sealed.
func (b *Batch) Seal() error {
	if b.err != nil {
		return b.err
	}
	b.sealed = true
	return nil
}

func (b *Batch) Sealed() bool { return b.sealed }
