package historize

import (
	"context"
	"sort"

	"github.com/ar-conmit/hedera-mirror-node/batch"
	"github.com/ar-conmit/hedera-mirror-node/domain"
	"github.com/ar-conmit/hedera-mirror-node/logging"
	"github.com/ar-conmit/hedera-mirror-node/merge"
	"github.com/ar-conmit/hedera-mirror-node/storage"
)

type typeRows struct {
	history []domain.VersionedRecord
	current []domain.VersionedRecord
}

// plan holds the working state of one commit. Types are reconciled in
// dependency order so a record's related state is final before it is needed.
type plan struct {
	registry *merge.Registry
	logger   *logging.ComponentLogger

	order   map[domain.EntityType][]string
	staged  map[domain.EntityType]map[string][]batch.Partial
	pending map[domain.EntityType]map[string][]domain.Mutation

	// timelines holds every version of records reconciled so far, including
	// the persisted row they closed.
	timelines map[domain.EntityType]map[string][]domain.VersionedRecord
	// related holds persisted rows of records that were not staged but are
	// depended upon.
	related map[domain.EntityType]map[string]domain.VersionedRecord

	dropped map[domain.EntityType]int
}

func newPlan(registry *merge.Registry, logger *logging.ComponentLogger, b *batch.Batch) *plan {
	p := &plan{
		registry:  registry,
		logger:    logger,
		order:     make(map[domain.EntityType][]string),
		staged:    make(map[domain.EntityType]map[string][]batch.Partial),
		pending:   make(map[domain.EntityType]map[string][]domain.Mutation),
		timelines: make(map[domain.EntityType]map[string][]domain.VersionedRecord),
		related:   make(map[domain.EntityType]map[string]domain.VersionedRecord),
		dropped:   make(map[domain.EntityType]int),
	}

	for _, rec := range b.Records() {
		if p.staged[rec.Type] == nil {
			p.staged[rec.Type] = make(map[string][]batch.Partial)
		}
		p.staged[rec.Type][rec.Key] = rec.Partials()
		p.order[rec.Type] = append(p.order[rec.Type], rec.Key)
	}

	pending := b.Pending()
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Timestamp < pending[j].Timestamp })
	for _, m := range pending {
		if p.pending[m.Type] == nil {
			p.pending[m.Type] = make(map[string][]domain.Mutation)
		}
		p.pending[m.Type][m.Key] = append(p.pending[m.Type][m.Key], m)
	}
	return p
}

// keys returns staged keys in first-seen order followed by keys that only
// have pending mutations.
func (p *plan) keys(t domain.EntityType) []string {
	keys := append([]string(nil), p.order[t]...)
	var extra []string
	for k := range p.pending[t] {
		if _, ok := p.staged[t][k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

func (p *plan) reconcile(ctx context.Context, tx storage.Tx, t domain.EntityType) (typeRows, error) {
	var rows typeRows
	keys := p.keys(t)
	if len(keys) == 0 {
		return rows, nil
	}

	s, err := p.registry.Lookup(t)
	if err != nil {
		return rows, err
	}
	persisted, err := tx.LoadCurrent(ctx, t, keys)
	if err != nil {
		return rows, err
	}
	if err := p.loadRelated(ctx, tx, s, t); err != nil {
		return rows, err
	}

	timelines := make(map[string][]domain.VersionedRecord, len(keys))
	for _, key := range keys {
		var base *domain.VersionedRecord
		if rec, ok := persisted[key]; ok {
			base = &rec
		}

		partials := p.prepareRelated(s, t, key, p.staged[t][key])
		partials = p.resolvePending(s, t, key, base, partials)
		partials = p.establish(s, t, key, base, partials)

		history, current := fold(s, t, key, base, partials)
		if current == nil {
			if base != nil {
				timelines[key] = []domain.VersionedRecord{*base}
			}
			continue
		}
		if !s.Persistable(current.Fields) {
			p.drop(t, key, current.Lower, "record was never established")
			continue
		}
		rows.history = append(rows.history, history...)
		rows.current = append(rows.current, *current)
		timelines[key] = append(append([]domain.VersionedRecord(nil), history...), *current)
	}
	p.timelines[t] = timelines
	return rows, nil
}

// fold applies partials in timestamp order on top of the persisted current
// version. Every partial after the persisted lower bound opens a new version
// and closes the previous one at its timestamp. A nil current means nothing
// changed.
func fold(s merge.Strategy, t domain.EntityType, key string, base *domain.VersionedRecord, partials []batch.Partial) ([]domain.VersionedRecord, *domain.VersionedRecord) {
	var (
		history []domain.VersionedRecord
		cur     *domain.VersionedRecord
		changed bool
	)
	if base != nil {
		c := *base
		cur = &c
	}

	for _, part := range partials {
		if cur != nil && part.Timestamp <= cur.Lower {
			cur.Fields = s.Merge(cur.Fields, part.Fields)
			changed = true
			continue
		}

		next := domain.VersionedRecord{Type: t, Key: key, Lower: part.Timestamp}
		if cur != nil {
			closed := *cur
			upper := part.Timestamp
			closed.Upper = &upper
			history = append(history, closed)
			next.Fields = s.Merge(cur.Fields, part.Fields)
		} else {
			next.Fields = s.Merge(nil, part.Fields)
		}
		cur = &next
		changed = true
	}

	if !changed {
		return nil, nil
	}
	cur.Upper = nil
	return history, cur
}

// prepareRelated fills defaults from related records and drops partials
// whose related record does not exist at their timestamp.
func (p *plan) prepareRelated(s merge.Strategy, t domain.EntityType, key string, partials []batch.Partial) []batch.Partial {
	out := make([]batch.Partial, 0, len(partials))
	for _, part := range partials {
		rt, rk, ok := s.Related(key, part.Fields)
		if !ok {
			out = append(out, part)
			continue
		}
		related := p.relatedAt(rt, rk, part.Timestamp)
		if related == nil {
			p.drop(t, key, part.Timestamp, "missing "+string(rt)+" "+rk)
			continue
		}
		part.Fields = s.Prepare(part.Fields, related)
		out = append(out, part)
	}
	return out
}

// resolvePending applies gated mutations whose record is established at
// their timestamp, counting persisted state, and drops the rest.
func (p *plan) resolvePending(s merge.Strategy, t domain.EntityType, key string, base *domain.VersionedRecord, partials []batch.Partial) []batch.Partial {
	for _, m := range p.pending[t][key] {
		if !s.Established(stateAt(s, base, partials, m.Timestamp)) {
			p.drop(t, key, m.Timestamp, "record not established")
			continue
		}
		partials = insertPartial(s, partials, m)
	}
	return partials
}

// establish drops partials that precede the event bringing the record into
// existence, so no version is written for an interval in which a token account
// was not yet associated or an nft not yet minted.
func (p *plan) establish(s merge.Strategy, t domain.EntityType, key string, base *domain.VersionedRecord, partials []batch.Partial) []batch.Partial {
	var state domain.Fields
	if base != nil {
		state = base.Fields
	}
	if s.Established(state) {
		return partials
	}
	for i, part := range partials {
		if s.Established(s.Merge(state, part.Fields)) {
			return partials[i:]
		}
		p.drop(t, key, part.Timestamp, "record not yet established")
	}
	return nil
}

func stateAt(s merge.Strategy, base *domain.VersionedRecord, partials []batch.Partial, ts int64) domain.Fields {
	var state domain.Fields
	if base != nil {
		state = base.Fields
	}
	for _, part := range partials {
		if part.Timestamp > ts {
			break
		}
		state = s.Merge(state, part.Fields)
	}
	return state
}

func insertPartial(s merge.Strategy, partials []batch.Partial, m domain.Mutation) []batch.Partial {
	pos := sort.Search(len(partials), func(i int) bool { return partials[i].Timestamp >= m.Timestamp })
	out := make([]batch.Partial, 0, len(partials)+1)
	out = append(out, partials[:pos]...)
	if pos < len(partials) && partials[pos].Timestamp == m.Timestamp {
		out = append(out, batch.Partial{Timestamp: m.Timestamp, Fields: s.Merge(partials[pos].Fields, m.Fields)})
		return append(out, partials[pos+1:]...)
	}
	out = append(out, batch.Partial{Timestamp: m.Timestamp, Fields: m.Fields})
	return append(out, partials[pos:]...)
}

// loadRelated fetches persisted rows that staged records of type t depend on
// and that were not reconciled in this commit.
func (p *plan) loadRelated(ctx context.Context, tx storage.Tx, s merge.Strategy, t domain.EntityType) error {
	missing := make(map[domain.EntityType]map[string]struct{})
	for key, partials := range p.staged[t] {
		for _, part := range partials {
			rt, rk, ok := s.Related(key, part.Fields)
			if !ok {
				continue
			}
			if _, seen := p.timelines[rt][rk]; seen {
				continue
			}
			if missing[rt] == nil {
				missing[rt] = make(map[string]struct{})
			}
			missing[rt][rk] = struct{}{}
		}
	}

	for rt, set := range missing {
		loaded, err := tx.LoadCurrent(ctx, rt, sortedKeys(set))
		if err != nil {
			return err
		}
		if p.related[rt] == nil {
			p.related[rt] = make(map[string]domain.VersionedRecord)
		}
		for k, rec := range loaded {
			p.related[rt][k] = rec
		}
	}
	return nil
}

// relatedAt returns the state of a related record valid at ts, or nil.
func (p *plan) relatedAt(t domain.EntityType, key string, ts int64) domain.Fields {
	if timeline, ok := p.timelines[t][key]; ok {
		for _, v := range timeline {
			if v.Contains(ts) {
				return v.Fields
			}
		}
		return nil
	}
	if rec, ok := p.related[t][key]; ok {
		return rec.Fields
	}
	return nil
}

func (p *plan) drop(t domain.EntityType, key string, ts int64, reason string) {
	p.dropped[t]++
	p.logger.Debug().
		Str("entity_type", string(t)).
		Str("key", key).
		Int64("timestamp", ts).
		Str("reason", reason).
		Msg("Dropping mutation with missing dependency")
}
