package merge

import (
	"fmt"

	"github.com/ar-conmit/hedera-mirror-node/domain"
)

// Strategy is the merge and dependency policy for one entity type.
// Implementations never mutate their arguments.
type Strategy interface {
	Type() domain.EntityType

	// Merge folds incoming over base. base may be nil.
	Merge(base, incoming domain.Fields) domain.Fields

	// Established reports whether state carries the event that brings the
	// record into existence (an association for token accounts, a mint for nfts).
	Established(state domain.Fields) bool

	// Gated reports whether incoming may only apply to an established record.
	Gated(incoming domain.Fields) bool

	// Related names the record incoming depends on, if any.
	Related(key string, incoming domain.Fields) (domain.EntityType, string, bool)

	// Prepare fills defaults on incoming from the related record's state.
	Prepare(incoming, related domain.Fields) domain.Fields

	// Persistable reports whether a fully folded state may be written.
	Persistable(state domain.Fields) bool
}

// overwrite is the default policy: every record exists from its first event
// and has no dependencies.
type overwrite struct {
	typ domain.EntityType
}

func (o overwrite) Type() domain.EntityType { return o.typ }

func (overwrite) Established(state domain.Fields) bool { return state != nil }

func (overwrite) Gated(domain.Fields) bool { return false }

func (overwrite) Related(string, domain.Fields) (domain.EntityType, string, bool) {
	return "", "", false
}

func (overwrite) Prepare(incoming, _ domain.Fields) domain.Fields { return incoming }

func (overwrite) Persistable(state domain.Fields) bool { return state != nil }

// Registry dispatches merge rules by entity type.
type Registry struct {
	strategies map[domain.EntityType]Strategy
}

// NewRegistry returns a registry covering every entity type.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[domain.EntityType]Strategy)}
	for _, s := range []Strategy{
		entityStrategy{overwrite{domain.TypeEntity}},
		contractStrategy{overwrite{domain.TypeContract}},
		cryptoAllowanceStrategy{overwrite{domain.TypeCryptoAllowance}},
		nftAllowanceStrategy{overwrite{domain.TypeNftAllowance}},
		tokenAllowanceStrategy{overwrite{domain.TypeTokenAllowance}},
		tokenStrategy{overwrite{domain.TypeToken}},
		tokenAccountStrategy{overwrite{domain.TypeTokenAccount}},
		nftStrategy{overwrite{domain.TypeNft}},
		scheduleStrategy{overwrite{domain.TypeSchedule}},
	} {
		r.strategies[s.Type()] = s
	}
	return r
}

func (r *Registry) Lookup(t domain.EntityType) (Strategy, error) {
	s, ok := r.strategies[t]
	if !ok {
		return nil, fmt.Errorf("%w: no merge strategy for %q", domain.ErrStructural, t)
	}
	return s, nil
}

// Merge folds incoming over base using the type's strategy.
func (r *Registry) Merge(t domain.EntityType, base, incoming domain.Fields) (domain.Fields, error) {
	s, err := r.Lookup(t)
	if err != nil {
		return nil, err
	}
	if incoming == nil {
		return base, nil
	}
	if incoming.EntityType() != t || (base != nil && base.EntityType() != t) {
		return nil, fmt.Errorf("%w: %s merge given mismatched field sets", domain.ErrStructural, t)
	}
	return s.Merge(base, incoming), nil
}

// Satisfied reports whether state satisfies a dependency on a record of type t.
func (r *Registry) Satisfied(t domain.EntityType, state domain.Fields) bool {
	s, ok := r.strategies[t]
	return ok && state != nil && s.Established(state)
}
