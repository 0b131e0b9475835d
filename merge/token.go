package merge

import (
	"github.com/ar-conmit/hedera-mirror-node/domain"
)

type tokenStrategy struct{ overwrite }

// Merge overwrites every field except TotalSupply, which sums signed deltas
// without clamping.
func (tokenStrategy) Merge(base, incoming domain.Fields) domain.Fields {
	in := incoming.(*domain.TokenFields)
	b, _ := base.(*domain.TokenFields)
	if b == nil {
		out := *in
		return &out
	}
	return &domain.TokenFields{
		CreatedTimestamp:  in.CreatedTimestamp.Or(b.CreatedTimestamp),
		Decimals:          in.Decimals.Or(b.Decimals),
		FeeScheduleKey:    in.FeeScheduleKey.Or(b.FeeScheduleKey),
		FreezeDefault:     in.FreezeDefault.Or(b.FreezeDefault),
		FreezeKey:         in.FreezeKey.Or(b.FreezeKey),
		InitialSupply:     in.InitialSupply.Or(b.InitialSupply),
		KycKey:            in.KycKey.Or(b.KycKey),
		MaxSupply:         in.MaxSupply.Or(b.MaxSupply),
		Name:              in.Name.Or(b.Name),
		PauseKey:          in.PauseKey.Or(b.PauseKey),
		PauseStatus:       in.PauseStatus.Or(b.PauseStatus),
		SupplyKey:         in.SupplyKey.Or(b.SupplyKey),
		SupplyType:        in.SupplyType.Or(b.SupplyType),
		Symbol:            in.Symbol.Or(b.Symbol),
		TotalSupply:       accumulate(b.TotalSupply, in.TotalSupply),
		TreasuryAccountID: in.TreasuryAccountID.Or(b.TreasuryAccountID),
		Kind:              in.Kind.Or(b.Kind),
		WipeKey:           in.WipeKey.Or(b.WipeKey),
	}
}

func accumulate(base, delta domain.Opt[int64]) domain.Opt[int64] {
	d, ok := delta.Get()
	if !ok {
		return delta.Or(base)
	}
	b, ok := base.Get()
	if !ok {
		return delta
	}
	return domain.Some(b + d)
}

type tokenAccountStrategy struct{ overwrite }

func (tokenAccountStrategy) Merge(base, incoming domain.Fields) domain.Fields {
	in := incoming.(*domain.TokenAccountFields)
	b, _ := base.(*domain.TokenAccountFields)
	if b == nil {
		out := *in
		return &out
	}
	return &domain.TokenAccountFields{
		Associated:           in.Associated.Or(b.Associated),
		AutomaticAssociation: in.AutomaticAssociation.Or(b.AutomaticAssociation),
		CreatedTimestamp:     in.CreatedTimestamp.Or(b.CreatedTimestamp),
		FreezeStatus:         in.FreezeStatus.Or(b.FreezeStatus),
		KycStatus:            in.KycStatus.Or(b.KycStatus),
	}
}

func (tokenAccountStrategy) Established(state domain.Fields) bool {
	f, ok := state.(*domain.TokenAccountFields)
	return ok && f.CreatedTimestamp.Present()
}

// Gated holds freeze and kyc toggles until the association is known.
func (tokenAccountStrategy) Gated(incoming domain.Fields) bool {
	f, ok := incoming.(*domain.TokenAccountFields)
	return ok && f.StatusOnly()
}

// Related makes an association depend on its token.
func (tokenAccountStrategy) Related(key string, incoming domain.Fields) (domain.EntityType, string, bool) {
	f, ok := incoming.(*domain.TokenAccountFields)
	if !ok || !f.CreatedTimestamp.Present() {
		return "", "", false
	}
	token, ok := domain.KeyPart(key, 0)
	return domain.TypeToken, token, ok
}

// Prepare derives the default freeze and kyc status of a new association from
// the token's keys unless the event states them.
func (tokenAccountStrategy) Prepare(incoming, related domain.Fields) domain.Fields {
	in := incoming.(*domain.TokenAccountFields)
	token, ok := related.(*domain.TokenFields)
	if !ok {
		return in
	}
	out := *in
	if !out.FreezeStatus.Observed() {
		out.FreezeStatus = domain.Some(DefaultFreezeStatus(token))
	}
	if !out.KycStatus.Observed() {
		out.KycStatus = domain.Some(DefaultKycStatus(token))
	}
	return &out
}

func (s tokenAccountStrategy) Persistable(state domain.Fields) bool {
	return s.Established(state)
}

func DefaultFreezeStatus(token *domain.TokenFields) domain.FreezeStatus {
	if _, ok := token.FreezeKey.Get(); !ok {
		return domain.FreezeNotApplicable
	}
	if token.FreezeDefault.ValueOr(false) {
		return domain.FreezeFrozen
	}
	return domain.FreezeUnfrozen
}

func DefaultKycStatus(token *domain.TokenFields) domain.KycStatus {
	if _, ok := token.KycKey.Get(); !ok {
		return domain.KycNotApplicable
	}
	return domain.KycRevoked
}

type nftStrategy struct{ overwrite }

// Merge is field-wise so a mint and a transfer at the same timestamp combine
// to the same state in either order.
func (nftStrategy) Merge(base, incoming domain.Fields) domain.Fields {
	in := incoming.(*domain.NftFields)
	b, _ := base.(*domain.NftFields)
	if b == nil {
		out := *in
		return &out
	}
	return &domain.NftFields{
		AccountID:         in.AccountID.Or(b.AccountID),
		CreatedTimestamp:  in.CreatedTimestamp.Or(b.CreatedTimestamp),
		DelegatingSpender: in.DelegatingSpender.Or(b.DelegatingSpender),
		Deleted:           in.Deleted.Or(b.Deleted),
		Metadata:          in.Metadata.Or(b.Metadata),
		Spender:           in.Spender.Or(b.Spender),
	}
}

func (nftStrategy) Established(state domain.Fields) bool {
	f, ok := state.(*domain.NftFields)
	return ok && f.CreatedTimestamp.Present()
}

// Persistable drops nfts whose mint is neither staged nor persisted.
func (s nftStrategy) Persistable(state domain.Fields) bool {
	return s.Established(state)
}
