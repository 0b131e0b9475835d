package merge

import (
	"github.com/ar-conmit/hedera-mirror-node/domain"
)

type entityStrategy struct{ overwrite }

func (entityStrategy) Merge(base, incoming domain.Fields) domain.Fields {
	in := incoming.(*domain.EntityFields)
	b, _ := base.(*domain.EntityFields)
	out := mergeEntity(b, in)
	return &out
}

func mergeEntity(base, in *domain.EntityFields) domain.EntityFields {
	if base == nil {
		return *in
	}
	return domain.EntityFields{
		Alias:                         in.Alias.Or(base.Alias),
		AutoRenewAccountID:            in.AutoRenewAccountID.Or(base.AutoRenewAccountID),
		AutoRenewPeriod:               in.AutoRenewPeriod.Or(base.AutoRenewPeriod),
		CreatedTimestamp:              in.CreatedTimestamp.Or(base.CreatedTimestamp),
		Deleted:                       in.Deleted.Or(base.Deleted),
		EthereumNonce:                 in.EthereumNonce.Or(base.EthereumNonce),
		ExpirationTimestamp:           in.ExpirationTimestamp.Or(base.ExpirationTimestamp),
		Key:                           in.Key.Or(base.Key),
		MaxAutomaticTokenAssociations: in.MaxAutomaticTokenAssociations.Or(base.MaxAutomaticTokenAssociations),
		Memo:                          in.Memo.Or(base.Memo),
		ProxyAccountID:                in.ProxyAccountID.Or(base.ProxyAccountID),
		ReceiverSigRequired:           in.ReceiverSigRequired.Or(base.ReceiverSigRequired),
		SubmitKey:                     in.SubmitKey.Or(base.SubmitKey),
		Kind:                          in.Kind.Or(base.Kind),
	}
}

type contractStrategy struct{ overwrite }

func (contractStrategy) Merge(base, incoming domain.Fields) domain.Fields {
	in := incoming.(*domain.ContractFields)
	b, _ := base.(*domain.ContractFields)
	if b == nil {
		out := *in
		return &out
	}
	return &domain.ContractFields{
		EntityFields: mergeEntity(&b.EntityFields, &in.EntityFields),
		EvmAddress:   in.EvmAddress.Or(b.EvmAddress),
		FileID:       in.FileID.Or(b.FileID),
		Initcode:     in.Initcode.Or(b.Initcode),
		ObtainerID:   in.ObtainerID.Or(b.ObtainerID),
	}
}

type cryptoAllowanceStrategy struct{ overwrite }

func (cryptoAllowanceStrategy) Merge(base, incoming domain.Fields) domain.Fields {
	in := incoming.(*domain.CryptoAllowanceFields)
	b, _ := base.(*domain.CryptoAllowanceFields)
	if b == nil {
		out := *in
		return &out
	}
	return &domain.CryptoAllowanceFields{
		Amount:         in.Amount.Or(b.Amount),
		PayerAccountID: in.PayerAccountID.Or(b.PayerAccountID),
	}
}

type nftAllowanceStrategy struct{ overwrite }

func (nftAllowanceStrategy) Merge(base, incoming domain.Fields) domain.Fields {
	in := incoming.(*domain.NftAllowanceFields)
	b, _ := base.(*domain.NftAllowanceFields)
	if b == nil {
		out := *in
		return &out
	}
	return &domain.NftAllowanceFields{
		ApprovedForAll: in.ApprovedForAll.Or(b.ApprovedForAll),
		PayerAccountID: in.PayerAccountID.Or(b.PayerAccountID),
	}
}

type tokenAllowanceStrategy struct{ overwrite }

func (tokenAllowanceStrategy) Merge(base, incoming domain.Fields) domain.Fields {
	in := incoming.(*domain.TokenAllowanceFields)
	b, _ := base.(*domain.TokenAllowanceFields)
	if b == nil {
		out := *in
		return &out
	}
	return &domain.TokenAllowanceFields{
		Amount:         in.Amount.Or(b.Amount),
		PayerAccountID: in.PayerAccountID.Or(b.PayerAccountID),
	}
}

type scheduleStrategy struct{ overwrite }

// Merge tolerates a missing create: an executed-only event on an unknown
// schedule yields a standalone row.
func (scheduleStrategy) Merge(base, incoming domain.Fields) domain.Fields {
	in := incoming.(*domain.ScheduleFields)
	b, _ := base.(*domain.ScheduleFields)
	if b == nil {
		out := *in
		return &out
	}
	return &domain.ScheduleFields{
		CreatedTimestamp:  in.CreatedTimestamp.Or(b.CreatedTimestamp),
		CreatorAccountID:  in.CreatorAccountID.Or(b.CreatorAccountID),
		ExecutedTimestamp: in.ExecutedTimestamp.Or(b.ExecutedTimestamp),
		ExpirationTime:    in.ExpirationTime.Or(b.ExpirationTime),
		PayerAccountID:    in.PayerAccountID.Or(b.PayerAccountID),
		TransactionBody:   in.TransactionBody.Or(b.TransactionBody),
		WaitForExpiry:     in.WaitForExpiry.Or(b.WaitForExpiry),
	}
}
