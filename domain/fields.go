package domain

// Fields is the mutable attribute set of one entity type. Implementations are
// pointers to the structs below and are treated as immutable once staged.
type Fields interface {
	EntityType() EntityType
}

type FreezeStatus string

const (
	FreezeNotApplicable FreezeStatus = "NOT_APPLICABLE"
	FreezeFrozen        FreezeStatus = "FROZEN"
	FreezeUnfrozen      FreezeStatus = "UNFROZEN"
)

type KycStatus string

const (
	KycNotApplicable KycStatus = "NOT_APPLICABLE"
	KycGranted       KycStatus = "GRANTED"
	KycRevoked       KycStatus = "REVOKED"
)

// EntityFields covers accounts, files and topics. SubmitKey applies to topics only.
type EntityFields struct {
	Alias                         Opt[string]   `json:"alias,omitzero"`
	AutoRenewAccountID            Opt[EntityID] `json:"auto_renew_account_id,omitzero"`
	AutoRenewPeriod               Opt[int64]    `json:"auto_renew_period,omitzero"`
	CreatedTimestamp              Opt[int64]    `json:"created_timestamp,omitzero"`
	Deleted                       Opt[bool]     `json:"deleted,omitzero"`
	EthereumNonce                 Opt[int64]    `json:"ethereum_nonce,omitzero"`
	ExpirationTimestamp           Opt[int64]    `json:"expiration_timestamp,omitzero"`
	Key                           Opt[string]   `json:"key,omitzero"`
	MaxAutomaticTokenAssociations Opt[int32]    `json:"max_automatic_token_associations,omitzero"`
	Memo                          Opt[string]   `json:"memo,omitzero"`
	ProxyAccountID                Opt[EntityID] `json:"proxy_account_id,omitzero"`
	ReceiverSigRequired           Opt[bool]     `json:"receiver_sig_required,omitzero"`
	SubmitKey                     Opt[string]   `json:"submit_key,omitzero"`
	Kind                          Opt[string]   `json:"type,omitzero"`
}

func (*EntityFields) EntityType() EntityType { return TypeEntity }

type ContractFields struct {
	EntityFields
	EvmAddress Opt[string]   `json:"evm_address,omitzero"`
	FileID     Opt[EntityID] `json:"file_id,omitzero"`
	Initcode   Opt[string]   `json:"initcode,omitzero"`
	ObtainerID Opt[EntityID] `json:"obtainer_id,omitzero"`
}

func (*ContractFields) EntityType() EntityType { return TypeContract }

type CryptoAllowanceFields struct {
	Amount         Opt[int64]    `json:"amount,omitzero"`
	PayerAccountID Opt[EntityID] `json:"payer_account_id,omitzero"`
}

func (*CryptoAllowanceFields) EntityType() EntityType { return TypeCryptoAllowance }

type NftAllowanceFields struct {
	ApprovedForAll Opt[bool]     `json:"approved_for_all,omitzero"`
	PayerAccountID Opt[EntityID] `json:"payer_account_id,omitzero"`
}

func (*NftAllowanceFields) EntityType() EntityType { return TypeNftAllowance }

type TokenAllowanceFields struct {
	Amount         Opt[int64]    `json:"amount,omitzero"`
	PayerAccountID Opt[EntityID] `json:"payer_account_id,omitzero"`
}

func (*TokenAllowanceFields) EntityType() EntityType { return TypeTokenAllowance }

// TokenFields.TotalSupply is a signed delta in mutation events and an absolute
// value once merged onto persisted state.
type TokenFields struct {
	CreatedTimestamp  Opt[int64]    `json:"created_timestamp,omitzero"`
	Decimals          Opt[int32]    `json:"decimals,omitzero"`
	FeeScheduleKey    Opt[string]   `json:"fee_schedule_key,omitzero"`
	FreezeDefault     Opt[bool]     `json:"freeze_default,omitzero"`
	FreezeKey         Opt[string]   `json:"freeze_key,omitzero"`
	InitialSupply     Opt[int64]    `json:"initial_supply,omitzero"`
	KycKey            Opt[string]   `json:"kyc_key,omitzero"`
	MaxSupply         Opt[int64]    `json:"max_supply,omitzero"`
	Name              Opt[string]   `json:"name,omitzero"`
	PauseKey          Opt[string]   `json:"pause_key,omitzero"`
	PauseStatus       Opt[string]   `json:"pause_status,omitzero"`
	SupplyKey         Opt[string]   `json:"supply_key,omitzero"`
	SupplyType        Opt[string]   `json:"supply_type,omitzero"`
	Symbol            Opt[string]   `json:"symbol,omitzero"`
	TotalSupply       Opt[int64]    `json:"total_supply,omitzero"`
	TreasuryAccountID Opt[EntityID] `json:"treasury_account_id,omitzero"`
	Kind              Opt[string]   `json:"type,omitzero"`
	WipeKey           Opt[string]   `json:"wipe_key,omitzero"`
}

func (*TokenFields) EntityType() EntityType { return TypeToken }

// TokenAccountFields.CreatedTimestamp is set only by an association event.
type TokenAccountFields struct {
	Associated           Opt[bool]         `json:"associated,omitzero"`
	AutomaticAssociation Opt[bool]         `json:"automatic_association,omitzero"`
	CreatedTimestamp     Opt[int64]        `json:"created_timestamp,omitzero"`
	FreezeStatus         Opt[FreezeStatus] `json:"freeze_status,omitzero"`
	KycStatus            Opt[KycStatus]    `json:"kyc_status,omitzero"`
}

func (*TokenAccountFields) EntityType() EntityType { return TypeTokenAccount }

// StatusOnly reports whether the mutation only toggles freeze or kyc status.
func (f *TokenAccountFields) StatusOnly() bool {
	return (f.FreezeStatus.Observed() || f.KycStatus.Observed()) &&
		!f.Associated.Observed() && !f.AutomaticAssociation.Observed() && !f.CreatedTimestamp.Observed()
}

// NftFields.CreatedTimestamp is set only by a mint event.
type NftFields struct {
	AccountID         Opt[EntityID] `json:"account_id,omitzero"`
	CreatedTimestamp  Opt[int64]    `json:"created_timestamp,omitzero"`
	DelegatingSpender Opt[EntityID] `json:"delegating_spender,omitzero"`
	Deleted           Opt[bool]     `json:"deleted,omitzero"`
	Metadata          Opt[string]   `json:"metadata,omitzero"`
	Spender           Opt[EntityID] `json:"spender,omitzero"`
}

func (*NftFields) EntityType() EntityType { return TypeNft }

type ScheduleFields struct {
	CreatedTimestamp  Opt[int64]    `json:"created_timestamp,omitzero"`
	CreatorAccountID  Opt[EntityID] `json:"creator_account_id,omitzero"`
	ExecutedTimestamp Opt[int64]    `json:"executed_timestamp,omitzero"`
	ExpirationTime    Opt[int64]    `json:"expiration_time,omitzero"`
	PayerAccountID    Opt[EntityID] `json:"payer_account_id,omitzero"`
	TransactionBody   Opt[string]   `json:"transaction_body,omitzero"`
	WaitForExpiry     Opt[bool]     `json:"wait_for_expiry,omitzero"`
}

func (*ScheduleFields) EntityType() EntityType { return TypeSchedule }
