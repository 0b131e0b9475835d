package domain

import (
	"encoding/json"
	"fmt"
)

// EntityType tags one of the closed set of historized entity kinds. The tag is
// also the name of the entity's current table.
type EntityType string

const (
	TypeEntity          EntityType = "entity"
	TypeContract        EntityType = "contract"
	TypeCryptoAllowance EntityType = "crypto_allowance"
	TypeNftAllowance    EntityType = "nft_allowance"
	TypeTokenAllowance  EntityType = "token_allowance"
	TypeToken           EntityType = "token"
	TypeTokenAccount    EntityType = "token_account"
	TypeNft             EntityType = "nft"
	TypeSchedule        EntityType = "schedule"
)

var entityTypes = []EntityType{
	TypeEntity,
	TypeContract,
	TypeCryptoAllowance,
	TypeNftAllowance,
	TypeTokenAllowance,
	TypeToken,
	TypeTokenAccount,
	TypeNft,
	TypeSchedule,
}

// EntityTypes lists every historized type in dependency order: a type never
// depends on one that follows it.
func EntityTypes() []EntityType {
	out := make([]EntityType, len(entityTypes))
	copy(out, entityTypes)
	return out
}

func (t EntityType) Valid() bool {
	for _, et := range entityTypes {
		if et == t {
			return true
		}
	}
	return false
}

func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown entity type %q", ErrStructural, s)
	}
	return t, nil
}

// HistoryTable is the table holding closed intervals for the type.
func (t EntityType) HistoryTable() string { return string(t) + "_history" }

// NewFields returns an empty field set for the type.
func (t EntityType) NewFields() (Fields, error) {
	switch t {
	case TypeEntity:
		return &EntityFields{}, nil
	case TypeContract:
		return &ContractFields{}, nil
	case TypeCryptoAllowance:
		return &CryptoAllowanceFields{}, nil
	case TypeNftAllowance:
		return &NftAllowanceFields{}, nil
	case TypeTokenAllowance:
		return &TokenAllowanceFields{}, nil
	case TypeToken:
		return &TokenFields{}, nil
	case TypeTokenAccount:
		return &TokenAccountFields{}, nil
	case TypeNft:
		return &NftFields{}, nil
	case TypeSchedule:
		return &ScheduleFields{}, nil
	}
	return nil, fmt.Errorf("%w: unknown entity type %q", ErrStructural, t)
}

// DecodeFields unmarshals a persisted or streamed field set of the given type.
func DecodeFields(t EntityType, raw []byte) (Fields, error) {
	f, err := t.NewFields()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("%w: decode %s fields: %v", ErrStructural, t, err)
	}
	return f, nil
}
