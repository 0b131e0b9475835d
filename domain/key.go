package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const keySeparator = "/"

// keyArity is the number of entity id components in each type's natural key.
// Nft keys are token/serial where the serial is a positive integer.
var keyArity = map[EntityType]int{
	TypeEntity:          1,
	TypeContract:        1,
	TypeToken:           1,
	TypeSchedule:        1,
	TypeCryptoAllowance: 2,
	TypeTokenAccount:    2,
	TypeNftAllowance:    3,
	TypeTokenAllowance:  3,
	TypeNft:             2,
}

// CanonicalKey validates a natural key for the type and returns it in
// canonical shard.realm.num form.
func CanonicalKey(t EntityType, key string) (string, error) {
	arity, ok := keyArity[t]
	if !ok {
		return "", fmt.Errorf("%w: unknown entity type %q", ErrStructural, t)
	}
	parts := strings.Split(key, keySeparator)
	if len(parts) != arity {
		return "", fmt.Errorf("%w: %s key %q has %d parts, want %d", ErrStructural, t, key, len(parts), arity)
	}

	out := make([]string, len(parts))
	for i, p := range parts {
		if t == TypeNft && i == 1 {
			serial, err := strconv.ParseInt(p, 10, 64)
			if err != nil || serial <= 0 {
				return "", fmt.Errorf("%w: nft key %q has invalid serial", ErrStructural, key)
			}
			out[i] = strconv.FormatInt(serial, 10)
			continue
		}
		id, err := ParseEntityID(p)
		if err != nil {
			return "", fmt.Errorf("%s key %q: %w", t, key, err)
		}
		out[i] = id.String()
	}
	return strings.Join(out, keySeparator), nil
}

func EntityKey(id EntityID) string { return id.String() }

func CryptoAllowanceKey(owner, spender EntityID) string {
	return owner.String() + keySeparator + spender.String()
}

func NftAllowanceKey(owner, spender, token EntityID) string {
	return owner.String() + keySeparator + spender.String() + keySeparator + token.String()
}

func TokenAllowanceKey(owner, spender, token EntityID) string {
	return NftAllowanceKey(owner, spender, token)
}

func TokenAccountKey(token, account EntityID) string {
	return token.String() + keySeparator + account.String()
}

func NftKey(token EntityID, serial int64) string {
	return token.String() + keySeparator + strconv.FormatInt(serial, 10)
}

// KeyPart returns the i-th component of a canonical key.
func KeyPart(key string, i int) (string, bool) {
	parts := strings.Split(key, keySeparator)
	if i < 0 || i >= len(parts) {
		return "", false
	}
	return parts[i], true
}
