package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Encoded layout: |0|15-bit shard|16-bit realm|32-bit num|
const (
	numBits   = 32
	realmBits = 16
	shardBits = 15

	maxNum   = 1<<numBits - 1
	maxRealm = 1<<realmBits - 1
	maxShard = 1<<shardBits - 1
)

var (
	entityIDPattern        = regexp.MustCompile(`^(\d{1,5}\.){1,2}\d{1,10}$`)
	encodedEntityIDPattern = regexp.MustCompile(`^\d{1,19}$`)
)

// EntityID is a shard.realm.num identifier packed into one integer.
type EntityID int64

// NewEntityID packs the three components, rejecting out-of-range parts.
func NewEntityID(shard, realm, num int64) (EntityID, error) {
	if shard < 0 || shard > maxShard || realm < 0 || realm > maxRealm || num < 0 || num > maxNum {
		return 0, fmt.Errorf("%w: entity id %d.%d.%d out of range", ErrStructural, shard, realm, num)
	}
	if shard == 0 && realm == 0 && num == 0 {
		return 0, fmt.Errorf("%w: null entity id", ErrStructural)
	}
	return EntityID(shard<<(numBits+realmBits) | realm<<numBits | num), nil
}

// MustEntityID is NewEntityID for constants and tests.
func MustEntityID(shard, realm, num int64) EntityID {
	id, err := NewEntityID(shard, realm, num)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseEntityID accepts shard.realm.num, realm.num (shard 0) or the encoded integer form.
func ParseEntityID(s string) (EntityID, error) {
	switch {
	case entityIDPattern.MatchString(s):
		parts := strings.Split(s, ".")
		nums := make([]int64, 3)
		offset := 3 - len(parts)
		for i, p := range parts {
			n, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: entity id %q: %v", ErrStructural, s, err)
			}
			nums[offset+i] = n
		}
		return NewEntityID(nums[0], nums[1], nums[2])
	case encodedEntityIDPattern.MatchString(s):
		encoded, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: encoded entity id %q exceeds 63 bits", ErrStructural, s)
		}
		id := EntityID(encoded)
		return NewEntityID(id.Shard(), id.Realm(), id.Num())
	default:
		return 0, fmt.Errorf("%w: malformed entity id %q", ErrStructural, s)
	}
}

func (id EntityID) Shard() int64 { return int64(id) >> (numBits + realmBits) }
func (id EntityID) Realm() int64 { return int64(id) >> numBits & maxRealm }
func (id EntityID) Num() int64   { return int64(id) & maxNum }

func (id EntityID) String() string {
	return fmt.Sprintf("%d.%d.%d", id.Shard(), id.Realm(), id.Num())
}

func (id EntityID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON accepts both the dotted string and the encoded number.
func (id *EntityID) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseEntityID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
