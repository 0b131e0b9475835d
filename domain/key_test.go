package domain

import (
	"errors"
	"testing"
)

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		name    string
		typ     EntityType
		key     string
		want    string
		wantErr bool
	}{
		{"entity", TypeEntity, "0.5", "0.0.5", false},
		{"token account", TypeTokenAccount, "0.0.100/0.0.5", "0.0.100/0.0.5", false},
		{"crypto allowance", TypeCryptoAllowance, "0.0.1/0.0.2", "0.0.1/0.0.2", false},
		{"token allowance", TypeTokenAllowance, "0.0.1/0.0.2/0.0.3", "0.0.1/0.0.2/0.0.3", false},
		{"nft", TypeNft, "0.0.100/07", "0.0.100/7", false},
		{"nft zero serial", TypeNft, "0.0.100/0", "", true},
		{"nft negative serial", TypeNft, "0.0.100/-1", "", true},
		{"wrong arity", TypeTokenAccount, "0.0.100", "", true},
		{"malformed id", TypeEntity, "0.0.x", "", true},
		{"unknown type", EntityType("topic_message"), "0.0.1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalKey(tt.typ, tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrStructural) {
					t.Fatalf("CanonicalKey() error = %v, want ErrStructural", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CanonicalKey() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanonicalKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMutationNormalize(t *testing.T) {
	tests := []struct {
		name    string
		m       Mutation
		wantErr bool
	}{
		{"valid", Mutation{Type: TypeEntity, Key: "5", Timestamp: 1, Fields: &EntityFields{}}, false},
		{"zero timestamp", Mutation{Type: TypeEntity, Key: "0.0.5", Fields: &EntityFields{}}, true},
		{"nil fields", Mutation{Type: TypeEntity, Key: "0.0.5", Timestamp: 1}, true},
		{"typed nil fields", Mutation{Type: TypeEntity, Key: "0.0.5", Timestamp: 1, Fields: (*EntityFields)(nil)}, true},
		{"mismatched fields", Mutation{Type: TypeEntity, Key: "0.0.5", Timestamp: 1, Fields: &TokenFields{}}, true},
		{"bad key", Mutation{Type: TypeToken, Key: "token", Timestamp: 1, Fields: &TokenFields{}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.m.Normalize()
			if tt.wantErr {
				if !errors.Is(err, ErrStructural) {
					t.Fatalf("Normalize() error = %v, want ErrStructural", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() unexpected error: %v", err)
			}
			if got.Key != "0.0.5" {
				t.Errorf("Normalize() key = %q", got.Key)
			}
		})
	}
}
