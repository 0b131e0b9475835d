package domain

import (
	"encoding/json"
	"fmt"
)

// EventType tags an append-only row written with its record file. Events are
// never merged or versioned; each one is inserted exactly once.
type EventType string

const (
	EventTransaction    EventType = "transaction"
	EventCryptoTransfer EventType = "crypto_transfer"
	EventTokenTransfer  EventType = "token_transfer"
	EventNftTransfer    EventType = "nft_transfer"
	EventTopicMessage   EventType = "topic_message"
)

var eventTypes = []EventType{
	EventTransaction,
	EventCryptoTransfer,
	EventTokenTransfer,
	EventNftTransfer,
	EventTopicMessage,
}

// EventTypes lists the append-only tables in write order.
func EventTypes() []EventType {
	out := make([]EventType, len(eventTypes))
	copy(out, eventTypes)
	return out
}

func (t EventType) Valid() bool {
	for _, et := range eventTypes {
		if et == t {
			return true
		}
	}
	return false
}

func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown event type %q", ErrStructural, s)
	}
	return t, nil
}

// Payload is the type-specific body of an event.
type Payload interface {
	EventType() EventType
}

// NewPayload returns an empty payload for the type.
func (t EventType) NewPayload() (Payload, error) {
	switch t {
	case EventTransaction:
		return &TransactionPayload{}, nil
	case EventCryptoTransfer:
		return &CryptoTransferPayload{}, nil
	case EventTokenTransfer:
		return &TokenTransferPayload{}, nil
	case EventNftTransfer:
		return &NftTransferPayload{}, nil
	case EventTopicMessage:
		return &TopicMessagePayload{}, nil
	}
	return nil, fmt.Errorf("%w: unknown event type %q", ErrStructural, t)
}

func DecodePayload(t EventType, raw []byte) (Payload, error) {
	p, err := t.NewPayload()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s event has no payload", ErrStructural, t)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: decode %s payload: %v", ErrStructural, t, err)
	}
	return p, nil
}

// Event is one append-only row: a transaction or one of its transfers or
// messages, keyed by consensus timestamp.
type Event struct {
	Type               EventType
	ConsensusTimestamp int64
	PayerAccountID     EntityID
	Payload            Payload
}

func (e Event) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown event type %q", ErrStructural, e.Type)
	}
	if e.ConsensusTimestamp <= 0 {
		return fmt.Errorf("%w: %s event has non-positive timestamp %d", ErrStructural, e.Type, e.ConsensusTimestamp)
	}
	if e.PayerAccountID == 0 {
		return fmt.Errorf("%w: %s event at %d has no payer", ErrStructural, e.Type, e.ConsensusTimestamp)
	}
	if isNil(e.Payload) {
		return fmt.Errorf("%w: %s event at %d has no payload", ErrStructural, e.Type, e.ConsensusTimestamp)
	}
	if e.Payload.EventType() != e.Type {
		return fmt.Errorf("%w: %s event carries %s payload", ErrStructural, e.Type, e.Payload.EventType())
	}
	if nft, ok := e.Payload.(*NftTransferPayload); ok && nft.SerialNumber <= 0 {
		return fmt.Errorf("%w: nft transfer at %d has invalid serial %d", ErrStructural, e.ConsensusTimestamp, nft.SerialNumber)
	}
	return nil
}

type TransactionPayload struct {
	ChargedTxFee  int64     `json:"charged_tx_fee"`
	EntityID      *EntityID `json:"entity_id,omitempty"`
	Index         int32     `json:"index"`
	Memo          string    `json:"memo,omitempty"`
	Nonce         int32     `json:"nonce,omitempty"`
	NodeAccountID *EntityID `json:"node_account_id,omitempty"`
	Result        int32     `json:"result"`
	Scheduled     bool      `json:"scheduled,omitempty"`
	Type          int32     `json:"type"`
	ValidStartNs  int64     `json:"valid_start_ns"`
}

func (*TransactionPayload) EventType() EventType { return EventTransaction }

// CryptoTransferPayload is one hbar balance change; amounts of a transaction
// sum to zero.
type CryptoTransferPayload struct {
	EntityID   EntityID `json:"entity_id"`
	Amount     int64    `json:"amount"`
	IsApproval bool     `json:"is_approval,omitempty"`
}

func (*CryptoTransferPayload) EventType() EventType { return EventCryptoTransfer }

type TokenTransferPayload struct {
	TokenID    EntityID `json:"token_id"`
	AccountID  EntityID `json:"account_id"`
	Amount     int64    `json:"amount"`
	IsApproval bool     `json:"is_approval,omitempty"`
}

func (*TokenTransferPayload) EventType() EventType { return EventTokenTransfer }

// NftTransferPayload has no sender on mint and no receiver on burn.
type NftTransferPayload struct {
	TokenID           EntityID  `json:"token_id"`
	SerialNumber      int64     `json:"serial_number"`
	SenderAccountID   *EntityID `json:"sender_account_id,omitempty"`
	ReceiverAccountID *EntityID `json:"receiver_account_id,omitempty"`
	IsApproval        bool      `json:"is_approval,omitempty"`
}

func (*NftTransferPayload) EventType() EventType { return EventNftTransfer }

type TopicMessagePayload struct {
	TopicID            EntityID `json:"topic_id"`
	SequenceNumber     int64    `json:"sequence_number"`
	Message            []byte   `json:"message"`
	RunningHash        []byte   `json:"running_hash"`
	RunningHashVersion int32    `json:"running_hash_version"`
}

func (*TopicMessagePayload) EventType() EventType { return EventTopicMessage }
