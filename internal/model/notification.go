package model

import "time"

type Direction string

const (
	DirectionOutgoing    Direction = "outgoing"
	DirectionIncoming    Direction = "incoming"
	DirectionPassthrough Direction = "passthrough"
)

// Notification describes one transaction affecting an account together with
// its chronological neighbours in that account's history. It is derived on
// demand and never stored.
type Notification struct {
	Account                 string          `json:"account"`
	TransactionHash         string          `json:"transaction_hash"`
	TransactionType         TransactionType `json:"transaction_type"`
	Direction               Direction       `json:"direction"`
	State                   LifecycleState  `json:"state"`
	ResultCode              string          `json:"result_code"`
	LedgerSequence          uint32          `json:"ledger_sequence"`
	Timestamp               time.Time       `json:"timestamp"`
	IdempotencyToken        string          `json:"idempotency_token,omitempty"`
	PreviousHash            string          `json:"previous_hash,omitempty"`
	NextHash                string          `json:"next_hash,omitempty"`
	PreviousNotificationURL string          `json:"previous_notification_url,omitempty"`
	NextNotificationURL     string          `json:"next_notification_url,omitempty"`
	TransactionURL          string          `json:"transaction_url"`
}
