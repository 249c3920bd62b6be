package model

import "time"

type TransactionType string

const (
	TypePayment   TransactionType = "payment"
	TypeTrustline TransactionType = "trustline"
	TypeSettings  TransactionType = "settings"
	TypeOther     TransactionType = "other"
)

// Submittable reports whether transactions of this type can be submitted.
func (t TransactionType) Submittable() bool {
	return t == TypePayment || t == TypeTrustline || t == TypeSettings
}

// NativeCurrency is the currency code used for lumens. Native amounts carry no issuer.
const NativeCurrency = "XLM"

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
	Issuer   string `json:"issuer,omitempty"`
}

func (a Amount) IsNative() bool {
	return a.Currency == NativeCurrency && a.Issuer == ""
}

// Asset identifies a currency without a quantity, as used in payment paths.
type Asset struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer,omitempty"`
}

type MemoType string

const (
	MemoText   MemoType = "text"
	MemoID     MemoType = "id"
	MemoHash   MemoType = "hash"
	MemoReturn MemoType = "return"
)

type Memo struct {
	Type  MemoType `json:"type"`
	Value string   `json:"value"`
}

type Payment struct {
	SourceAccount      string  `json:"source_account"`
	DestinationAccount string  `json:"destination_account"`
	DestinationAmount  Amount  `json:"destination_amount"`
	SourceAmount       *Amount `json:"source_amount,omitempty"`
	Paths              []Asset `json:"paths,omitempty"`
}

// IsPathPayment reports whether the payment needs path finding on the network.
func (p *Payment) IsPathPayment() bool {
	return p.SourceAmount != nil || len(p.Paths) > 0
}

type Trustline struct {
	Account      string `json:"account"`
	Currency     string `json:"currency"`
	Counterparty string `json:"counterparty"`
	Limit        string `json:"limit"`
}

type Thresholds struct {
	Low    *uint8 `json:"low,omitempty"`
	Medium *uint8 `json:"medium,omitempty"`
	High   *uint8 `json:"high,omitempty"`
}

type Settings struct {
	Account                string      `json:"account"`
	HomeDomain             *string     `json:"home_domain,omitempty"`
	RequireAuthorization   *bool       `json:"require_authorization,omitempty"`
	RevocableAuthorization *bool       `json:"revocable_authorization,omitempty"`
	ImmutableAuthorization *bool       `json:"immutable_authorization,omitempty"`
	ClawbackEnabled        *bool       `json:"clawback_enabled,omitempty"`
	MasterWeight           *uint8      `json:"master_weight,omitempty"`
	Thresholds             *Thresholds `json:"thresholds,omitempty"`
}

// Transaction is the canonical body of a transaction, independent of the
// network's envelope encoding. Exactly one of Payment, Trustline or Settings
// is set for submittable types.
type Transaction struct {
	Type      TransactionType `json:"type"`
	Payment   *Payment        `json:"payment,omitempty"`
	Trustline *Trustline      `json:"trustline,omitempty"`
	Settings  *Settings       `json:"settings,omitempty"`
	Memo      *Memo           `json:"memo,omitempty"`
}

// TransactionRecord is a transaction as observed in a closed ledger.
type TransactionRecord struct {
	Hash           string          `json:"hash"`
	LedgerSequence uint32          `json:"ledger_sequence"`
	SourceAccount  string          `json:"source_account"`
	State          LifecycleState  `json:"state"`
	ResultCode     string          `json:"result_code"`
	FeeCharged     int64           `json:"fee_charged"`
	ClosedAt       time.Time       `json:"closed_at"`
	Type           TransactionType `json:"type"`
	Transaction    *Transaction    `json:"transaction,omitempty"`
}
