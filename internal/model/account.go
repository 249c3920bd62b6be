package model

type Balance struct {
	Value        string `json:"value"`
	Currency     string `json:"currency"`
	Counterparty string `json:"counterparty,omitempty"`
	Limit        string `json:"limit,omitempty"`
	Authorized   *bool  `json:"authorized,omitempty"`
}

// IsNative reports whether the balance is held in lumens.
func (b Balance) IsNative() bool {
	return b.Counterparty == ""
}

type AccountFlags struct {
	RequireAuthorization   bool `json:"require_authorization"`
	RevocableAuthorization bool `json:"revocable_authorization"`
	ImmutableAuthorization bool `json:"immutable_authorization"`
	ClawbackEnabled        bool `json:"clawback_enabled"`
}

type AccountThresholds struct {
	Low    uint8 `json:"low"`
	Medium uint8 `json:"medium"`
	High   uint8 `json:"high"`
}

// AccountInfo is the current ledger state of an account.
type AccountInfo struct {
	Account        string            `json:"account"`
	Sequence       int64             `json:"sequence"`
	SubentryCount  int32             `json:"subentry_count"`
	HomeDomain     string            `json:"home_domain,omitempty"`
	MasterWeight   uint8             `json:"master_weight"`
	Flags          AccountFlags      `json:"flags"`
	Thresholds     AccountThresholds `json:"thresholds"`
	MinimumBalance string            `json:"minimum_balance"` // native balance locked by base reserves
	Balances       []Balance         `json:"balances"`
}

// TrustlineInfo is a credit line held by an account.
type TrustlineInfo struct {
	Account      string `json:"account"`
	Currency     string `json:"currency"`
	Counterparty string `json:"counterparty"`
	Limit        string `json:"limit"`
	Balance      string `json:"balance"`
	Authorized   bool   `json:"authorized"`
}

// AccountSettings is the configurable part of an account.
type AccountSettings struct {
	Account        string            `json:"account"`
	Sequence       int64             `json:"sequence"`
	SubentryCount  int32             `json:"subentry_count"`
	HomeDomain     string            `json:"home_domain,omitempty"`
	MasterWeight   uint8             `json:"master_weight"`
	Flags          AccountFlags      `json:"flags"`
	Thresholds     AccountThresholds `json:"thresholds"`
	MinimumBalance string            `json:"minimum_balance"`
}
