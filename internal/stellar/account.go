package stellar

import (
	"fmt"

	"github.com/stellar/go-stellar-sdk/amount"
	hProtocol "github.com/stellar/go-stellar-sdk/protocols/horizon"

	"github.com/stellar-payment-gateway/internal/model"
)

// BaseReserveStroops is the Stellar base reserve in stroops (0.5 XLM).
const BaseReserveStroops int64 = 5_000_000

func accountFromHorizon(acct hProtocol.Account) (*model.AccountInfo, error) {
	seq, err := acct.GetSequenceNumber()
	if err != nil {
		return nil, fmt.Errorf("account %s sequence: %w", acct.AccountID, err)
	}

	info := &model.AccountInfo{
		Account:       acct.AccountID,
		Sequence:      seq,
		SubentryCount: acct.SubentryCount,
		HomeDomain:    acct.HomeDomain,
		Flags: model.AccountFlags{
			RequireAuthorization:   acct.Flags.AuthRequired,
			RevocableAuthorization: acct.Flags.AuthRevocable,
			ImmutableAuthorization: acct.Flags.AuthImmutable,
			ClawbackEnabled:        acct.Flags.AuthClawbackEnabled,
		},
		Thresholds: model.AccountThresholds{
			Low:    acct.Thresholds.LowThreshold,
			Medium: acct.Thresholds.MedThreshold,
			High:   acct.Thresholds.HighThreshold,
		},
		MinimumBalance: minimumBalance(acct),
	}

	for _, s := range acct.Signers {
		if s.Key == acct.AccountID {
			info.MasterWeight = uint8(s.Weight)
			break
		}
	}

	for _, b := range acct.Balances {
		switch b.Asset.Type {
		case "native":
			info.Balances = append(info.Balances, model.Balance{
				Value:    b.Balance,
				Currency: model.NativeCurrency,
			})
		case "liquidity_pool_shares":
			continue
		default:
			info.Balances = append(info.Balances, model.Balance{
				Value:        b.Balance,
				Currency:     b.Asset.Code,
				Counterparty: b.Asset.Issuer,
				Limit:        b.Limit,
				Authorized:   b.IsAuthorized,
			})
		}
	}

	return info, nil
}

// minimumBalance is (2 + subentries + sponsoring - sponsored) base reserves.
func minimumBalance(acct hProtocol.Account) string {
	reserves := 2 + int64(acct.SubentryCount) + int64(acct.NumSponsoring) - int64(acct.NumSponsored)
	if reserves < 0 {
		reserves = 0
	}
	return amount.StringFromInt64(reserves * BaseReserveStroops)
}
