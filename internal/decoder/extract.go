package decoder

import (
	"sort"
	"strconv"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/hbar"
)

// Amount is one monetary movement surfaced for review. Numeric is the
// absolute magnitude used for tolerance comparison against claimed metadata;
// Value is the display form.
type Amount struct {
	Account string  `json:"account,omitempty"`
	Value   string  `json:"value"`
	Numeric float64 `json:"numeric"`
	Unit    string  `json:"unit"` // "hbar", a token ID, or "token" pre-creation
}

// ExtractAmounts returns every monetary amount present in the decoded view.
// Pure: no I/O, no mutation. The network fee cap (maxFee) is deliberately
// not an amount; it is not value moved by the transaction.
func ExtractAmounts(d *Details) []Amount {
	if d == nil {
		return nil
	}
	var out []Amount

	for _, leg := range d.Transfers {
		v, ok := hbar.Parse(leg.Amount)
		if !ok {
			continue
		}
		if v < 0 {
			v = -v
		}
		out = append(out, Amount{
			Account: leg.AccountID,
			Value:   hbar.Format(v),
			Numeric: hbar.Float(v),
			Unit:    "hbar",
		})
	}

	for _, leg := range d.TokenTransfers {
		v, err := strconv.ParseInt(leg.Amount, 10, 64)
		if err != nil {
			continue
		}
		if v < 0 {
			v = -v
		}
		out = append(out, Amount{
			Account: leg.AccountID,
			Value:   strconv.FormatInt(v, 10),
			Numeric: float64(v),
			Unit:    leg.TokenID,
		})
	}

	if d.PayableAmount != "" {
		if v, ok := hbar.Parse(d.PayableAmount); ok && v != 0 {
			out = append(out, Amount{
				Account: d.ContractID,
				Value:   hbar.Format(v),
				Numeric: hbar.Float(v),
				Unit:    "hbar",
			})
		}
	}

	if d.InitialBalance != "" {
		if v, ok := hbar.Parse(d.InitialBalance); ok && v != 0 {
			out = append(out, Amount{
				Value:   hbar.Format(v),
				Numeric: hbar.Float(v),
				Unit:    "hbar",
			})
		}
	}

	if d.Amount != "" { // token mint / burn, smallest unit
		if v, err := strconv.ParseInt(d.Amount, 10, 64); err == nil && v != 0 {
			if v < 0 {
				v = -v
			}
			out = append(out, Amount{
				Value:   strconv.FormatInt(v, 10),
				Numeric: float64(v),
				Unit:    d.TokenID,
			})
		}
	}

	if d.InitialSupply != "" {
		if v, err := strconv.ParseInt(d.InitialSupply, 10, 64); err == nil && v != 0 {
			out = append(out, Amount{
				Value:   strconv.FormatInt(v, 10),
				Numeric: float64(v),
				Unit:    "token",
			})
		}
	}

	return out
}

// ExtractAccounts returns every entity ID referenced by the decoded view,
// deduplicated and sorted. Pure.
func ExtractAccounts(d *Details) []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]struct{})
	add := func(id string) {
		if entityIDRe.MatchString(id) {
			seen[id] = struct{}{}
		}
	}

	add(d.PayerAccountID)
	add(d.NodeAccountID)
	add(d.AccountID)
	add(d.TokenID)
	add(d.ContractID)
	add(d.TopicID)
	add(d.FileID)
	add(d.ScheduleID)
	add(d.TreasuryAccountID)
	add(d.TransferAccountID)
	for _, id := range d.TokenIDs {
		add(id)
	}
	for _, leg := range d.Transfers {
		add(leg.AccountID)
	}
	for _, leg := range d.TokenTransfers {
		add(leg.AccountID)
		add(leg.TokenID)
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
