package vault

import "arena-trade-agent-go/internal/models"

// Allocation is a profit divided among the vault's parties.
type Allocation struct {
	Investor float64 `json:"investor"`
	Creator  float64 `json:"creator"`
	Platform float64 `json:"platform"`
}

// SplitProfit divides profit by split. Losses are borne entirely by
// investors; nothing is allocated to the creator or the platform.
func SplitProfit(split models.ProfitSplit, profit float64) Allocation {
	if profit <= 0 {
		return Allocation{Investor: profit}
	}
	return Allocation{
		Investor: profit * split.Investor / 100,
		Creator:  profit * split.Creator / 100,
		Platform: profit * split.Platform / 100,
	}
}

// UnrealizedProfit is the vault's gain over what was deposited.
func UnrealizedProfit(v *models.Vault) float64 {
	return v.CurrentValue - v.TotalDeposited
}
