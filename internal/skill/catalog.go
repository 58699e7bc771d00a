package skill

// RiskLevel grades how aggressive a skill is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
	RiskDegen  RiskLevel = "degen"
)

// CatalogEntry describes a skill for the marketplace listing.
type CatalogEntry struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Protocols   []string  `json:"protocols"`
}

var catalog = []CatalogEntry{
	{Swap, "Token Swap", "Swap tokens via Jupiter aggregator for best rates across Solana DEXs", RiskLow, []string{"Jupiter", "Raydium"}},
	{Stake, "Liquid Staking", "Stake SOL for yield via liquid staking protocols", RiskLow, []string{"Marinade", "Jito"}},
	{Lend, "Lending", "Lend and borrow assets for yield or leverage", RiskMedium, []string{"MarginFi", "Kamino"}},
	{LP, "Liquidity Provision", "Provide liquidity to DEX pools and earn trading fees", RiskMedium, []string{"Orca", "Raydium"}},
	{Snipe, "Token Sniper", "Detect and snipe new token launches on Solana", RiskDegen, []string{"Pump.fun", "Raydium"}},
	{Sentiment, "Sentiment Analysis", "Analyze Moltbook agent discussions and social signals for alpha", RiskLow, []string{"Moltbook", "X/Twitter"}},
	{OnChainIntel, "On-Chain Intelligence", "Track whale wallets, token flows, and DEX volume anomalies", RiskLow, []string{"Helius", "Birdeye"}},
	{Hedge, "Hedge Positions", "Open short positions or buy puts to hedge downside risk", RiskHigh, []string{"Drift", "Zeta"}},
}

// Catalog returns the known skills in listing order.
func Catalog() []CatalogEntry {
	out := make([]CatalogEntry, len(catalog))
	copy(out, catalog)
	return out
}

// InCatalog reports whether id is one of the known skills.
func InCatalog(id ID) bool {
	for _, e := range catalog {
		if e.ID == id {
			return true
		}
	}
	return false
}
