package budget

import "orcamento/internal/core"

// RedistributionPolicy decides where the share of an excluded conditional line
// goes. It receives the shares with the excluded lines already zeroed, the
// freed fraction and the active budgetable lines that may receive it, and must
// return shares whose total grew by exactly freed.
type RedistributionPolicy func(shares core.Shares, freed float64, recipients []core.PrefixCode) core.Shares

// ProportionalToActive spreads the freed share over every recipient in
// proportion to its current share. IF participates like any other active line.
// This is the default policy.
func ProportionalToActive(shares core.Shares, freed float64, recipients []core.PrefixCode) core.Shares {
	var total float64
	for _, code := range recipients {
		total += shares[code]
	}
	if total <= 0 {
		return AllToBuffer(shares, freed, recipients)
	}
	for _, code := range recipients {
		shares[code] += freed * shares[code] / total
	}
	return shares
}

// AllToBuffer hands the whole freed share to IF.
func AllToBuffer(shares core.Shares, freed float64, _ []core.PrefixCode) core.Shares {
	shares[core.Buffer] += freed
	return shares
}

var policies = map[string]RedistributionPolicy{
	"proportional": ProportionalToActive,
	"buffer":       AllToBuffer,
}

// PolicyByName resolves a configured policy name ("proportional" or "buffer").
func PolicyByName(name string) (RedistributionPolicy, bool) {
	p, ok := policies[name]
	return p, ok
}
