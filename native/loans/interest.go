package loans

// InterestRate derives the risk-adjusted rate in basis points from a
// reputation score. The score factor is score * 80 / 1000; once it reaches
// 100 the rate floors at a fifth of the base rate, otherwise the base rate is
// scaled by (100 - factor) / 100. Integer order matters: multiply before
// divide, truncating toward zero, so results match the ledger's reference
// arithmetic exactly.
//
// The factor exceeds 100 for scores above 1250, which simply pins such
// borrowers to the floor.
func InterestRate(score, baseRateBps uint64) uint64 {
	scoreFactor := score * 80 / 1000
	if scoreFactor >= 100 {
		return baseRateBps / 5
	}
	return baseRateBps * (100 - scoreFactor) / 100
}
