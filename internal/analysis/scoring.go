package analysis

// MaxRiskScore caps the summed severity weights.
const MaxRiskScore = 200

// Trust badge labels, from safest to riskiest band.
const (
	BadgeVerifiedSafe      = "Verified Safe"
	BadgeGenerallySafe     = "Generally Safe"
	BadgeReviewRecommended = "Review Recommended"
	BadgeUseWithCaution    = "Use With Caution"
	BadgeNotRecommended    = "Not Recommended"
)

func capRiskScore(score int) int {
	if score > MaxRiskScore {
		return MaxRiskScore
	}
	return score
}

// TrustBadge maps a risk score to its display badge.
func TrustBadge(riskScore int) string {
	switch {
	case riskScore <= 4:
		return BadgeVerifiedSafe
	case riskScore <= 19:
		return BadgeGenerallySafe
	case riskScore <= 49:
		return BadgeReviewRecommended
	case riskScore <= 99:
		return BadgeUseWithCaution
	default:
		return BadgeNotRecommended
	}
}

// OverallScore converts a risk score into a 0..100 quality-style score
// where 100 means no detected risk.
func OverallScore(riskScore int) float64 {
	capped := riskScore
	if capped > 100 {
		capped = 100
	}
	score := 100 - capped
	if score < 0 {
		score = 0
	}
	return float64(score)
}
