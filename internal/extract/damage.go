package extract

import (
	"fmt"
	"math"
	"strings"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
)

// DamageResult is the outcome of damage detection on an image.
type DamageResult struct {
	Success    bool                `json:"success"`
	Damages    []domain.DamageItem `json:"damages"`
	Confidence float64             `json:"confidence"`
}

// Recommendation messages.
const (
	RecommendClearerImages   = "We recommend uploading clearer images of the damage for a more accurate assessment."
	RecommendNoVisibleDamage = "No visible damage detected. Please upload clearer images of the damaged area."
	RecommendLikelyApproval  = "Significant damage detected. Your claim has a high likelihood of approval."
	RecommendReview          = "Damage detected. Your claim will be reviewed by our team."
	RecommendMoreDetail      = "Potential damage detected. We recommend providing additional details about the damage in your claim description."
)

const noDamageSummary = "No damage detected or analysis failed."

func percent(v float64) int {
	return int(math.Round(v * 100))
}

// DamageSummary renders the findings as a numbered multi-line summary.
func DamageSummary(r DamageResult) string {
	if !r.Success || len(r.Damages) == 0 {
		return noDamageSummary
	}

	lines := []string{fmt.Sprintf("Damage Analysis (Confidence: %d%%)", percent(r.Confidence))}
	for i, d := range r.Damages {
		lines = append(lines, fmt.Sprintf("%d. %s (%s)", i+1, d.Type, d.Severity))
		if d.Location != "" && d.Location != "Unknown" {
			lines = append(lines, "   Location: "+d.Location)
		}
		if d.Confidence != 0 {
			lines = append(lines, fmt.Sprintf("   Confidence: %d%%", percent(d.Confidence)))
		}
	}
	return strings.Join(lines, "\n")
}

// DamageRecommendation returns a one-sentence next step for the claimant.
func DamageRecommendation(r DamageResult) string {
	if !r.Success {
		return RecommendClearerImages
	}
	if len(r.Damages) == 0 {
		return RecommendNoVisibleDamage
	}

	var sum float64
	severe := false
	for _, d := range r.Damages {
		sum += d.Confidence
		if d.Severity == "High" {
			severe = true
		}
	}
	avg := sum / float64(len(r.Damages))

	switch {
	case avg > 0.7 && severe:
		return RecommendLikelyApproval
	case avg > 0.5:
		return RecommendReview
	default:
		return RecommendMoreDetail
	}
}

// TopDamages returns at most n findings in their original order.
func TopDamages(damages []domain.DamageItem, n int) []domain.DamageItem {
	if len(damages) <= n {
		return damages
	}
	return damages[:n]
}
