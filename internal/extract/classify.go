package extract

import (
	"strings"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
)

var (
	shippingKeywords = []string{"shipping", "delivery", "courier", "package", "tracking", "shipment"}
	productKeywords  = []string{"damage", "broken", "defect", "warranty", "repair", "faulty"}
)

// Classify suggests a claim type from keyword presence. Shipping keywords
// take priority over product keywords. The boolean is false when neither
// group matches.
func Classify(text string) (domain.ClaimType, bool) {
	lower := strings.ToLower(text)
	if containsAny(lower, shippingKeywords) {
		return domain.ClaimTypeShipping, true
	}
	if containsAny(lower, productKeywords) {
		return domain.ClaimTypeProduct, true
	}
	return "", false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
