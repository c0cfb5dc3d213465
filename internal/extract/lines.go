package extract

import (
	"regexp"
	"strings"
)

var (
	personNamePattern = regexp.MustCompile(`[A-Z][a-z]+ [A-Z][a-z]+`)
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern      = regexp.MustCompile(`(?:\+[0-9]{1,3}[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
	bareDatePattern   = regexp.MustCompile(`[0-9]{1,2}[/.\-][0-9]{1,2}[/.\-][0-9]{2,4}`)
	upperOrDigit      = regexp.MustCompile(`[A-Z0-9]`)
)

var productLineKeywords = []string{"product", "item", "model"}

// minProductLine is the length a keyword-free line must exceed to be taken
// as the product line.
const minProductLine = 10

// Lines extracts name, email, phone, productName and purchaseDate by scanning
// the text without relying on labels. Reason is never produced; it is
// collected from the user.
func Lines(text string) Fields {
	out := Fields{}
	if strings.TrimSpace(text) == "" {
		return out
	}

	out.set(FieldName, personNamePattern.FindString(text))
	out.set(FieldEmail, emailPattern.FindString(text))
	out.set(FieldPhone, phonePattern.FindString(text))
	out.set(FieldProductName, productLine(text))
	out.set(FieldPurchaseDate, bareDatePattern.FindString(text))

	return out
}

// productLine returns the first line that names a product keyword (case
// sensitive) or is long enough and carries an uppercase letter or digit.
func productLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if hasProductKeyword(line) || (len(line) > minProductLine && upperOrDigit.MatchString(line)) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func hasProductKeyword(line string) bool {
	for _, kw := range productLineKeywords {
		if strings.Contains(line, kw) {
			return true
		}
	}
	return false
}
