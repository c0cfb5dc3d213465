package extract

import (
	"regexp"
	"strings"
)

// Invoice numbers must contain a digit so that label words such as "No" or
// "Date" are never taken as the number itself.
const invoiceToken = `([A-Z0-9-]*[0-9][A-Z0-9-]*)`

const dateToken = `([0-9]{1,2}[/.\-][0-9]{1,2}[/.\-][0-9]{2,4})`

var (
	invoiceNumberRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:invoice|inv)\b\.?[ \t]*(?:no\.?|number|#)?[ \t]*[:.#]?[ \t]*` + invoiceToken),
		regexp.MustCompile(`(?i)\b(?:bill|receipt)\b\.?[ \t]*(?:no\.?|number|#)?[ \t]*[:.#]?[ \t]*` + invoiceToken),
	}

	dateRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bdate\b[ \t]*[:.]?[ \t]*` + dateToken),
		regexp.MustCompile(dateToken),
	}

	customerNameRules = []*regexp.Regexp{
		regexp.MustCompile(`\b((?i:mrs|mr|ms|miss|dr)\.?[ \t]+[A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)?)`),
		regexp.MustCompile(`(?i)\bcustomer(?:[ \t]+name)?[ \t]*[:.]?[ \t]*([A-Za-z]+(?:[ \t]+[A-Za-z]+)?)`),
		regexp.MustCompile(`(?i)\bbill[ \t]+to[ \t]*[:.]?\s*([A-Za-z]+(?:[ \t]+[A-Za-z]+)?)`),
	}

	productNameRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:item|product)(?:[ \t]+(?:name|description))?\b[ \t]*[:.]?[ \t]*([^\r\n]+)`),
		regexp.MustCompile(`(?i)\bdescription\b[ \t]*[:.]?[ \t]*([^\r\n]+)`),
	}

	amountRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bamount\b(?:[ \t]+(?:due|paid))?[ \t]*[:.]?[ \t]*(\$?[0-9]+(?:,[0-9]{3})*\.[0-9]{2})`),
		regexp.MustCompile(`(?i)\btotal\b(?:[ \t]+(?:due|paid))?[ \t]*[:.]?[ \t]*(\$?[0-9]+(?:,[0-9]{3})*\.[0-9]{2})`),
		regexp.MustCompile(`(\$[0-9]+(?:,[0-9]{3})*\.[0-9]{2})`),
	}
)

// firstMatch returns the first capture group of the first rule that matches.
func firstMatch(text string, rules []*regexp.Regexp) string {
	for _, re := range rules {
		if m := re.FindStringSubmatch(text); m != nil {
			if v := strings.TrimSpace(m[1]); v != "" {
				return v
			}
		}
	}
	return ""
}

// Invoice extracts invoiceNumber, date, customerName, productName and amount
// using labeled rules, falling back to bare date and currency tokens.
func Invoice(text string) Fields {
	out := Fields{}
	if strings.TrimSpace(text) == "" {
		return out
	}

	out.set(FieldInvoiceNumber, firstMatch(text, invoiceNumberRules))
	out.set(FieldDate, firstMatch(text, dateRules))
	out.set(FieldCustomerName, firstMatch(text, customerNameRules))
	out.set(FieldProductName, firstMatch(text, productNameRules))
	out.set(FieldAmount, firstMatch(text, amountRules))

	return out
}
