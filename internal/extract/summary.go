package extract

import "strings"

var summaryLabels = []struct {
	key   string
	label string
}{
	{FieldInvoiceNumber, "Invoice Number"},
	{FieldDate, "Date"},
	{FieldCustomerName, "Customer"},
	{FieldProductName, "Product"},
	{FieldAmount, "Amount"},
	{FieldName, "Name"},
	{FieldEmail, "Email"},
	{FieldPhone, "Phone"},
	{FieldPurchaseDate, "Purchase Date"},
	{FieldReason, "Reason"},
}

// Summary renders the fields found as "Label: value" lines in a fixed order.
// It returns an empty string when nothing was found.
func Summary(f Fields) string {
	var lines []string
	for _, l := range summaryLabels {
		if v := f[l.key]; v != "" {
			lines = append(lines, l.label+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}
