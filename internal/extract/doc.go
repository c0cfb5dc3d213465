// Package extract derives structured claim fields from recognized document text.
//
// Two strategies are provided. The invoice strategy applies labeled rules
// ("Invoice No:", "Date:", "Amount:") and suits receipts and invoices. The
// line strategy scans for contact details and product lines without relying
// on labels. Flows choose which strategies to run and in what order.
//
// Every function in this package is pure and total: unmatched fields are
// absent from the result, and no input causes an error or panic.
package extract
