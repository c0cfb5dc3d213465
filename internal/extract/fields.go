package extract

import (
	"strings"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
)

// Field names produced by the strategies.
const (
	FieldInvoiceNumber = "invoiceNumber"
	FieldDate          = "date"
	FieldCustomerName  = "customerName"
	FieldProductName   = "productName"
	FieldAmount        = "amount"
	FieldName          = "name"
	FieldEmail         = "email"
	FieldPhone         = "phone"
	FieldPurchaseDate  = "purchaseDate"
	FieldReason        = "reason"
)

// Fields maps a field name to its extracted value. Fields that were not
// found are absent; values are never empty.
type Fields map[string]string

func (f Fields) set(key, value string) {
	value = strings.TrimSpace(value)
	if value != "" {
		f[key] = value
	}
}

// Claim converts the strategy-specific names to draft fields: customerName
// becomes name and date becomes purchaseDate.
func (f Fields) Claim() domain.ExtractedFields {
	out := domain.ExtractedFields{
		Name:          f[FieldName],
		Email:         f[FieldEmail],
		Phone:         f[FieldPhone],
		ProductName:   f[FieldProductName],
		PurchaseDate:  f[FieldPurchaseDate],
		Reason:        f[FieldReason],
		InvoiceNumber: f[FieldInvoiceNumber],
		Amount:        f[FieldAmount],
	}
	if out.Name == "" {
		out.Name = f[FieldCustomerName]
	}
	if out.PurchaseDate == "" {
		out.PurchaseDate = f[FieldDate]
	}
	return out
}

// Strategy is a named extraction function.
type Strategy interface {
	Name() string
	Extract(text string) Fields
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc struct {
	ID string
	Fn func(string) Fields
}

func (s StrategyFunc) Name() string { return s.ID }

func (s StrategyFunc) Extract(text string) Fields { return s.Fn(text) }

// Built-in strategies.
var (
	InvoiceStrategy Strategy = StrategyFunc{ID: "invoice", Fn: Invoice}
	LinesStrategy   Strategy = StrategyFunc{ID: "lines", Fn: Lines}
)

// Lookup returns the built-in strategy with the given name.
func Lookup(name string) (Strategy, bool) {
	switch strings.ToLower(name) {
	case "invoice":
		return InvoiceStrategy, true
	case "lines":
		return LinesStrategy, true
	}
	return nil, false
}

// Run applies strategies in order and merges their results into draft
// fields. The first strategy to produce a value for a field wins.
func Run(text string, strategies ...Strategy) domain.ExtractedFields {
	var out domain.ExtractedFields
	for _, s := range strategies {
		got := s.Extract(text).Claim()
		for _, key := range domain.FieldNames {
			if cur, _ := out.Get(key); cur != "" {
				continue
			}
			if v, _ := got.Get(key); v != "" {
				out.Set(key, v)
			}
		}
	}
	return out
}
