package extract

import (
	"reflect"
	"testing"
)

func TestInvoice(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Fields
	}{
		{
			name: "single line invoice",
			text: "Invoice No: INV-2024-001 Date: 12/05/2024 Amount: $49.99",
			want: Fields{
				FieldInvoiceNumber: "INV-2024-001",
				FieldDate:          "12/05/2024",
				FieldAmount:        "$49.99",
			},
		},
		{
			name: "multi line receipt",
			text: "ACME Store\nReceipt #R-88231\nCustomer: Jane Doe\nItem: Wireless Earbuds X200\nPurchase 03-14-2024\nTotal: $129.00",
			want: Fields{
				FieldInvoiceNumber: "R-88231",
				FieldDate:          "03-14-2024",
				FieldCustomerName:  "Jane Doe",
				FieldProductName:   "Wireless Earbuds X200",
				FieldAmount:        "$129.00",
			},
		},
		{
			name: "honorific wins over bill to label",
			text: "Bill To: Mr. John Smith\nTotal: $15.50",
			want: Fields{
				FieldCustomerName: "Mr. John Smith",
				FieldAmount:       "$15.50",
			},
		},
		{
			name: "bill to on next line",
			text: "Bill To:\nJane Roe",
			want: Fields{
				FieldCustomerName: "Jane Roe",
			},
		},
		{
			name: "label word is not taken as invoice number",
			text: "Invoice date: 12/05/2024",
			want: Fields{
				FieldDate: "12/05/2024",
			},
		},
		{
			name: "bare currency token",
			text: "Paid $5.00 today",
			want: Fields{
				FieldAmount: "$5.00",
			},
		},
		{
			name: "nothing recognizable",
			text: "Hello there, nothing to see",
			want: Fields{},
		},
		{
			name: "empty input",
			text: "",
			want: Fields{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Invoice(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Invoice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInvoice_AbsentFieldsAreNotEmptyStrings(t *testing.T) {
	got := Invoice("thanks for shopping with us")
	for _, key := range []string{FieldDate, FieldAmount, FieldInvoiceNumber} {
		if _, ok := got[key]; ok {
			t.Errorf("field %s present, want absent", key)
		}
	}
}

func TestInvoice_Deterministic(t *testing.T) {
	text := "Receipt #R-1\nCustomer: Jane Doe\nAmount: $10.00\n$20.00"
	first := Invoice(text)
	second := Invoice(text)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Invoice() not deterministic: %v vs %v", first, second)
	}
}
