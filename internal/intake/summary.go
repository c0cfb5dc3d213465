package intake

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/extract"
)

var fieldLabels = map[string]string{
	"invoiceNumber": "Invoice Number",
	"purchaseDate":  "Date",
	"name":          "Name",
	"email":         "Email",
	"phone":         "Phone",
	"productName":   "Product",
	"amount":        "Amount",
	"reason":        "Reason",
}

// FieldLabel returns the display label of an extracted field key.
func FieldLabel(key string) string {
	if l, ok := fieldLabels[key]; ok {
		return l
	}
	return key
}

// SummaryField is one labelled value shown in the review summary.
type SummaryField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Summary is the review shown before submission.
type Summary struct {
	ClaimID        string              `json:"claim_id"`
	ClaimType      domain.ClaimType    `json:"claim_type,omitempty"`
	ClaimTypeLabel string              `json:"claim_type_label,omitempty"`
	PolicyID       string              `json:"policy_id,omitempty"`
	Fields         []SummaryField      `json:"fields"`
	Answers        []SummaryField      `json:"answers,omitempty"`
	Details        string              `json:"details,omitempty"`
	Missing        []string            `json:"missing,omitempty"`
	FileCount      int                 `json:"file_count"`
	Damages        []domain.DamageItem `json:"damages,omitempty"`
	Recommendation string              `json:"recommendation,omitempty"`
}

// maxSummaryDamages bounds the damage highlights listed in a summary.
const maxSummaryDamages = 3

// Summary builds the review of c's draft.
func (m *Machine) Summary(c *Conversation) Summary {
	d := &c.Draft
	s := Summary{
		ClaimID:   d.ClaimID,
		ClaimType: d.ClaimType,
		PolicyID:  d.PolicyID,
		Details:   d.AdditionalDetails,
		FileCount: len(d.UploadedFiles),
	}

	cat, ok := m.flow.Category(d.ClaimType)
	if ok {
		s.ClaimTypeLabel = cat.Label
	}

	for _, key := range domain.FieldNames {
		if v, _ := d.ExtractedFields.Get(key); v != "" {
			s.Fields = append(s.Fields, SummaryField{Key: key, Label: FieldLabel(key), Value: v})
		}
	}

	keys := make([]string, 0, len(d.Answers))
	for k := range d.Answers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		s.Answers = append(s.Answers, SummaryField{Key: k, Label: k, Value: d.Answers[k]})
	}

	if ok {
		for _, key := range cat.RequiredFields {
			if v, _ := d.ExtractedFields.Get(key); v == "" {
				s.Missing = append(s.Missing, FieldLabel(key))
			}
		}
	}

	if d.DamageAnalysis != nil {
		s.Damages = extract.TopDamages(d.DamageAnalysis.Damages, maxSummaryDamages)
		s.Recommendation = extract.DamageRecommendation(extract.DamageResult{
			Success:    true,
			Damages:    d.DamageAnalysis.Damages,
			Confidence: d.DamageAnalysis.Confidence,
		})
	}
	return s
}

// Text renders the summary as a chat message.
func (s Summary) Text() string {
	var b strings.Builder
	b.WriteString("Here's a summary of your claim:\n")
	fmt.Fprintf(&b, "\nClaim ID: %s", s.ClaimID)
	if s.ClaimTypeLabel != "" {
		fmt.Fprintf(&b, "\nClaim Type: %s", s.ClaimTypeLabel)
	}
	if s.PolicyID != "" {
		fmt.Fprintf(&b, "\nPolicy: %s", s.PolicyID)
	}
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "\n%s: %s", f.Label, f.Value)
	}
	for _, f := range s.Answers {
		fmt.Fprintf(&b, "\n%s: %s", f.Label, f.Value)
	}
	if s.Details != "" {
		fmt.Fprintf(&b, "\nDetails: %s", s.Details)
	}
	fmt.Fprintf(&b, "\nFiles: %d", s.FileCount)

	if len(s.Damages) > 0 {
		b.WriteString("\n\nDamage highlights:")
		for _, d := range s.Damages {
			fmt.Fprintf(&b, "\n- %s (%s)", d.Type, d.Severity)
		}
	}
	if s.Recommendation != "" {
		fmt.Fprintf(&b, "\nRecommendation: %s", s.Recommendation)
	}
	if len(s.Missing) > 0 {
		fmt.Fprintf(&b, "\n\nStill needed: %s", strings.Join(s.Missing, ", "))
	}
	b.WriteString("\n\nWould you like to submit your claim?")
	return b.String()
}
