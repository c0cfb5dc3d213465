package domain

import (
	"sort"
	"strings"
	"time"
)

// ClaimType identifies the category a claim is filed under. The two-category
// flow uses shipping and product; other flows use their own category values.
type ClaimType string

const (
	ClaimTypeShipping ClaimType = "shipping"
	ClaimTypeProduct  ClaimType = "product"
)

// DraftStatus tracks a draft through submission. It only moves forward.
type DraftStatus string

const (
	DraftStatusDraft     DraftStatus = "draft"
	DraftStatusSubmitted DraftStatus = "submitted"
	DraftStatusReceived  DraftStatus = "received"
)

var draftStatusRank = map[DraftStatus]int{
	DraftStatusDraft:     0,
	DraftStatusSubmitted: 1,
	DraftStatusReceived:  2,
}

// Advance moves the status forward to next. Regressions are ignored and
// reported as false.
func (s *DraftStatus) Advance(next DraftStatus) bool {
	if draftStatusRank[next] <= draftStatusRank[*s] {
		return false
	}
	*s = next
	return true
}

// ClaimStatus is the lifecycle of a stored claim as seen by merchants.
type ClaimStatus string

const (
	ClaimStatusReceived    ClaimStatus = "received"
	ClaimStatusUnderReview ClaimStatus = "under_review"
	ClaimStatusApproved    ClaimStatus = "approved"
	ClaimStatusRejected    ClaimStatus = "rejected"
	ClaimStatusPending     ClaimStatus = "pending"
)

// Valid reports whether s is a known stored-claim status.
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimStatusReceived, ClaimStatusUnderReview, ClaimStatusApproved, ClaimStatusRejected, ClaimStatusPending:
		return true
	}
	return false
}

// ExtractedFields holds the structured values derived from evidence text.
// An empty string means the field was not found.
type ExtractedFields struct {
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	ProductName   string `json:"productName,omitempty"`
	PurchaseDate  string `json:"purchaseDate,omitempty"`
	Reason        string `json:"reason,omitempty"`
	InvoiceNumber string `json:"invoiceNumber,omitempty"`
	Amount        string `json:"amount,omitempty"`
}

// FieldNames lists the extracted field keys in display order.
var FieldNames = []string{
	"invoiceNumber", "purchaseDate", "name", "email", "phone", "productName", "amount", "reason",
}

// Get returns the value stored under the JSON field name key.
func (f *ExtractedFields) Get(key string) (string, bool) {
	switch key {
	case "name":
		return f.Name, true
	case "email":
		return f.Email, true
	case "phone":
		return f.Phone, true
	case "productName":
		return f.ProductName, true
	case "purchaseDate":
		return f.PurchaseDate, true
	case "reason":
		return f.Reason, true
	case "invoiceNumber":
		return f.InvoiceNumber, true
	case "amount":
		return f.Amount, true
	}
	return "", false
}

// Set stores value under key. It returns false for unknown keys.
func (f *ExtractedFields) Set(key, value string) bool {
	switch key {
	case "name":
		f.Name = value
	case "email":
		f.Email = value
	case "phone":
		f.Phone = value
	case "productName":
		f.ProductName = value
	case "purchaseDate":
		f.PurchaseDate = value
	case "reason":
		f.Reason = value
	case "invoiceNumber":
		f.InvoiceNumber = value
	case "amount":
		f.Amount = value
	default:
		return false
	}
	return true
}

// Merge copies every non-empty field of other into f and returns the keys
// that changed. Empty values never overwrite existing ones.
func (f *ExtractedFields) Merge(other ExtractedFields) []string {
	var changed []string
	for _, key := range FieldNames {
		v, _ := other.Get(key)
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if cur, _ := f.Get(key); cur != v {
			f.Set(key, v)
			changed = append(changed, key)
		}
	}
	return changed
}

// Empty reports whether no field carries a value.
func (f ExtractedFields) Empty() bool {
	for _, key := range FieldNames {
		if v, _ := f.Get(key); v != "" {
			return false
		}
	}
	return true
}

// DamageItem is one finding from damage detection.
type DamageItem struct {
	Type       string  `json:"type"`
	Severity   string  `json:"severity"`
	Location   string  `json:"location,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// DamageAnalysis is the structured result of damage detection.
type DamageAnalysis struct {
	Damages    []DamageItem `json:"damages"`
	Confidence float64      `json:"confidence"`
}

// UploadedFile describes one piece of evidence attached to a draft.
type UploadedFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URL         string    `json:"url,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// ClaimDraft is the in-progress claim assembled during intake.
type ClaimDraft struct {
	ClaimID           string            `json:"claimId"`
	PolicyID          string            `json:"policyId,omitempty"`
	ClaimType         ClaimType         `json:"claimType,omitempty"`
	ClaimTypeInferred bool              `json:"claimTypeInferred,omitempty"`
	Status            DraftStatus       `json:"status"`
	ExtractedFields   ExtractedFields   `json:"extractedFields"`
	DamageAnalysis    *DamageAnalysis   `json:"damageAnalysis,omitempty"`
	UploadedFiles     []UploadedFile    `json:"uploadedFiles,omitempty"`
	RawOCRText        string            `json:"rawOcrText,omitempty"`
	AdditionalDetails string            `json:"additionalDetails,omitempty"`
	Answers           map[string]string `json:"answers,omitempty"`
	SubmittedAt       *time.Time        `json:"submittedAt,omitempty"`
}

// RemoveFile drops the uploaded file with the given id.
func (d *ClaimDraft) RemoveFile(id string) bool {
	for i, f := range d.UploadedFiles {
		if f.ID == id {
			d.UploadedFiles = append(d.UploadedFiles[:i], d.UploadedFiles[i+1:]...)
			return true
		}
	}
	return false
}

// ClaimRecord is the durable shape of a submitted claim.
type ClaimRecord struct {
	ID                string          `json:"id" db:"id" dynamodbav:"id"`
	UserEmail         string          `json:"user_email,omitempty" db:"user_email" dynamodbav:"user_email,omitempty"`
	UserName          string          `json:"user_name,omitempty" db:"user_name" dynamodbav:"user_name,omitempty"`
	UserPhone         string          `json:"user_phone,omitempty" db:"user_phone" dynamodbav:"user_phone,omitempty"`
	ClaimType         ClaimType       `json:"claim_type" db:"claim_type" dynamodbav:"claim_type"`
	ProductName       string          `json:"product_name,omitempty" db:"product_name" dynamodbav:"product_name,omitempty"`
	PurchaseDate      string          `json:"purchase_date,omitempty" db:"purchase_date" dynamodbav:"purchase_date,omitempty"`
	Reason            string          `json:"reason,omitempty" db:"reason" dynamodbav:"reason,omitempty"`
	AdditionalDetails string          `json:"additional_details,omitempty" db:"additional_details" dynamodbav:"additional_details,omitempty"`
	OCRText           string          `json:"ocr_text,omitempty" db:"ocr_text" dynamodbav:"ocr_text,omitempty"`
	PolicyID          string          `json:"policy_id,omitempty" db:"policy_id" dynamodbav:"policy_id,omitempty"`
	InvoiceNumber     string          `json:"invoice_number,omitempty" db:"invoice_number" dynamodbav:"invoice_number,omitempty"`
	Amount            string          `json:"amount,omitempty" db:"amount" dynamodbav:"amount,omitempty"`
	Status            ClaimStatus     `json:"status" db:"status" dynamodbav:"status"`
	Flow              string          `json:"flow,omitempty" db:"flow" dynamodbav:"flow,omitempty"`
	AIConfidence      float64         `json:"ai_confidence,omitempty" db:"ai_confidence" dynamodbav:"ai_confidence,omitempty"`
	RecommendedAction string          `json:"recommended_action,omitempty" db:"recommended_action" dynamodbav:"recommended_action,omitempty"`
	DamageAnalysis    *DamageAnalysis `json:"damage_analysis,omitempty" db:"-" dynamodbav:"damage_analysis,omitempty"`
	Files             []string        `json:"files" db:"-" dynamodbav:"files"`
	SubmittedAt       time.Time       `json:"submitted_at" db:"submitted_at" dynamodbav:"submitted_at"`
}

// NewClaimRecord builds the persistence record for a draft.
func NewClaimRecord(d *ClaimDraft, flow string, submittedAt time.Time) *ClaimRecord {
	rec := &ClaimRecord{
		ID:                d.ClaimID,
		UserEmail:         d.ExtractedFields.Email,
		UserName:          d.ExtractedFields.Name,
		UserPhone:         d.ExtractedFields.Phone,
		ClaimType:         d.ClaimType,
		ProductName:       d.ExtractedFields.ProductName,
		PurchaseDate:      d.ExtractedFields.PurchaseDate,
		Reason:            d.ExtractedFields.Reason,
		AdditionalDetails: d.AdditionalDetails,
		OCRText:           d.RawOCRText,
		PolicyID:          d.PolicyID,
		InvoiceNumber:     d.ExtractedFields.InvoiceNumber,
		Amount:            d.ExtractedFields.Amount,
		Status:            ClaimStatusReceived,
		Flow:              flow,
		DamageAnalysis:    d.DamageAnalysis,
		Files:             make([]string, 0, len(d.UploadedFiles)),
		SubmittedAt:       submittedAt,
	}
	if d.DamageAnalysis != nil {
		rec.AIConfidence = d.DamageAnalysis.Confidence
	}
	for _, f := range d.UploadedFiles {
		// Files whose storage write failed have no URL to reference.
		if f.URL == "" {
			continue
		}
		rec.Files = append(rec.Files, f.URL)
	}
	if len(d.Answers) > 0 {
		var b strings.Builder
		b.WriteString(rec.AdditionalDetails)
		for _, key := range sortedKeys(d.Answers) {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(key + ": " + d.Answers[key])
		}
		rec.AdditionalDetails = b.String()
	}
	return rec
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
