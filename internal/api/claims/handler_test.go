package claims

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/claim-intake/internal/analysis"
	"github.com/tjfontaine/claim-intake/internal/auth"
	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
	"github.com/tjfontaine/claim-intake/internal/filestore"
	"github.com/tjfontaine/claim-intake/internal/intake"
	"github.com/tjfontaine/claim-intake/internal/storage/memory"
)

var jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, bytes.Repeat([]byte{0x01}, 64)...)

type stubAnalyzer struct {
	mu    sync.Mutex
	calls int
}

func (s *stubAnalyzer) Analyze(context.Context, *ports.AnalysisRequest) (*ports.AnalysisResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return &ports.AnalysisResult{
		Success: true,
		Mode:    ports.AnalysisModeOCR,
		Text:    "Invoice No: INV-2024-001 Date: 12/05/2024 Amount: $49.99",
	}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.ClaimEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev *domain.ClaimEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type apiFixture struct {
	router   chi.Router
	store    *memory.Store
	files    *filestore.MemoryStore
	analyzer *stubAnalyzer
	events   *recordingPublisher
}

func newAPIFixture(t *testing.T, opts ...Option) *apiFixture {
	t.Helper()
	flows, err := intake.DefaultFlows()
	if err != nil {
		t.Fatalf("DefaultFlows() error = %v", err)
	}
	fx := &apiFixture{
		store:    memory.New(),
		files:    filestore.NewMemory("evidence"),
		analyzer: &stubAnalyzer{},
		events:   &recordingPublisher{},
	}
	settings := intake.DefaultSettings()
	settings.MaxUploadBytes = 1 << 10
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := intake.NewService(flows,
		intake.WithDraftStore(fx.store),
		intake.WithClaimStore(fx.store),
		intake.WithFileStore(fx.files),
		intake.WithAnalyzer(fx.analyzer),
		intake.WithSettings(settings),
		intake.WithServiceLogger(logger),
	)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	opts = append([]Option{
		WithURLSigner(fx.files, time.Minute),
		WithEventPublisher(fx.events),
		WithLogger(logger),
	}, opts...)
	r := chi.NewRouter()
	NewHandler(svc, fx.store, opts...).Routes(r)
	fx.router = r
	return fx
}

func (fx *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func (fx *apiFixture) upload(t *testing.T, id, name, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/"+id+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

type conversationBody struct {
	ID            string `json:"id"`
	Step          string `json:"step"`
	InputEnabled  bool   `json:"input_enabled"`
	UploadEnabled bool   `json:"upload_enabled"`
	Draft         struct {
		ClaimID         string `json:"claimId"`
		ExtractedFields struct {
			InvoiceNumber string `json:"invoiceNumber"`
			Name          string `json:"name"`
		} `json:"extractedFields"`
		UploadedFiles []domain.UploadedFile `json:"uploadedFiles"`
	} `json:"draft"`
	Summary *intake.Summary `json:"summary"`
}

func decodeConversation(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int) conversationBody {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d: %s", rec.Code, wantStatus, rec.Body.String())
	}
	var body conversationBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) domain.ErrorType {
	t.Helper()
	var body struct {
		Error domain.APIError `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error %q: %v", rec.Body.String(), err)
	}
	return body.Error.Type
}

func TestHandler_ClaimLifecycle(t *testing.T) {
	fx := newAPIFixture(t)

	c := decodeConversation(t, fx.do(t, http.MethodPost, "/v1/conversations", map[string]string{"claim_type": "shipping", "policy_id": "POL-9"}), http.StatusCreated)
	if c.Step != "awaiting_evidence" || !c.UploadEnabled || c.InputEnabled {
		t.Fatalf("start = %+v", c)
	}

	c = decodeConversation(t, fx.upload(t, c.ID, "invoice.jpg", "image/jpeg", jpegBytes), http.StatusOK)
	if c.Step != "reviewing_extracted_fields" {
		t.Fatalf("Step after upload = %s", c.Step)
	}
	if c.Draft.ExtractedFields.InvoiceNumber != "INV-2024-001" {
		t.Errorf("InvoiceNumber = %q", c.Draft.ExtractedFields.InvoiceNumber)
	}
	if fx.files.Len() != 1 {
		t.Errorf("stored files = %d, want 1", fx.files.Len())
	}

	c = decodeConversation(t, fx.do(t, http.MethodPatch, "/v1/conversations/"+c.ID+"/fields",
		intake.FieldEdit{Fields: map[string]string{"name": "Jane Doe"}}), http.StatusOK)
	if c.Draft.ExtractedFields.Name != "Jane Doe" {
		t.Errorf("Name = %q", c.Draft.ExtractedFields.Name)
	}

	c = decodeConversation(t, fx.do(t, http.MethodPost, "/v1/conversations/"+c.ID+"/actions", map[string]string{"value": intake.ActionContinue}), http.StatusOK)
	for i := 0; c.Step != "summary"; i++ {
		if i > 5 {
			t.Fatalf("never reached summary, step %s", c.Step)
		}
		c = decodeConversation(t, fx.do(t, http.MethodPost, "/v1/conversations/"+c.ID+"/actions", map[string]string{"value": intake.ActionSkip}), http.StatusOK)
	}
	if c.Summary == nil || c.Summary.ClaimID != c.Draft.ClaimID {
		t.Fatalf("Summary = %+v", c.Summary)
	}

	c = decodeConversation(t, fx.do(t, http.MethodPost, "/v1/conversations/"+c.ID+"/actions", map[string]string{"value": intake.ActionSubmit}), http.StatusOK)
	if c.Step != "completed" {
		t.Fatalf("Step after submit = %s", c.Step)
	}
	claimID := c.Draft.ClaimID

	rec := fx.do(t, http.MethodGet, "/v1/claims?search=jane", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body.String())
	}
	var list ClaimList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || len(list.Claims) != 1 || list.Claims[0].ID != claimID {
		t.Fatalf("list = %+v", list)
	}
	if list.Limit != ports.DefaultListLimit {
		t.Errorf("Limit = %d, want %d", list.Limit, ports.DefaultListLimit)
	}

	rec = fx.do(t, http.MethodGet, "/v1/claims/"+claimID, nil)
	var detail domain.ClaimRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if len(detail.Files) != 1 || !strings.Contains(detail.Files[0], "expires=") {
		t.Errorf("Files = %v, want signed url", detail.Files)
	}

	rec = fx.do(t, http.MethodPatch, "/v1/claims/"+claimID, map[string]string{"status": "approved"})
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	if detail.Status != domain.ClaimStatusApproved {
		t.Errorf("Status = %q, want approved", detail.Status)
	}
	if len(fx.events.events) != 1 || fx.events.events[0].Type != domain.ClaimEventStatusChanged {
		t.Errorf("published = %+v", fx.events.events)
	}
}

func TestHandler_Errors(t *testing.T) {
	fx := newAPIFixture(t)
	c := decodeConversation(t, fx.do(t, http.MethodPost, "/v1/conversations", nil), http.StatusCreated)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantType domain.ErrorType
	}{
		{"unknown conversation", http.MethodGet, "/v1/conversations/nope", nil, http.StatusNotFound, domain.ErrorTypeNotFound},
		{"unknown flow", http.MethodPost, "/v1/conversations", map[string]string{"flow": "nope"}, http.StatusBadRequest, domain.ErrorTypeInvalidRequest},
		{"missing action", http.MethodPost, "/v1/conversations/" + c.ID + "/actions", map[string]string{}, http.StatusBadRequest, domain.ErrorTypeInvalidRequest},
		{"unavailable action", http.MethodPost, "/v1/conversations/" + c.ID + "/actions", map[string]string{"value": intake.ActionSubmit}, http.StatusConflict, domain.ErrorTypeConflict},
		{"unknown field", http.MethodPatch, "/v1/conversations/" + c.ID + "/fields", intake.FieldEdit{Fields: map[string]string{"shoe_size": "9"}}, http.StatusBadRequest, domain.ErrorTypeInvalidRequest},
		{"missing file", http.MethodDelete, "/v1/conversations/" + c.ID + "/files/nope", nil, http.StatusNotFound, domain.ErrorTypeNotFound},
		{"unknown claim", http.MethodGet, "/v1/claims/CLM-MISSING", nil, http.StatusNotFound, domain.ErrorTypeNotFound},
		{"bad status filter", http.MethodGet, "/v1/claims?status=lost", nil, http.StatusBadRequest, domain.ErrorTypeInvalidRequest},
		{"bad limit", http.MethodGet, "/v1/claims?limit=-1", nil, http.StatusBadRequest, domain.ErrorTypeInvalidRequest},
		{"bad status change", http.MethodPatch, "/v1/claims/CLM-1", map[string]string{"status": "lost"}, http.StatusBadRequest, domain.ErrorTypeInvalidRequest},
		{"status change missing claim", http.MethodPatch, "/v1/claims/CLM-1", map[string]string{"status": "approved"}, http.StatusNotFound, domain.ErrorTypeNotFound},
		{"url upload disabled", http.MethodPost, "/v1/conversations/" + c.ID + "/files", map[string]string{"url": "https://example.com/a.jpg"}, http.StatusBadRequest, domain.ErrorTypeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := errorType(t, rec); got != tt.wantType {
				t.Errorf("type = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestHandler_UploadRejections(t *testing.T) {
	fx := newAPIFixture(t)
	c := decodeConversation(t, fx.do(t, http.MethodPost, "/v1/conversations", map[string]string{"claim_type": "shipping"}), http.StatusCreated)

	tests := []struct {
		name        string
		contentType string
		data        []byte
		wantCode    int
	}{
		{"text file", "text/plain", []byte("hello there"), http.StatusUnsupportedMediaType},
		{"mislabelled", "image/png", jpegBytes, http.StatusUnsupportedMediaType},
		{"too large", "image/jpeg", append(append([]byte{}, jpegBytes...), make([]byte, 2<<10)...), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.upload(t, c.ID, "evidence", tt.contentType, tt.data)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
	if fx.analyzer.calls != 0 {
		t.Errorf("analyzer calls = %d, want 0", fx.analyzer.calls)
	}
}

func TestHandler_UploadByURL(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpegBytes)
	}))
	defer origin.Close()

	fetcher := analysis.NewFetcher(analysis.WithFetchHTTPClient(origin.Client()))
	fx := newAPIFixture(t, WithFetcher(fetcher))
	c := decodeConversation(t, fx.do(t, http.MethodPost, "/v1/conversations", map[string]string{"claim_type": "shipping"}), http.StatusCreated)

	c = decodeConversation(t, fx.do(t, http.MethodPost, "/v1/conversations/"+c.ID+"/files",
		map[string]string{"url": origin.URL + "/receipt.jpg"}), http.StatusOK)
	if len(c.Draft.UploadedFiles) != 1 || c.Draft.UploadedFiles[0].Name != "receipt.jpg" {
		t.Errorf("UploadedFiles = %+v", c.Draft.UploadedFiles)
	}
	if fx.analyzer.calls != 1 {
		t.Errorf("analyzer calls = %d, want 1", fx.analyzer.calls)
	}
}

func TestHandler_MerchantRole(t *testing.T) {
	fx := newAPIFixture(t)

	tests := []struct {
		name  string
		roles []string
		want  int
	}{
		{"merchant", []string{auth.DefaultMerchantRole}, http.StatusOK},
		{"claimant", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/claims", nil)
			req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{Subject: "u1", Roles: tt.roles}))
			rec := httptest.NewRecorder()
			fx.router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandler_ListEvents(t *testing.T) {
	fx := newAPIFixture(t)
	ctx := context.Background()
	rec := &domain.ClaimRecord{ID: "CLM-EV", ClaimType: domain.ClaimTypeShipping, Status: domain.ClaimStatusReceived, SubmittedAt: time.Now()}
	if err := fx.store.SaveClaim(ctx, rec); err != nil {
		t.Fatalf("SaveClaim() error = %v", err)
	}
	if err := fx.store.AppendEvent(ctx, &domain.ClaimEvent{ID: "e1", Type: domain.ClaimEventSubmitted, ClaimID: "CLM-EV", Timestamp: time.Now()}); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	resp := fx.do(t, http.MethodGet, "/v1/claims/CLM-EV/events", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Events []domain.ClaimEvent `json:"events"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].Type != domain.ClaimEventSubmitted {
		t.Errorf("events = %+v", body.Events)
	}
}
