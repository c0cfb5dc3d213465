package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

type fakeDrafts struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  time.Duration
}

func (f *fakeDrafts) SaveDraft(_ context.Context, id string, data []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	f.data[id] = append([]byte(nil), data...)
	f.ttl = ttl
	return nil
}

func (f *fakeDrafts) LoadDraft(_ context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.data[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return d, nil
}

func (f *fakeDrafts) DeleteDraft(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, id)
	return nil
}

type fakeClaims struct {
	mu      sync.Mutex
	saved   []*domain.ClaimRecord
	records map[string]*domain.ClaimRecord
	saveErr error
	ctxErr  error
}

func (f *fakeClaims) SaveClaim(ctx context.Context, rec *domain.ClaimRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeClaims) GetClaim(_ context.Context, id string) (*domain.ClaimRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id]; ok {
		return rec, nil
	}
	return nil, ports.ErrNotFound
}

func (f *fakeClaims) ListClaims(context.Context, ports.ClaimFilter) ([]*domain.ClaimRecord, int, error) {
	return nil, 0, nil
}

func (f *fakeClaims) UpdateClaimStatus(context.Context, string, domain.ClaimStatus) error {
	return nil
}

func (f *fakeClaims) AppendEvent(context.Context, *domain.ClaimEvent) error { return nil }

func (f *fakeClaims) ListEvents(context.Context, string) ([]*domain.ClaimEvent, error) {
	return nil, nil
}

func (f *fakeClaims) Close() error { return nil }

type fakeFiles struct {
	mu      sync.Mutex
	puts    []string
	deletes []string
	err     error
}

func (f *fakeFiles) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	f.puts = append(f.puts, key)
	return "mem://" + key, nil
}

func (f *fakeFiles) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	return nil
}

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, req *ports.AnalysisRequest) (*ports.AnalysisResult, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req *ports.AnalysisRequest) (*ports.AnalysisResult, error) {
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	return fn(ctx, req)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*domain.ClaimEvent
}

func (f *fakeEvents) Publish(_ context.Context, ev *domain.ClaimEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) Close() error { return nil }

func (f *fakeEvents) types() []domain.ClaimEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ClaimEventType
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeRecorder struct {
	nopRecorder
	mu        sync.Mutex
	outcomes  []Outcome
	submitted []string
	busy      []string
	fields    []string
}

func (r *fakeRecorder) AnalysisFinished(_ string, o Outcome, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *fakeRecorder) SubmissionFinished(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, outcome)
}

func (r *fakeRecorder) BusyRejected(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = append(r.busy, op)
}

func (r *fakeRecorder) FieldsExtracted(fields []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = append(r.fields, fields...)
}

type serviceFixture struct {
	svc      *Service
	drafts   *fakeDrafts
	claims   *fakeClaims
	files    *fakeFiles
	analyzer *fakeAnalyzer
	events   *fakeEvents
	recorder *fakeRecorder
	clock    *time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	flows, err := DefaultFlows()
	if err != nil {
		t.Fatalf("DefaultFlows() error = %v", err)
	}
	now := testNow
	fx := &serviceFixture{
		drafts: &fakeDrafts{},
		claims: &fakeClaims{records: map[string]*domain.ClaimRecord{}},
		files:  &fakeFiles{},
		analyzer: &fakeAnalyzer{fn: func(context.Context, *ports.AnalysisRequest) (*ports.AnalysisResult, error) {
			return ocrResult("Invoice No: INV-2024-001 Date: 12/05/2024 Amount: $49.99"), nil
		}},
		events:   &fakeEvents{},
		recorder: &fakeRecorder{},
		clock:    &now,
	}
	fx.svc, err = NewService(flows,
		WithDraftStore(fx.drafts),
		WithClaimStore(fx.claims),
		WithFileStore(fx.files),
		WithAnalyzer(fx.analyzer),
		WithEventPublisher(fx.events),
		WithRecorder(fx.recorder),
		WithServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithServiceClock(func() time.Time { return *fx.clock }),
	)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return fx
}

func jpeg() Upload {
	return Upload{Name: "invoice.jpg", ContentType: "image/jpeg", Data: []byte("fake image bytes")}
}

func TestService_SubmitsClaim(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	c, err := fx.svc.Start(ctx, StartRequest{PolicyID: "POL-1", ClaimType: domain.ClaimTypeShipping})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if c.Flow != "protection" {
		t.Errorf("Flow = %q, want default protection", c.Flow)
	}

	c, err = fx.svc.Upload(ctx, c.ID, jpeg())
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if c.Step != StepReviewingExtractedFields || c.Busy != "" {
		t.Fatalf("Step = %s Busy = %q", c.Step, c.Busy)
	}
	if len(c.Draft.UploadedFiles) != 1 || !strings.HasPrefix(c.Draft.UploadedFiles[0].URL, "mem://"+c.Draft.ClaimID+"/") {
		t.Errorf("UploadedFiles = %+v", c.Draft.UploadedFiles)
	}
	if c.Draft.ExtractedFields.InvoiceNumber != "INV-2024-001" {
		t.Errorf("InvoiceNumber = %q", c.Draft.ExtractedFields.InvoiceNumber)
	}

	c, err = fx.svc.Select(ctx, c.ID, ActionContinue)
	if err != nil {
		t.Fatalf("Select(continue) error = %v", err)
	}
	for c.Step != StepSummary {
		if c, err = fx.svc.Select(ctx, c.ID, ActionSkip); err != nil {
			t.Fatalf("Select(skip) error = %v", err)
		}
	}

	c, err = fx.svc.Select(ctx, c.ID, ActionSubmit)
	if err != nil {
		t.Fatalf("Select(submit) error = %v", err)
	}
	if c.Step != StepCompleted || c.Draft.Status != domain.DraftStatusReceived {
		t.Fatalf("Step = %s Status = %s", c.Step, c.Draft.Status)
	}
	if len(fx.claims.saved) != 1 {
		t.Fatalf("saved claims = %d, want 1", len(fx.claims.saved))
	}
	rec := fx.claims.saved[0]
	if rec.ID != c.Draft.ClaimID || rec.Status != domain.ClaimStatusReceived || rec.Flow != "protection" {
		t.Errorf("saved record = %+v", rec)
	}
	if len(rec.Files) != 1 || rec.Files[0] != c.Draft.UploadedFiles[0].URL {
		t.Errorf("record files = %v", rec.Files)
	}

	if _, err := fx.svc.Select(ctx, c.ID, ActionDone); err != nil {
		t.Fatalf("Select(done) error = %v", err)
	}

	want := []domain.ClaimEventType{
		domain.ClaimEventDraftStarted,
		domain.ClaimEventEvidenceAnalyzed,
		domain.ClaimEventSubmitted,
		domain.ClaimEventCompleted,
	}
	got := fx.events.types()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if fmt.Sprint(fx.recorder.submitted) != "[received]" {
		t.Errorf("submissions recorded = %v", fx.recorder.submitted)
	}
	if len(fx.recorder.fields) == 0 {
		t.Error("no extracted fields recorded")
	}
	if fx.drafts.ttl != DefaultSettings().DraftTTL {
		t.Errorf("draft ttl = %v", fx.drafts.ttl)
	}
}

func TestService_PersistenceFailure(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	c, _ := fx.svc.Start(ctx, StartRequest{ClaimType: domain.ClaimTypeShipping})
	c, _ = fx.svc.Select(ctx, c.ID, ActionContinueManually)
	c, _ = fx.svc.EditFields(ctx, c.ID, FieldEdit{Fields: map[string]string{"name": "Jane Doe"}})
	for c.Step != StepSummary {
		c, _ = fx.svc.Select(ctx, c.ID, ActionSkip)
	}

	fx.claims.saveErr = errors.New("connection reset")
	c, err := fx.svc.Select(ctx, c.ID, ActionSubmit)
	if err != nil {
		t.Fatalf("Select(submit) error = %v", err)
	}
	if c.Step != StepSubmissionFailed || c.Busy != "" {
		t.Fatalf("Step = %s Busy = %q", c.Step, c.Busy)
	}
	if c.Draft.ExtractedFields.Name != "Jane Doe" {
		t.Errorf("Name = %q after failed submit", c.Draft.ExtractedFields.Name)
	}

	fx.claims.saveErr = nil
	c, err = fx.svc.Select(ctx, c.ID, ActionTryAgain)
	if err != nil {
		t.Fatalf("Select(try_again) error = %v", err)
	}
	if c.Step != StepCompleted {
		t.Errorf("Step = %s, want %s", c.Step, StepCompleted)
	}
	if fmt.Sprint(fx.recorder.submitted) != "[failed received]" {
		t.Errorf("submissions recorded = %v", fx.recorder.submitted)
	}
	types := fx.events.types()
	if !containsEvent(types, domain.ClaimEventSubmissionFailed) || !containsEvent(types, domain.ClaimEventSubmitted) {
		t.Errorf("events = %v", types)
	}
}

func containsEvent(types []domain.ClaimEventType, want domain.ClaimEventType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func TestService_SubmitSurvivesCanceledRequest(t *testing.T) {
	fx := newServiceFixture(t)
	c, _ := fx.svc.Start(context.Background(), StartRequest{Flow: "assistant", ClaimType: "other"})
	c, _ = fx.svc.Reply(context.Background(), c.ID, "Something happened")
	c, _ = fx.svc.Select(context.Background(), c.ID, ActionContinueManually)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, err := fx.svc.Select(ctx, c.ID, ActionSubmit)
	if err != nil {
		t.Fatalf("Select(submit) error = %v", err)
	}
	if fx.claims.ctxErr != nil {
		t.Errorf("persistence saw canceled context: %v", fx.claims.ctxErr)
	}
	if c.Step != StepCompleted {
		t.Errorf("Step = %s, want %s", c.Step, StepCompleted)
	}
}

func TestService_AnalysisFailures(t *testing.T) {
	tests := []struct {
		name      string
		fileErr   error
		analyze   error
		wantCalls int
	}{
		{name: "analyzer error", analyze: errors.New("503 service unavailable"), wantCalls: 1},
		{name: "file store error", fileErr: errors.New("bucket missing"), wantCalls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newServiceFixture(t)
			fx.files.err = tt.fileErr
			fx.analyzer.fn = func(context.Context, *ports.AnalysisRequest) (*ports.AnalysisResult, error) {
				return nil, tt.analyze
			}
			ctx := context.Background()
			c, _ := fx.svc.Start(ctx, StartRequest{ClaimType: domain.ClaimTypeShipping})

			c, err := fx.svc.Upload(ctx, c.ID, jpeg())
			if err != nil {
				t.Fatalf("Upload() error = %v", err)
			}
			if c.Step != StepReviewingExtractedFields || c.Busy != "" {
				t.Errorf("Step = %s Busy = %q", c.Step, c.Busy)
			}
			if !hasOption(c.LastMessage(), ActionContinueManually) {
				t.Errorf("options = %v", optionValues(c.LastMessage()))
			}
			if fx.analyzer.calls != tt.wantCalls {
				t.Errorf("analyzer calls = %d, want %d", fx.analyzer.calls, tt.wantCalls)
			}
			if !containsEvent(fx.events.types(), domain.ClaimEventAnalysisFailed) {
				t.Errorf("events = %v", fx.events.types())
			}
			if fmt.Sprint(fx.recorder.outcomes) != "[failed]" {
				t.Errorf("outcomes = %v", fx.recorder.outcomes)
			}
		})
	}
}

func TestService_RejectsUploads(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	c, _ := fx.svc.Start(ctx, StartRequest{ClaimType: domain.ClaimTypeShipping})

	if _, err := fx.svc.Upload(ctx, c.ID, Upload{Name: "a.gif", ContentType: "image/gif", Data: []byte("x")}); !errors.Is(err, ErrUnsupportedMedia) {
		t.Errorf("Upload(gif) error = %v, want ErrUnsupportedMedia", err)
	}
	if _, err := fx.svc.Upload(ctx, c.ID, Upload{Name: "a.webp", ContentType: "image/webp", Data: []byte("x")}); !errors.Is(err, ErrUnsupportedMedia) {
		t.Errorf("Upload(webp for shipping) error = %v, want ErrUnsupportedMedia", err)
	}

	set := fx.svc.Settings()
	set.MaxUploadBytes = 4
	fx.svc.UpdateSettings(set)
	if _, err := fx.svc.Upload(ctx, c.ID, jpeg()); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Upload(large) error = %v, want ErrTooLarge", err)
	}

	got, err := fx.svc.Upload(ctx, c.ID, Upload{Name: "empty.jpg", ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Upload(empty) error = %v", err)
	}
	if got.Step != StepAwaitingEvidence || len(got.Draft.UploadedFiles) != 0 {
		t.Errorf("empty upload changed state: %s files = %d", got.Step, len(got.Draft.UploadedFiles))
	}
	if fx.analyzer.calls != 0 {
		t.Errorf("analyzer calls = %d, want 0", fx.analyzer.calls)
	}
}

func TestService_UploadWhileBusy(t *testing.T) {
	fx := newServiceFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	fx.analyzer.fn = func(context.Context, *ports.AnalysisRequest) (*ports.AnalysisResult, error) {
		close(started)
		<-release
		return ocrResult("Invoice No: INV-1"), nil
	}
	ctx := context.Background()
	c, _ := fx.svc.Start(ctx, StartRequest{ClaimType: domain.ClaimTypeShipping})

	done := make(chan error, 1)
	go func() {
		_, err := fx.svc.Upload(ctx, c.ID, jpeg())
		done <- err
	}()
	<-started

	if _, err := fx.svc.Upload(ctx, c.ID, jpeg()); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Upload() error = %v, want ErrBusy", err)
	}
	if _, err := fx.svc.Select(ctx, c.ID, ActionContinueManually); !errors.Is(err, ErrBusy) {
		t.Errorf("Select() while analyzing error = %v, want ErrBusy", err)
	}
	got, err := fx.svc.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Busy != BusyAnalyzing || got.InputEnabled() {
		t.Errorf("Busy = %q InputEnabled = %v", got.Busy, got.InputEnabled())
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	got, _ = fx.svc.Get(ctx, c.ID)
	if got.Draft.ExtractedFields.InvoiceNumber != "INV-1" || len(got.Draft.UploadedFiles) != 1 {
		t.Errorf("draft = %+v", got.Draft)
	}
	if fmt.Sprint(fx.recorder.busy) != "[upload select]" {
		t.Errorf("busy rejections = %v", fx.recorder.busy)
	}
}

func TestService_AbandonsStaleBusyState(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	c, _ := fx.svc.Start(ctx, StartRequest{ClaimType: domain.ClaimTypeShipping})

	// Simulate a process that died between BeginAnalysis and CompleteAnalysis.
	m, _ := fx.svc.Machine(c.Flow)
	if _, err := m.BeginAnalysis(c, testFile("f1", "image/png")); err != nil {
		t.Fatalf("BeginAnalysis() error = %v", err)
	}
	if err := fx.svc.save(ctx, c); err != nil {
		t.Fatalf("save() error = %v", err)
	}

	got, _ := fx.svc.Get(ctx, c.ID)
	if got.Busy != BusyAnalyzing {
		t.Fatalf("Busy = %q before timeout", got.Busy)
	}

	*fx.clock = fx.clock.Add(3 * DefaultSettings().AnalysisTimeout)
	got, err := fx.svc.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Busy != "" || got.Step != StepReviewingExtractedFields {
		t.Errorf("Busy = %q Step = %s after timeout", got.Busy, got.Step)
	}
}

func TestService_StatusLookup(t *testing.T) {
	fx := newServiceFixture(t)
	fx.claims.records["CLM-ABCD1234"] = &domain.ClaimRecord{ID: "CLM-ABCD1234", Status: domain.ClaimStatusApproved, SubmittedAt: testNow}
	ctx := context.Background()

	c, _ := fx.svc.Start(ctx, StartRequest{Flow: "assistant"})
	c, _ = fx.svc.Select(ctx, c.ID, ActionCheckStatus)

	c, err := fx.svc.Reply(ctx, c.ID, "clm-abcd1234")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if !strings.Contains(c.LastMessage().Text, "Claim CLM-ABCD1234 is currently approved") {
		t.Errorf("status reply = %q", c.LastMessage().Text)
	}
}

func TestService_RemoveFile(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	c, _ := fx.svc.Start(ctx, StartRequest{ClaimType: domain.ClaimTypeShipping})
	c, _ = fx.svc.Upload(ctx, c.ID, jpeg())
	fileID := c.Draft.UploadedFiles[0].ID

	c, err := fx.svc.RemoveFile(ctx, c.ID, fileID)
	if err != nil {
		t.Fatalf("RemoveFile() error = %v", err)
	}
	if len(c.Draft.UploadedFiles) != 0 {
		t.Errorf("UploadedFiles = %d", len(c.Draft.UploadedFiles))
	}
	if len(fx.files.deletes) != 1 || fx.files.deletes[0] != fx.files.puts[0] {
		t.Errorf("deletes = %v, puts = %v", fx.files.deletes, fx.files.puts)
	}
}

func TestService_EditFields(t *testing.T) {
	fx := newServiceFixture(t)
	fx.svc.sanitize = func(s string) string { return strings.ReplaceAll(strings.TrimSpace(s), "<b>", "") }
	ctx := context.Background()
	c, _ := fx.svc.Start(ctx, StartRequest{})

	c, err := fx.svc.EditFields(ctx, c.ID, FieldEdit{ClaimType: domain.ClaimTypeProduct, Fields: map[string]string{"name": " <b>Jane "}})
	if err != nil {
		t.Fatalf("EditFields() error = %v", err)
	}
	if c.Draft.ClaimType != domain.ClaimTypeProduct || c.Draft.ExtractedFields.Name != "Jane" {
		t.Errorf("draft = %+v", c.Draft)
	}

	if _, err := fx.svc.EditFields(ctx, c.ID, FieldEdit{ClaimType: "boat"}); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("EditFields(boat) error = %v, want ErrUnknownCategory", err)
	}
}

func TestService_UnknownConversation(t *testing.T) {
	fx := newServiceFixture(t)
	if _, err := fx.svc.Get(context.Background(), "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ports.ErrNotFound", err)
	}
	if _, err := fx.svc.Start(context.Background(), StartRequest{Flow: "nope"}); !errors.Is(err, ErrUnknownFlow) {
		t.Errorf("Start(nope) error = %v, want ErrUnknownFlow", err)
	}
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	flows, _ := DefaultFlows()
	if _, err := NewService(flows); err == nil {
		t.Error("NewService() without stores succeeded")
	}
}

func TestNormalizeMediaType(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "image/jpeg", want: "image/jpeg"},
		{in: "image/jpg", want: "image/jpeg"},
		{in: "Image/PNG", want: "image/png"},
		{in: "application/pdf; charset=binary", want: "application/pdf"},
		{in: "text/plain", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeMediaType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeMediaType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeMediaType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
