package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

// Settings are the reloadable knobs of the service.
type Settings struct {
	DefaultFlow     string
	Pace            time.Duration
	AnalysisTimeout time.Duration
	PersistTimeout  time.Duration
	DraftTTL        time.Duration
	MaxUploadBytes  int64
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		DefaultFlow:     "protection",
		Pace:            600 * time.Millisecond,
		AnalysisTimeout: 60 * time.Second,
		PersistTimeout:  10 * time.Second,
		DraftTTL:        24 * time.Hour,
		MaxUploadBytes:  10 << 20,
	}
}

// AcceptedMedia lists the content types accepted for evidence uploads.
var AcceptedMedia = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}

// StartRequest opens a conversation.
type StartRequest struct {
	Flow      string           `json:"flow,omitempty"`
	PolicyID  string           `json:"policy_id,omitempty"`
	ClaimType domain.ClaimType `json:"claim_type,omitempty"`
}

// Upload is one evidence file sent by the claimant.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Service hosts intake conversations: it loads and saves snapshots, runs
// the machine under a per-conversation lock, and performs the collaborator
// calls that transitions request.
type Service struct {
	flows      Flows
	drafts     ports.DraftStore
	claims     ports.ClaimStore
	files      ports.FileStore
	analyzer   ports.Analyzer
	events     ports.EventPublisher
	completion ports.CompletionHandler
	recorder   Recorder
	sanitize   func(string) string
	logger     *slog.Logger
	now        func() time.Time
	claimIDs   func() string

	mu       sync.RWMutex
	settings Settings
	machines map[string]*Machine

	locks keyedMutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service) error

func WithDraftStore(s ports.DraftStore) ServiceOption {
	return func(svc *Service) error {
		svc.drafts = s
		return nil
	}
}

func WithClaimStore(s ports.ClaimStore) ServiceOption {
	return func(svc *Service) error {
		svc.claims = s
		return nil
	}
}

func WithFileStore(s ports.FileStore) ServiceOption {
	return func(svc *Service) error {
		svc.files = s
		return nil
	}
}

func WithAnalyzer(a ports.Analyzer) ServiceOption {
	return func(svc *Service) error {
		svc.analyzer = a
		return nil
	}
}

func WithEventPublisher(p ports.EventPublisher) ServiceOption {
	return func(svc *Service) error {
		svc.events = p
		return nil
	}
}

// WithCompletionHandler replaces the default completion behaviour of
// publishing a claim.completed event.
func WithCompletionHandler(h ports.CompletionHandler) ServiceOption {
	return func(svc *Service) error {
		svc.completion = h
		return nil
	}
}

func WithRecorder(r Recorder) ServiceOption {
	return func(svc *Service) error {
		svc.recorder = r
		return nil
	}
}

// WithSanitizer sets the filter applied to claimant-supplied text.
func WithSanitizer(fn func(string) string) ServiceOption {
	return func(svc *Service) error {
		svc.sanitize = fn
		return nil
	}
}

func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(svc *Service) error {
		svc.logger = l
		return nil
	}
}

func WithSettings(s Settings) ServiceOption {
	return func(svc *Service) error {
		svc.settings = s
		return nil
	}
}

// WithServiceClock overrides the time source of the service and its
// machines.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(svc *Service) error {
		svc.now = now
		return nil
	}
}

// WithServiceClaimIDs overrides claim id generation.
func WithServiceClaimIDs(fn func() string) ServiceOption {
	return func(svc *Service) error {
		svc.claimIDs = fn
		return nil
	}
}

// NewService creates an intake service for the given flows. A draft store,
// claim store, file store and analyzer are required.
func NewService(flows Flows, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		flows:    flows,
		recorder: nopRecorder{},
		sanitize: strings.TrimSpace,
		logger:   slog.Default(),
		now:      time.Now,
		claimIDs: NewClaimID,
		settings: DefaultSettings(),
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}

	switch {
	case len(flows) == 0:
		return nil, errors.New("intake: no flows configured")
	case svc.drafts == nil:
		return nil, errors.New("intake: draft store is required")
	case svc.claims == nil:
		return nil, errors.New("intake: claim store is required")
	case svc.files == nil:
		return nil, errors.New("intake: file store is required")
	case svc.analyzer == nil:
		return nil, errors.New("intake: analyzer is required")
	}
	if _, ok := flows[svc.settings.DefaultFlow]; !ok {
		return nil, fmt.Errorf("%w: default flow %q", ErrUnknownFlow, svc.settings.DefaultFlow)
	}

	svc.buildMachines()
	return svc, nil
}

func (s *Service) buildMachines() {
	machines := make(map[string]*Machine, len(s.flows))
	for name, f := range s.flows {
		machines[name] = NewMachine(f,
			WithPace(s.settings.Pace),
			WithClock(s.now),
			WithClaimIDs(s.claimIDs),
		)
	}
	s.machines = machines
}

// UpdateSettings applies reloaded settings to new requests. The default
// flow is kept if the new one is not configured.
func (s *Service) UpdateSettings(next Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flows[next.DefaultFlow]; !ok {
		next.DefaultFlow = s.settings.DefaultFlow
	}
	s.settings = next
	s.buildMachines()
}

// Settings returns the current settings.
func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Service) machine(flow string) (*Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.machines[flow]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlow, flow)
	}
	return m, nil
}

// Machine returns the machine driving flow.
func (s *Service) Machine(flow string) (*Machine, error) {
	return s.machine(flow)
}

// Start opens a conversation.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Conversation, error) {
	flow := req.Flow
	if flow == "" {
		flow = s.Settings().DefaultFlow
	}
	m, err := s.machine(flow)
	if err != nil {
		return nil, err
	}
	c, err := m.Start(s.sanitize(req.PolicyID), req.ClaimType)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}

	s.recorder.ConversationStarted(flow)
	s.publish(ctx, domain.ClaimEventDraftStarted, c, nil)
	s.logger.Info("conversation started",
		slog.String("conversation_id", c.ID),
		slog.String("claim_id", c.Draft.ClaimID),
		slog.String("flow", flow),
	)
	return c, nil
}

// Get returns the current conversation. A busy flag left behind by an
// operation that never reported back is cleared once it is older than the
// relevant timeout.
func (s *Service) Get(ctx context.Context, id string) (*Conversation, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	c, m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.expired(c) {
		s.logger.Warn("abandoning stale busy state",
			slog.String("conversation_id", c.ID),
			slog.String("busy", c.Busy),
		)
		m.Abandon(c)
		if err := s.save(ctx, c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (s *Service) expired(c *Conversation) bool {
	if c.Busy == "" || c.BusySince.IsZero() {
		return false
	}
	set := s.Settings()
	limit := set.AnalysisTimeout
	if c.Busy == BusySubmitting {
		limit = set.PersistTimeout
	}
	return s.now().Sub(c.BusySince) > 2*limit
}

// Select applies an option. Submission and status lookups run before it
// returns.
func (s *Service) Select(ctx context.Context, id, value string) (*Conversation, error) {
	var eff Effect
	c, err := s.update(ctx, id, func(c *Conversation, m *Machine) error {
		var err error
		eff, err = m.Select(c, value)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrBusy) {
			s.recorder.BusyRejected("select")
		}
		return nil, err
	}
	return s.follow(ctx, c, eff)
}

// Reply applies a free-text message.
func (s *Service) Reply(ctx context.Context, id, text string) (*Conversation, error) {
	text = s.sanitize(text)
	var eff Effect
	c, err := s.update(ctx, id, func(c *Conversation, m *Machine) error {
		var err error
		eff, err = m.Reply(c, text)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrBusy) {
			s.recorder.BusyRejected("reply")
		}
		return nil, err
	}
	return s.follow(ctx, c, eff)
}

func (s *Service) follow(ctx context.Context, c *Conversation, eff Effect) (*Conversation, error) {
	switch eff.Kind {
	case EffectSubmit:
		return s.submit(ctx, c)
	case EffectLookup:
		return s.lookup(ctx, c, eff.Value)
	case EffectComplete:
		s.complete(ctx, c)
	}
	return c, nil
}

func (s *Service) submit(ctx context.Context, c *Conversation) (*Conversation, error) {
	m, err := s.machine(c.Flow)
	if err != nil {
		return nil, err
	}
	rec := m.Record(c)

	// The result must be recorded even if the caller goes away.
	bg := context.WithoutCancel(ctx)
	pctx, cancel := context.WithTimeout(bg, s.Settings().PersistTimeout)
	saveErr := s.claims.SaveClaim(pctx, rec)
	cancel()

	c, err = s.update(bg, c.ID, func(c *Conversation, m *Machine) error {
		return m.CompleteSubmit(c, saveErr)
	})
	if err != nil {
		return nil, err
	}

	if saveErr != nil {
		s.logger.Error("claim submission failed",
			slog.String("conversation_id", c.ID),
			slog.String("claim_id", rec.ID),
			slog.String("error", saveErr.Error()),
		)
		s.recorder.SubmissionFinished("failed")
		s.publish(bg, domain.ClaimEventSubmissionFailed, c, map[string]string{"error": saveErr.Error()})
		return c, nil
	}

	s.logger.Info("claim submitted",
		slog.String("conversation_id", c.ID),
		slog.String("claim_id", rec.ID),
		slog.String("claim_type", string(rec.ClaimType)),
	)
	s.recorder.SubmissionFinished("received")
	s.publish(bg, domain.ClaimEventSubmitted, c, map[string]string{"claim_type": string(rec.ClaimType)})
	return c, nil
}

func (s *Service) lookup(ctx context.Context, c *Conversation, claimID string) (*Conversation, error) {
	claimID = strings.ToUpper(strings.TrimSpace(claimID))
	rec, err := s.claims.GetClaim(ctx, claimID)
	if errors.Is(err, ports.ErrNotFound) {
		rec, err = nil, nil
	}
	if err != nil {
		s.logger.Error("claim status lookup failed",
			slog.String("conversation_id", c.ID),
			slog.String("claim_id", claimID),
			slog.String("error", err.Error()),
		)
	}
	return s.update(ctx, c.ID, func(c *Conversation, m *Machine) error {
		m.ReportStatus(c, claimID, rec, err)
		return nil
	})
}

func (s *Service) complete(ctx context.Context, c *Conversation) {
	if s.completion == nil {
		s.publish(ctx, domain.ClaimEventCompleted, c, nil)
		return
	}
	if err := s.completion.ClaimCompleted(ctx, c.ID, &c.Draft); err != nil {
		s.logger.Error("completion handler failed",
			slog.String("conversation_id", c.ID),
			slog.String("claim_id", c.Draft.ClaimID),
			slog.String("error", err.Error()),
		)
	}
}

// Upload stores an evidence file, analyzes it and applies the result.
// Storage and analysis failures become conversation messages; only
// rejected uploads and draft store errors are returned.
func (s *Service) Upload(ctx context.Context, id string, up Upload) (*Conversation, error) {
	set := s.Settings()
	if len(up.Data) == 0 {
		return s.Get(ctx, id)
	}
	if set.MaxUploadBytes > 0 && int64(len(up.Data)) > set.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(up.Data), set.MaxUploadBytes)
	}
	contentType, err := NormalizeMediaType(up.ContentType)
	if err != nil {
		return nil, err
	}

	file := domain.UploadedFile{
		ID:          ulid.Make().String(),
		Name:        s.sanitize(path.Base(up.Name)),
		ContentType: contentType,
		Size:        int64(len(up.Data)),
		UploadedAt:  s.now(),
	}

	var ticket Ticket
	c, err := s.update(ctx, id, func(c *Conversation, m *Machine) error {
		var err error
		ticket, err = m.BeginAnalysis(c, file)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrBusy) {
			s.recorder.BusyRejected("upload")
		}
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	started := s.now()

	var res *ports.AnalysisResult
	url, analyzeErr := s.files.Put(bg, fileKey(c.Draft.ClaimID, file), contentType, bytes.NewReader(up.Data), file.Size)
	if analyzeErr != nil {
		analyzeErr = fmt.Errorf("store evidence: %w", analyzeErr)
	} else {
		actx, cancel := context.WithTimeout(bg, set.AnalysisTimeout)
		res, analyzeErr = s.analyzer.Analyze(actx, &ports.AnalysisRequest{
			Name:        file.Name,
			ContentType: contentType,
			Data:        up.Data,
		})
		cancel()
	}
	took := s.now().Sub(started)

	var (
		outcome Outcome
		stale   bool
		before  domain.ExtractedFields
	)
	c, err = s.update(bg, id, func(c *Conversation, m *Machine) error {
		if url != "" {
			m.AttachFileURL(c, file.ID, url)
		}
		before = c.Draft.ExtractedFields
		var err error
		outcome, err = m.CompleteAnalysis(c, ticket, res, analyzeErr)
		if errors.Is(err, ErrStaleResult) {
			stale = true
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	attrs := []any{
		slog.String("conversation_id", c.ID),
		slog.String("file_id", file.ID),
		slog.Duration("duration", took),
	}
	if stale {
		s.logger.Warn("discarding stale analysis result", attrs...)
		return c, nil
	}

	mode := string(ports.AnalysisModeOCR)
	if res != nil && res.Mode != "" {
		mode = string(res.Mode)
	}
	s.recorder.AnalysisFinished(mode, outcome, took)

	switch outcome {
	case OutcomeFailed, OutcomeUnreadable:
		if analyzeErr != nil {
			attrs = append(attrs, slog.String("error", analyzeErr.Error()))
		}
		s.logger.Warn("evidence analysis failed", attrs...)
		s.publish(bg, domain.ClaimEventAnalysisFailed, c, map[string]string{"outcome": string(outcome)})
	default:
		after := c.Draft.ExtractedFields
		s.recorder.FieldsExtracted(before.Merge(after))
		s.logger.Info("evidence analyzed", append(attrs, slog.String("outcome", string(outcome)))...)
		s.publish(bg, domain.ClaimEventEvidenceAnalyzed, c, map[string]string{
			"outcome": string(outcome),
			"mode":    mode,
		})
	}
	return c, nil
}

func fileKey(claimID string, f domain.UploadedFile) string {
	ext := ".bin"
	switch f.ContentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	case "application/pdf":
		ext = ".pdf"
	}
	return claimID + "/" + f.ID + ext
}

// NormalizeMediaType reduces a Content-Type header to an accepted media type.
func NormalizeMediaType(contentType string) (string, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, contentType)
	}
	if mt == "image/jpg" {
		mt = "image/jpeg"
	}
	for _, a := range AcceptedMedia {
		if mt == a {
			return mt, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, mt)
}

// RemoveFile detaches an uploaded file and deletes its stored object.
func (s *Service) RemoveFile(ctx context.Context, id, fileID string) (*Conversation, error) {
	var key string
	c, err := s.update(ctx, id, func(c *Conversation, m *Machine) error {
		for _, f := range c.Draft.UploadedFiles {
			if f.ID == fileID {
				key = fileKey(c.Draft.ClaimID, f)
			}
		}
		return m.RemoveFile(c, fileID)
	})
	if err != nil {
		return nil, err
	}
	if err := s.files.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete stored evidence",
			slog.String("conversation_id", id),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}
	return c, nil
}

// FieldEdit is a set of claimant corrections.
type FieldEdit struct {
	Fields    map[string]string `json:"fields,omitempty"`
	ClaimType domain.ClaimType  `json:"claim_type,omitempty"`
}

// EditFields applies claimant corrections to the draft.
func (s *Service) EditFields(ctx context.Context, id string, edit FieldEdit) (*Conversation, error) {
	fields := make(map[string]string, len(edit.Fields))
	for k, v := range edit.Fields {
		fields[k] = s.sanitize(v)
	}
	return s.update(ctx, id, func(c *Conversation, m *Machine) error {
		if edit.ClaimType != "" {
			if err := m.SetClaimType(c, edit.ClaimType); err != nil {
				return err
			}
		}
		if len(fields) == 0 {
			return nil
		}
		return m.EditFields(c, fields)
	})
}

// EditOCRText replaces the recognized text and re-runs extraction.
func (s *Service) EditOCRText(ctx context.Context, id, text string) (*Conversation, error) {
	text = s.sanitize(text)
	return s.update(ctx, id, func(c *Conversation, m *Machine) error {
		return m.EditOCRText(c, text)
	})
}

// Summary returns the review of the conversation's draft.
func (s *Service) Summary(c *Conversation) (Summary, error) {
	m, err := s.machine(c.Flow)
	if err != nil {
		return Summary{}, err
	}
	return m.Summary(c), nil
}

// update loads the conversation under its lock, applies fn and saves the
// result. Nothing is saved when fn fails.
func (s *Service) update(ctx context.Context, id string, fn func(*Conversation, *Machine) error) (*Conversation, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	c, m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(c, m); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now()
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) load(ctx context.Context, id string) (*Conversation, *Machine, error) {
	data, err := s.drafts.LoadDraft(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	m, err := s.machine(c.Flow)
	if err != nil {
		return nil, nil, err
	}
	return &c, m, nil
}

func (s *Service) save(ctx context.Context, c *Conversation) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", c.ID, err)
	}
	if err := s.drafts.SaveDraft(ctx, c.ID, data, s.Settings().DraftTTL); err != nil {
		return fmt.Errorf("save conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, typ domain.ClaimEventType, c *Conversation, attrs map[string]string) {
	if s.events == nil {
		return
	}
	ev := &domain.ClaimEvent{
		ID:             uuid.New().String(),
		Type:           typ,
		ConversationID: c.ID,
		ClaimID:        c.Draft.ClaimID,
		Flow:           c.Flow,
		Step:           c.Step.String(),
		Timestamp:      s.now(),
		Attributes:     attrs,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish claim event",
			slog.String("event_type", string(typ)),
			slog.String("claim_id", ev.ClaimID),
			slog.String("error", err.Error()),
		)
	}
}
