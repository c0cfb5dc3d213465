// Package claims serves the intake conversation API used by claimants and
// the claim listing used by merchants.
package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/claim-intake/internal/analysis"
	"github.com/tjfontaine/claim-intake/internal/auth"
	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
	"github.com/tjfontaine/claim-intake/internal/filestore"
	"github.com/tjfontaine/claim-intake/internal/intake"
	"github.com/tjfontaine/claim-intake/internal/server"
)

// DefaultPresignTTL is how long signed evidence links stay valid.
const DefaultPresignTTL = 15 * time.Minute

// maxJSONBody bounds non-upload request bodies.
const maxJSONBody = 1 << 20

// Handler serves /v1 conversation and claim routes.
type Handler struct {
	svc          *intake.Service
	claims       ports.ClaimStore
	events       ports.EventPublisher
	signer       ports.URLSigner
	presignTTL   time.Duration
	fetcher      *analysis.Fetcher
	merchantRole string
	logger       *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithURLSigner presigns evidence links in claim details.
func WithURLSigner(s ports.URLSigner, ttl time.Duration) Option {
	return func(h *Handler) {
		h.signer = s
		if ttl > 0 {
			h.presignTTL = ttl
		}
	}
}

// WithFetcher enables evidence uploads by URL.
func WithFetcher(f *analysis.Fetcher) Option {
	return func(h *Handler) { h.fetcher = f }
}

// WithEventPublisher publishes merchant status changes.
func WithEventPublisher(p ports.EventPublisher) Option {
	return func(h *Handler) { h.events = p }
}

// WithMerchantRole overrides auth.DefaultMerchantRole for /v1/claims.
func WithMerchantRole(role string) Option {
	return func(h *Handler) {
		if role != "" {
			h.merchantRole = role
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates the API handler.
func NewHandler(svc *intake.Service, claims ports.ClaimStore, opts ...Option) *Handler {
	h := &Handler{
		svc:          svc,
		claims:       claims,
		presignTTL:   DefaultPresignTTL,
		merchantRole: auth.DefaultMerchantRole,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1/conversations", func(r chi.Router) {
		r.Post("/", h.HandleStart)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Post("/messages", h.HandleReply)
			r.Post("/actions", h.HandleSelect)
			r.Post("/files", h.HandleUpload)
			r.Delete("/files/{fileID}", h.HandleRemoveFile)
			r.Patch("/fields", h.HandleEditFields)
			r.Put("/ocr-text", h.HandleEditOCRText)
		})
	})
	r.Route("/v1/claims", func(r chi.Router) {
		r.Use(server.RequireRole(h.merchantRole))
		r.Get("/", h.HandleListClaims)
		r.Get("/{id}", h.HandleGetClaim)
		r.Patch("/{id}", h.HandleUpdateClaimStatus)
		r.Get("/{id}/events", h.HandleListEvents)
	})
}

// ConversationResponse is a conversation plus the flags a client needs to
// render it.
type ConversationResponse struct {
	*intake.Conversation
	InputEnabled  bool            `json:"input_enabled"`
	UploadEnabled bool            `json:"upload_enabled"`
	Summary       *intake.Summary `json:"summary,omitempty"`
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, c *intake.Conversation) {
	resp := ConversationResponse{
		Conversation:  c,
		InputEnabled:  c.InputEnabled(),
		UploadEnabled: c.UploadEnabled(),
	}
	if c.Step >= intake.StepSummary {
		if s, err := h.svc.Summary(c); err == nil {
			resp.Summary = &s
		}
	}
	server.AddLogField(r.Context(), "step", c.Step.String())
	server.WriteJSON(w, status, resp)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	server.WriteError(w, r, toAPIError(err))
}

func conversationID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "conversation_id", id)
	return id
}

func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req intake.StartRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.Start(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "conversation_id", c.ID)
	h.respond(w, r, http.StatusCreated, c)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), conversationID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

type replyRequest struct {
	Text string `json:"text"`
}

func (h *Handler) HandleReply(w http.ResponseWriter, r *http.Request) {
	id := conversationID(r)
	var req replyRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.Reply(r.Context(), id, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

type actionRequest struct {
	Value string `json:"value"`
}

func (h *Handler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	id := conversationID(r)
	var req actionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Value == "" {
		h.fail(w, r, domain.ErrInvalidRequest("value is required").WithParam("value"))
		return
	}
	server.AddLogField(r.Context(), "action", req.Value)
	c, err := h.svc.Select(r.Context(), id, req.Value)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

func (h *Handler) HandleRemoveFile(w http.ResponseWriter, r *http.Request) {
	id := conversationID(r)
	c, err := h.svc.RemoveFile(r.Context(), id, chi.URLParam(r, "fileID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

func (h *Handler) HandleEditFields(w http.ResponseWriter, r *http.Request) {
	id := conversationID(r)
	var edit intake.FieldEdit
	if err := decodeJSON(w, r, &edit, false); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.EditFields(r.Context(), id, edit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

func (h *Handler) HandleEditOCRText(w http.ResponseWriter, r *http.Request) {
	id := conversationID(r)
	var req replyRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.EditOCRText(r.Context(), id, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

// ClaimList is the merchant listing response.
type ClaimList struct {
	Claims []*domain.ClaimRecord `json:"claims"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

func (h *Handler) HandleListClaims(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	claims, total, err := h.claims.ListClaims(r.Context(), filter)
	if err != nil {
		h.fail(w, r, fmt.Errorf("list claims: %w", err))
		return
	}
	if claims == nil {
		claims = []*domain.ClaimRecord{}
	}
	server.WriteJSON(w, http.StatusOK, ClaimList{
		Claims: claims,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func parseFilter(r *http.Request) (ports.ClaimFilter, error) {
	q := r.URL.Query()
	f := ports.ClaimFilter{
		Search:    q.Get("search"),
		Status:    domain.ClaimStatus(q.Get("status")),
		ClaimType: domain.ClaimType(q.Get("type")),
		Limit:     ports.DefaultListLimit,
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, domain.ErrInvalidRequest("unknown status " + string(f.Status)).WithParam("status")
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, domain.ErrInvalidRequest(name + " must be a non-negative integer").WithParam(name)
		}
		*dst = n
	}
	if f.Limit == 0 {
		f.Limit = ports.DefaultListLimit
	}
	return f, nil
}

func (h *Handler) HandleGetClaim(w http.ResponseWriter, r *http.Request) {
	rec, err := h.loadClaim(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, h.signFiles(r.Context(), rec))
}

type statusRequest struct {
	Status domain.ClaimStatus `json:"status"`
}

func (h *Handler) HandleUpdateClaimStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "claim_id", id)

	var req statusRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if !req.Status.Valid() {
		h.fail(w, r, domain.ErrInvalidRequest("unknown status "+string(req.Status)).WithParam("status"))
		return
	}
	if err := h.claims.UpdateClaimStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			err = domain.ErrNotFound("claim " + id + " not found")
		}
		h.fail(w, r, err)
		return
	}
	h.publishStatus(r, id, req.Status)

	rec, err := h.loadClaim(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, h.signFiles(r.Context(), rec))
}

func (h *Handler) publishStatus(r *http.Request, claimID string, status domain.ClaimStatus) {
	if h.events == nil {
		return
	}
	ev := &domain.ClaimEvent{
		ID:         uuid.New().String(),
		Type:       domain.ClaimEventStatusChanged,
		ClaimID:    claimID,
		Timestamp:  time.Now().UTC(),
		Attributes: map[string]string{"status": string(status)},
	}
	if p := auth.PrincipalFrom(r.Context()); p != nil {
		ev.Attributes["by"] = p.Subject
	}
	if err := h.events.Publish(r.Context(), ev); err != nil {
		h.logger.Warn("failed to publish status change",
			slog.String("claim_id", claimID),
			slog.String("error", err.Error()),
		)
	}
}

func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	rec, err := h.loadClaim(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	events, err := h.claims.ListEvents(r.Context(), rec.ID)
	if err != nil {
		h.fail(w, r, fmt.Errorf("list events: %w", err))
		return
	}
	if events == nil {
		events = []*domain.ClaimEvent{}
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) loadClaim(r *http.Request) (*domain.ClaimRecord, error) {
	id := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "claim_id", id)
	rec, err := h.claims.GetClaim(r.Context(), id)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domain.ErrNotFound("claim " + id + " not found")
	}
	return rec, err
}

// signFiles swaps stored evidence references for time-limited links.
// References that cannot be signed are returned unchanged.
func (h *Handler) signFiles(ctx context.Context, rec *domain.ClaimRecord) *domain.ClaimRecord {
	if h.signer == nil || len(rec.Files) == 0 {
		return rec
	}
	out := *rec
	out.Files = make([]string, len(rec.Files))
	for i, ref := range rec.Files {
		out.Files[i] = ref
		key, ok := filestore.ObjectKey(ref)
		if !ok {
			continue
		}
		signed, err := h.signer.SignURL(ctx, key, h.presignTTL)
		if err != nil {
			h.logger.Warn("failed to sign evidence url",
				slog.String("claim_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out.Files[i] = signed
	}
	return &out
}

// decodeJSON reads a bounded JSON body into v. An empty body is accepted
// only when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(body).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	case errors.Is(err, io.EOF):
		return domain.ErrInvalidRequest("request body is required")
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.NewAPIError(domain.ErrorTypeTooLarge, "request body too large")
	}
	return domain.ErrInvalidRequest("invalid JSON body: " + err.Error())
}
