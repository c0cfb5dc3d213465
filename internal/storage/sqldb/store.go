// Package sqldb stores claims, claim events and drafts in a SQL database.
// SQLite (modernc) and PostgreSQL (pgx) are supported through dialects.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
	"github.com/tjfontaine/claim-intake/internal/storage/dialect"
)

// Store is a SQL implementation of ClaimStore and DraftStore.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
	now     func() time.Time
}

var (
	_ ports.ClaimStore = (*Store)(nil)
	_ ports.DraftStore = (*Store)(nil)
)

// Config holds database connection configuration.
type Config struct {
	Driver string // sqlite or postgres
	DSN    string
}

// New opens the database and creates the schema if needed.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d, now: time.Now}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewSQLite opens a SQLite database at path.
func NewSQLite(path string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: path})
}

// DB returns the underlying sqlx.DB.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) initSchema() error {
	ts := s.dialect.TimestampType()
	statements := []string{
		`CREATE TABLE IF NOT EXISTS claims (
id TEXT PRIMARY KEY,
user_email TEXT NOT NULL DEFAULT '',
user_name TEXT NOT NULL DEFAULT '',
user_phone TEXT NOT NULL DEFAULT '',
claim_type TEXT NOT NULL,
product_name TEXT NOT NULL DEFAULT '',
purchase_date TEXT NOT NULL DEFAULT '',
reason TEXT NOT NULL DEFAULT '',
additional_details TEXT NOT NULL DEFAULT '',
ocr_text TEXT NOT NULL DEFAULT '',
policy_id TEXT NOT NULL DEFAULT '',
invoice_number TEXT NOT NULL DEFAULT '',
amount TEXT NOT NULL DEFAULT '',
status TEXT NOT NULL,
flow TEXT NOT NULL DEFAULT '',
ai_confidence ` + s.dialect.RealType() + ` NOT NULL DEFAULT 0,
recommended_action TEXT NOT NULL DEFAULT '',
damage_analysis TEXT,
files TEXT NOT NULL,
submitted_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS claim_events (
id TEXT PRIMARY KEY,
claim_id TEXT NOT NULL,
conversation_id TEXT NOT NULL,
type TEXT NOT NULL,
flow TEXT NOT NULL DEFAULT '',
step TEXT NOT NULL DEFAULT '',
attributes TEXT,
created_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS drafts (
id TEXT PRIMARY KEY,
data TEXT NOT NULL,
expires_at ` + ts + `,
updated_at ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_type ON claims(claim_type)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_submitted ON claims(submitted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_claim_events_claim ON claim_events(claim_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_drafts_expires ON drafts(expires_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

var claimColumns = []string{
	"id", "user_email", "user_name", "user_phone", "claim_type", "product_name",
	"purchase_date", "reason", "additional_details", "ocr_text", "policy_id",
	"invoice_number", "amount", "status", "flow", "ai_confidence",
	"recommended_action", "damage_analysis", "files", "submitted_at",
}

// claimRow adds the JSON-encoded columns that ClaimRecord keeps structured.
type claimRow struct {
	domain.ClaimRecord
	DamageJSON sql.NullString `db:"damage_analysis"`
	FilesJSON  string         `db:"files"`
}

func (r *claimRow) record() (*domain.ClaimRecord, error) {
	rec := r.ClaimRecord
	if r.DamageJSON.Valid && r.DamageJSON.String != "" {
		var da domain.DamageAnalysis
		if err := json.Unmarshal([]byte(r.DamageJSON.String), &da); err != nil {
			return nil, fmt.Errorf("failed to unmarshal damage analysis: %w", err)
		}
		rec.DamageAnalysis = &da
	}
	if err := json.Unmarshal([]byte(r.FilesJSON), &rec.Files); err != nil {
		return nil, fmt.Errorf("failed to unmarshal files: %w", err)
	}
	if rec.Files == nil {
		rec.Files = []string{}
	}
	rec.SubmittedAt = rec.SubmittedAt.UTC()
	return &rec, nil
}

func (s *Store) SaveClaim(ctx context.Context, rec *domain.ClaimRecord) error {
	files := rec.Files
	if files == nil {
		files = []string{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("failed to marshal files: %w", err)
	}
	var damage sql.NullString
	if rec.DamageAnalysis != nil {
		b, err := json.Marshal(rec.DamageAnalysis)
		if err != nil {
			return fmt.Errorf("failed to marshal damage analysis: %w", err)
		}
		damage = sql.NullString{String: string(b), Valid: true}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(claimColumns)), ", ")
	query := s.dialect.Rebind(`INSERT INTO claims (` + strings.Join(claimColumns, ", ") + `)
VALUES (` + placeholders + `) ` + s.dialect.UpsertClause("id", claimColumns[1:]))

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.UserEmail, rec.UserName, rec.UserPhone, string(rec.ClaimType), rec.ProductName,
		rec.PurchaseDate, rec.Reason, rec.AdditionalDetails, rec.OCRText, rec.PolicyID,
		rec.InvoiceNumber, rec.Amount, string(rec.Status), rec.Flow, rec.AIConfidence,
		rec.RecommendedAction, damage, string(filesJSON), rec.SubmittedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save claim: %w", err)
	}
	return nil
}

func (s *Store) GetClaim(ctx context.Context, id string) (*domain.ClaimRecord, error) {
	query := s.dialect.Rebind(`SELECT ` + strings.Join(claimColumns, ", ") + ` FROM claims WHERE id = ?`)

	var row claimRow
	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return row.record()
}

func (s *Store) ListClaims(ctx context.Context, filter ports.ClaimFilter) ([]*domain.ClaimRecord, int, error) {
	var where []string
	var args []any

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ClaimType != "" {
		where = append(where, "claim_type = ?")
		args = append(args, string(filter.ClaimType))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := s.dialect.CaseInsensitiveLike()
		where = append(where, fmt.Sprintf("(id %[1]s ? OR user_name %[1]s ? OR user_email %[1]s ? OR product_name %[1]s ?)", like))
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.dialect.Rebind(`SELECT COUNT(*) FROM claims`+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count claims: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = ports.DefaultListLimit
	}
	query := s.dialect.Rebind(`SELECT ` + strings.Join(claimColumns, ", ") + ` FROM claims` + clause +
		` ORDER BY submitted_at DESC, id DESC LIMIT ? OFFSET ?`)

	var rows []claimRow
	if err := s.db.SelectContext(ctx, &rows, query, append(args, limit, filter.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list claims: %w", err)
	}

	recs := make([]*domain.ClaimRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}
	return recs, total, nil
}

func (s *Store) UpdateClaimStatus(ctx context.Context, id string, status domain.ClaimStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid claim status %q", status)
	}
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`UPDATE claims SET status = ? WHERE id = ?`), string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update claim status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update claim status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("claim %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, event *domain.ClaimEvent) error {
	var attrs sql.NullString
	if len(event.Attributes) > 0 {
		b, err := json.Marshal(event.Attributes)
		if err != nil {
			return fmt.Errorf("failed to marshal event attributes: %w", err)
		}
		attrs = sql.NullString{String: string(b), Valid: true}
	}

	query := s.dialect.Rebind(`INSERT INTO claim_events (id, claim_id, conversation_id, type, flow, step, attributes, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.ClaimID, event.ConversationID, string(event.Type), event.Flow, event.Step, attrs, event.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to append claim event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, claimID string) ([]*domain.ClaimEvent, error) {
	query := s.dialect.Rebind(`SELECT id, claim_id, conversation_id, type, flow, step, attributes, created_at
FROM claim_events WHERE claim_id = ? ORDER BY created_at ASC, id ASC`)

	rows, err := s.db.QueryContext(ctx, query, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to query claim events: %w", err)
	}
	defer rows.Close()

	var events []*domain.ClaimEvent
	for rows.Next() {
		var e domain.ClaimEvent
		var typ string
		var attrs sql.NullString
		if err := rows.Scan(&e.ID, &e.ClaimID, &e.ConversationID, &typ, &e.Flow, &e.Step, &attrs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan claim event: %w", err)
		}
		e.Type = domain.ClaimEventType(typ)
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &e.Attributes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event attributes: %w", err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claim events: %w", err)
	}
	return events, nil
}

func (s *Store) SaveDraft(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	now := s.now().UTC()
	var expires sql.NullTime
	if ttl > 0 {
		expires = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}

	query := s.dialect.Rebind(`INSERT INTO drafts (id, data, expires_at, updated_at) VALUES (?, ?, ?, ?) ` +
		s.dialect.UpsertClause("id", []string{"data", "expires_at", "updated_at"}))
	if _, err := s.db.ExecContext(ctx, query, id, string(data), expires, now); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (s *Store) LoadDraft(ctx context.Context, id string) ([]byte, error) {
	var row struct {
		Data      string       `db:"data"`
		ExpiresAt sql.NullTime `db:"expires_at"`
	}
	err := s.db.GetContext(ctx, &row, s.dialect.Rebind(`SELECT data, expires_at FROM drafts WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	if row.ExpiresAt.Valid && !s.now().Before(row.ExpiresAt.Time) {
		return nil, fmt.Errorf("draft %s expired: %w", id, ports.ErrNotFound)
	}
	return []byte(row.Data), nil
}

func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM drafts WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// PurgeExpiredDrafts removes drafts whose TTL has passed.
func (s *Store) PurgeExpiredDrafts(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM drafts WHERE expires_at IS NOT NULL AND expires_at <= ?`), s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge drafts: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
