package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/david/opportunity-importer/internal/ingest"
	"github.com/david/opportunity-importer/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var ErrNotFound = errors.New("not found")

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type ListParams struct {
	Query  string
	Limit  int
	Offset int
}

type ListResult struct {
	Records []models.TempRecord `json:"records"`
	Total   int                 `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// selectCols is the column list shared by every temp record query.
const selectCols = `id, project_title, client_name, location, budget_text, deadline,
	documents, tags, ai_summary, ai_metadata, raw_payload,
	match_score, risk_score, strategic_fit_score, reviewer_notes, created_at`

func scanTempRecord(scan func(dest ...any) error, extra ...any) (models.TempRecord, error) {
	var r models.TempRecord
	var aiMetadata, rawPayload []byte

	dest := []any{
		&r.ID, &r.ProjectTitle, &r.ClientName, &r.Location, &r.BudgetText, &r.Deadline,
		&r.Documents, &r.Tags, &r.AISummary, &aiMetadata, &rawPayload,
		&r.MatchScore, &r.RiskScore, &r.StrategicFitScore, &r.ReviewerNotes, &r.CreatedAt,
	}
	if err := scan(append(dest, extra...)...); err != nil {
		return r, err
	}
	if len(aiMetadata) > 0 {
		r.AIMetadata = aiMetadata
	}
	if len(rawPayload) > 0 {
		r.RawPayload = rawPayload
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return r, nil
}

// ListStagedKeys returns the dedup fields of every staged record.
func (s *Store) ListStagedKeys(ctx context.Context) ([]models.StagedKey, error) {
	rows, err := s.pool.Query(ctx, `SELECT project_title, client_name, COALESCE(location, '') FROM temp_opportunities`)
	if err != nil {
		return nil, fmt.Errorf("list staged keys: %w", err)
	}
	defer rows.Close()

	var keys []models.StagedKey
	for rows.Next() {
		var k models.StagedKey
		if err := rows.Scan(&k.ProjectTitle, &k.ClientName, &k.Location); err != nil {
			return nil, fmt.Errorf("scan staged key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return keys, nil
}

func (s *Store) CreateTempRecord(ctx context.Context, in models.TempRecordInput) (*models.TempRecord, error) {
	var embedding *pgvector.Vector
	if len(in.Embedding) > 0 {
		v := pgvector.NewVector(in.Embedding)
		embedding = &v
	}

	sql := fmt.Sprintf(`
		INSERT INTO temp_opportunities (
			project_title, client_name, location, budget_text, deadline,
			documents, tags, ai_summary, ai_metadata, raw_payload,
			match_score, risk_score, strategic_fit_score, reviewer_notes, embedding
		) VALUES ($1, $2, $3, $4, $5::timestamptz, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING %s`, selectCols)

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	row := s.pool.QueryRow(ctx, sql,
		in.ProjectTitle, in.ClientName, in.Location, in.BudgetText, in.Deadline,
		in.Documents, tags, in.AISummary, nullableJSON(in.AIMetadata), nullableJSON(in.RawPayload),
		in.MatchScore, in.RiskScore, in.StrategicFitScore, in.ReviewerNotes, embedding,
	)
	r, err := scanTempRecord(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("insert temp record: %w", err)
	}
	return &r, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// buildStagingFilter returns the WHERE clause and args for a list query.
func buildStagingFilter(params ListParams) (string, []any) {
	where := "WHERE 1=1"
	var args []any

	if q := strings.TrimSpace(params.Query); q != "" {
		args = append(args, q)
		where += fmt.Sprintf(" AND (search_vector @@ plainto_tsquery('english', $%d) OR project_title ILIKE '%%' || $%d || '%%' OR client_name ILIKE '%%' || $%d || '%%')", len(args), len(args), len(args))
	}
	return where, args
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (s *Store) ListTempRecords(ctx context.Context, params ListParams) (*ListResult, error) {
	params.Limit = clampLimit(params.Limit)
	if params.Offset < 0 {
		params.Offset = 0
	}
	where, args := buildStagingFilter(params)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM temp_opportunities "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM temp_opportunities %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		selectCols, where, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	records := []models.TempRecord{}
	for rows.Next() {
		r, err := scanTempRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return &ListResult{Records: records, Total: total, Limit: params.Limit, Offset: params.Offset}, nil
}

func (s *Store) GetTempRecord(ctx context.Context, id uuid.UUID) (*models.TempRecord, error) {
	sql := fmt.Sprintf(`SELECT %s FROM temp_opportunities WHERE id = $1`, selectCols)
	r, err := scanTempRecord(s.pool.QueryRow(ctx, sql, id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get temp record: %w", err)
	}
	return &r, nil
}

// FindSimilar returns the staged records closest to id by cosine distance.
// A record without an embedding has no neighbours.
func (s *Store) FindSimilar(ctx context.Context, id uuid.UUID, limit int) ([]models.TempRecord, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM temp_opportunities WHERE id = $1)", id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check temp record: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	sql := fmt.Sprintf(`
		WITH target AS (SELECT embedding FROM temp_opportunities WHERE id = $1)
		SELECT %s, 1 - (t.embedding <=> target.embedding) AS similarity
		FROM temp_opportunities t, target
		WHERE t.id <> $1 AND t.embedding IS NOT NULL AND target.embedding IS NOT NULL
		ORDER BY t.embedding <=> target.embedding
		LIMIT $2`, prefixedCols("t"))

	rows, err := s.pool.Query(ctx, sql, id, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}
	defer rows.Close()

	records := []models.TempRecord{}
	for rows.Next() {
		var similarity float64
		r, err := scanTempRecord(rows.Scan, &similarity)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		r.Similarity = &similarity
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return records, nil
}

func prefixedCols(alias string) string {
	cols := strings.Split(selectCols, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// StagingStats backs the verify_db tool.
type StagingStats struct {
	Total         int `json:"total"`
	WithEmbedding int `json:"with_embedding"`
	WithDeadline  int `json:"with_deadline"`
	Last24h       int `json:"last_24h"`
	ImportRuns    int `json:"import_runs"`
	FailedRuns    int `json:"failed_runs"`
}

func (s *Store) GetStagingStats(ctx context.Context) (*StagingStats, error) {
	var st StagingStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE embedding IS NOT NULL),
			COUNT(*) FILTER (WHERE deadline IS NOT NULL),
			COUNT(*) FILTER (WHERE created_at > NOW() - INTERVAL '24 hours')
		FROM temp_opportunities`).Scan(&st.Total, &st.WithEmbedding, &st.WithDeadline, &st.Last24h)
	if err != nil {
		return nil, fmt.Errorf("staging stats: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'failed') FROM import_runs`).Scan(&st.ImportRuns, &st.FailedRuns)
	if err != nil {
		return nil, fmt.Errorf("import run stats: %w", err)
	}
	return &st, nil
}

// StartImportRun records a running batch and returns its id.
func (s *Store) StartImportRun(ctx context.Context, urls []string) (string, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO import_runs (urls, status) VALUES ($1, 'running') RETURNING id`, urls,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("start import run: %w", err)
	}
	return id.String(), nil
}

func (s *Store) FinishImportRun(ctx context.Context, runID string, summary ingest.RunSummary) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	warnings := summary.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_runs
		SET status = $2, outcome = $3, found = $4, stored = $5, skipped = $6, errors = $7,
			warnings = $8, duration_ms = $9, completed_at = NOW()
		WHERE id = $1`,
		id, summary.Status, string(summary.Outcome), summary.Found, summary.Stored, summary.Skipped,
		summary.Errors, warnings, summary.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("finish import run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListImportRuns(ctx context.Context, limit int) ([]models.ImportRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, urls, status, COALESCE(outcome, ''), found, stored, skipped, errors, warnings, started_at, completed_at
		FROM import_runs
		ORDER BY started_at DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer rows.Close()

	runs := []models.ImportRun{}
	for rows.Next() {
		var r models.ImportRun
		if err := rows.Scan(&r.ID, &r.URLs, &r.Status, &r.Outcome, &r.Found, &r.Stored, &r.Skipped,
			&r.Errors, &r.Warnings, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return runs, nil
}
