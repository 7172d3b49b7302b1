package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"NewsScout/internal/domain"
	"NewsScout/internal/ports"
)

// PostgresStore implements ports.RunStore over Postgres.
type PostgresStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.RunStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPostgresStore(db), nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema creates the tables this store reads and writes. Run and
// topic rows are normally managed upstream; the schema here makes
// standalone deployments and integration tests self-contained.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'en',
		negative_filters TEXT[] NOT NULL DEFAULT '{}',
		max_sources_per_run INTEGER NOT NULL DEFAULT 30,
		model TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		feed_url TEXT NOT NULL DEFAULT '',
		base_url TEXT NOT NULL DEFAULT '',
		selector_item TEXT NOT NULL DEFAULT '',
		selector_title TEXT NOT NULL DEFAULT '',
		selector_link TEXT NOT NULL DEFAULT '',
		selector_date TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		topic_id TEXT NOT NULL REFERENCES topics(id),
		workspace_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		result_urls TEXT[] NOT NULL DEFAULT '{}',
		result_meta JSONB NOT NULL DEFAULT '[]',
		logs JSONB NOT NULL DEFAULT '[]',
		cost_cents INTEGER NOT NULL DEFAULT 0,
		candidate_count INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		finished_at TIMESTAMPTZ,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status, started_at);

	CREATE TABLE IF NOT EXISTS recipients (
		workspace_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		PRIMARY KEY (workspace_id, channel_id)
	);

	CREATE TABLE IF NOT EXISTS llm_usage (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		cost_cents INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ClaimRun loads the run and reports whether it is processable. Runs
// already in a terminal state are not claimed (duplicate delivery
// guard).
func (s *PostgresStore) ClaimRun(ctx context.Context, runID string) (domain.Run, bool, error) {
	query, args, err := s.builder.
		Select("id", "topic_id", "workspace_id", "status", "started_at").
		From("runs").
		Where(sq.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return domain.Run{}, false, fmt.Errorf("build claim query: %w", err)
	}

	var run domain.Run
	var status string
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&run.ID, &run.TopicID, &run.WorkspaceID, &status, &run.StartedAt)
	if err != nil {
		return domain.Run{}, false, fmt.Errorf("load run %s: %w", runID, err)
	}

	run.Status = domain.RunStatus(status)
	if run.Status != domain.RunRunning {
		return run, false, nil
	}
	return run, true, nil
}

// TopicForRun returns the topic the run belongs to.
func (s *PostgresStore) TopicForRun(ctx context.Context, runID string) (domain.Topic, error) {
	query, args, err := s.builder.
		Select("t.id", "t.workspace_id", "t.name", "t.description", "t.language",
			"t.negative_filters", "t.max_sources_per_run", "t.model", "t.active").
		From("topics t").
		Join("runs r ON r.topic_id = t.id").
		Where(sq.Eq{"r.id": runID}).
		ToSql()
	if err != nil {
		return domain.Topic{}, fmt.Errorf("build topic query: %w", err)
	}

	var topic domain.Topic
	var filters pq.StringArray
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&topic.ID, &topic.WorkspaceID, &topic.Name, &topic.Description, &topic.Language,
			&filters, &topic.MaxSourcesPerRun, &topic.Model, &topic.Active)
	if err != nil {
		return domain.Topic{}, fmt.Errorf("load topic for run %s: %w", runID, err)
	}

	topic.NegativeFilters = filters
	return topic, nil
}

// ActiveSources snapshots the workspace's active sources.
func (s *PostgresStore) ActiveSources(ctx context.Context, workspaceID string) ([]domain.SourceConfig, error) {
	query, args, err := s.builder.
		Select("id", "name", "type", "feed_url", "base_url",
			"selector_item", "selector_title", "selector_link", "selector_date").
		From("sources").
		Where(sq.Eq{"workspace_id": workspaceID, "active": true}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.SourceConfig
	for rows.Next() {
		cfg := domain.SourceConfig{WorkspaceID: workspaceID, Active: true}
		var sourceType string
		err := rows.Scan(&cfg.ID, &cfg.Name, &sourceType, &cfg.FeedURL, &cfg.BaseURL,
			&cfg.Selectors.Item, &cfg.Selectors.Title, &cfg.Selectors.Link, &cfg.Selectors.Date)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		cfg.Type = domain.SourceType(sourceType)
		sources = append(sources, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}

	return sources, nil
}

// FinalizeRun writes the terminal state; the WHERE status guard keeps
// the running -> terminal transition single-shot.
func (s *PostgresStore) FinalizeRun(ctx context.Context, run domain.Run) error {
	meta, err := json.Marshal(run.ResultMeta)
	if err != nil {
		return fmt.Errorf("marshal result meta: %w", err)
	}
	logs, err := json.Marshal(run.Logs)
	if err != nil {
		return fmt.Errorf("marshal logs: %w", err)
	}

	update := s.builder.
		Update("runs").
		Set("status", string(run.Status)).
		Set("result_urls", pq.StringArray(run.ResultURLs)).
		Set("result_meta", meta).
		Set("logs", logs).
		Set("cost_cents", run.CostCents).
		Set("candidate_count", run.CandidateCount).
		Set("finished_at", run.FinishedAt).
		Where(sq.Eq{"id": run.ID, "status": string(domain.RunRunning)})

	if run.ErrorMessage != "" {
		update = update.Set("error_message", run.ErrorMessage)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build finalize query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", run.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", run.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s was not in running status", run.ID)
	}

	return nil
}

// Recipients lists distinct linked notification channels for the
// workspace.
func (s *PostgresStore) Recipients(ctx context.Context, workspaceID string) ([]string, error) {
	query, args, err := s.builder.
		Select("DISTINCT channel_id").
		From("recipients").
		Where(sq.Eq{"workspace_id": workspaceID}).
		OrderBy("channel_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recipients query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var channel string
		if err := rows.Scan(&channel); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}

	return channels, nil
}

// LogUsage inserts one structured LLM usage record.
func (s *PostgresStore) LogUsage(ctx context.Context, record domain.UsageRecord) error {
	query, args, err := s.builder.
		Insert("llm_usage").
		Columns("id", "workspace_id", "run_id", "provider", "model",
			"input_tokens", "output_tokens", "latency_ms", "cost_cents", "created_at").
		Values(record.ID, record.WorkspaceID, record.RunID, record.Provider, record.Model,
			record.InputTokens, record.OutputTokens, record.LatencyMs, record.CostCents, record.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build usage insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// PendingRuns lists runs still in running status, oldest first.
func (s *PostgresStore) PendingRuns(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	query, args, err := s.builder.
		Select("id").
		From("runs").
		Where(sq.Eq{"status": string(domain.RunRunning)}).
		OrderBy("started_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending runs: %w", err)
	}

	return ids, nil
}
