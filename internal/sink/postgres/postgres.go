// Package postgres upserts digest records into a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-digest/internal/crawler"
	"github.com/JakeFAU/article-digest/internal/hash/sha256"
)

// DefaultTable receives one row per article link.
const DefaultTable = "digest_articles"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Sink writes records in one transaction per digest.
type Sink struct {
	pool   pool
	table  string
	hasher *sha256.Hasher
	logger *zap.Logger
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Table, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool builds a sink over an existing pool.
func NewWithPool(p pool, table string, logger *zap.Logger) (*Sink, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{pool: p, table: table, hasher: sha256.New(), logger: logger}, nil
}

// Migrate creates the table when missing.
func (s *Sink) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	site TEXT NOT NULL,
	category TEXT NOT NULL,
	title TEXT NOT NULL,
	link TEXT NOT NULL,
	summary_en TEXT NOT NULL,
	summary_zh TEXT NOT NULL,
	key_points_en TEXT[] NOT NULL,
	key_points_zh TEXT[] NOT NULL,
	summarized_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Write implements crawler.Sink.
func (s *Sink) Write(ctx context.Context, digest crawler.Digest) error {
	if len(digest.Articles) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := s.upsertQuery()
	for _, r := range digest.Articles {
		args := []any{
			s.hasher.RecordKey(r.Link),
			digest.RunID,
			r.Site,
			r.Category,
			r.Title,
			r.Link,
			r.SummaryEN,
			r.SummaryZH,
			nonNil(r.KeyPointsEN),
			nonNil(r.KeyPointsZH),
			r.Timestamp,
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert %s: %w", r.Link, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("records stored", zap.String("table", s.table), zap.Int("count", len(digest.Articles)))
	return nil
}

// Close implements crawler.Sink.
func (s *Sink) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Sink) upsertQuery() string {
	return fmt.Sprintf(`
INSERT INTO %s (
	id,
	run_id,
	site,
	category,
	title,
	link,
	summary_en,
	summary_zh,
	key_points_en,
	key_points_zh,
	summarized_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (id) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	title = EXCLUDED.title,
	summary_en = EXCLUDED.summary_en,
	summary_zh = EXCLUDED.summary_zh,
	key_points_en = EXCLUDED.key_points_en,
	key_points_zh = EXCLUDED.key_points_zh,
	summarized_at = EXCLUDED.summarized_at`, s.table)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
