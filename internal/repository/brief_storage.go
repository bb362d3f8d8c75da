package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"BriefMaker/internal/domain/models"
	"BriefMaker/internal/domain/repository"
	applogger "BriefMaker/pkg/logger"
)

// ClickHouseBriefStorage implements BriefStorage for ClickHouse. The table is
// a ReplacingMergeTree keyed by id; inserts skip ids already present and reads
// use FINAL so a racing duplicate never shows up twice.
type ClickHouseBriefStorage struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewClickHouseBriefStorage(db *sql.DB, table string, l *applogger.Logger) *ClickHouseBriefStorage {
	return &ClickHouseBriefStorage{db: db, table: table, l: l}
}

// BriefSchema returns the statements that create database and brief table.
func BriefSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            id UInt32,
            bytes String,
            created_at DateTime64(3) DEFAULT now64(3)
        ) ENGINE = ReplacingMergeTree ORDER BY id`, database, table),
	}
}

func (s *ClickHouseBriefStorage) Init(ctx context.Context) error {
	return s.Health(ctx)
}

func (s *ClickHouseBriefStorage) Insert(ctx context.Context, b models.Brief) error {
	return s.InsertBatch(ctx, []models.Brief{b})
}

func (s *ClickHouseBriefStorage) InsertBatch(ctx context.Context, briefs []models.Brief) error {
	if len(briefs) == 0 {
		return nil
	}
	// Chunk size tuned to 2000 rows per batch.
	const chunkSize = 2000
	for start := 0; start < len(briefs); start += chunkSize {
		end := min(start+chunkSize, len(briefs))
		chunk := briefs[start:end]

		existing, err := s.existingIDs(ctx, chunk)
		if err != nil {
			return err
		}
		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*2)
		for _, b := range keepNew(chunk, existing) {
			values = append(values, "(?, ?)")
			args = append(args, b.ID, string(b.Bytes))
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (id, bytes) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse insert briefs error",
					applogger.String("table", s.table),
					applogger.Int("rows", len(values)),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("insert briefs: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseBriefStorage) existingIDs(ctx context.Context, chunk []models.Brief) (map[uint32]struct{}, error) {
	lo, hi := chunk[0].ID, chunk[0].ID
	for _, b := range chunk {
		lo, hi = min(lo, b.ID), max(hi, b.ID)
	}
	q := fmt.Sprintf("SELECT id FROM %s WHERE id >= ? AND id <= ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query existing briefs: %w", err)
	}
	defer rows.Close()

	out := make(map[uint32]struct{})
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan brief id: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// keepNew drops briefs whose id is in existing or repeats an earlier brief.
func keepNew(briefs []models.Brief, existing map[uint32]struct{}) []models.Brief {
	out := make([]models.Brief, 0, len(briefs))
	seen := make(map[uint32]struct{}, len(briefs))
	for _, b := range briefs {
		if _, ok := existing[b.ID]; ok {
			continue
		}
		if _, ok := seen[b.ID]; ok {
			continue
		}
		seen[b.ID] = struct{}{}
		out = append(out, b)
	}
	return out
}

func (s *ClickHouseBriefStorage) QueryLatest(ctx context.Context) (models.Brief, error) {
	q := fmt.Sprintf("SELECT id, bytes FROM %s FINAL ORDER BY id DESC LIMIT 1", s.table)
	return s.queryOne(ctx, q)
}

func (s *ClickHouseBriefStorage) QueryBefore(ctx context.Context, before uint32) (models.Brief, error) {
	q := fmt.Sprintf("SELECT id, bytes FROM %s FINAL WHERE id < ? ORDER BY id DESC LIMIT 1", s.table)
	b, err := s.queryOne(ctx, q, before)
	if !errors.Is(err, repository.ErrNoBriefs) {
		return b, err
	}
	q = fmt.Sprintf("SELECT id, bytes FROM %s FINAL ORDER BY id ASC LIMIT 1", s.table)
	return s.queryOne(ctx, q)
}

func (s *ClickHouseBriefStorage) queryOne(ctx context.Context, q string, args ...any) (models.Brief, error) {
	var (
		b   models.Brief
		raw string
	)
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&b.ID, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Brief{}, repository.ErrNoBriefs
	}
	if err != nil {
		return models.Brief{}, fmt.Errorf("query brief: %w", err)
	}
	b.Bytes = []byte(raw)
	return b, nil
}

func (s *ClickHouseBriefStorage) QueryRange(ctx context.Context, from, to uint32, limit int) ([]models.Brief, error) {
	q := fmt.Sprintf("SELECT id, bytes FROM %s FINAL WHERE id >= ? AND id <= ? ORDER BY id ASC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query briefs: %w", err)
	}
	defer rows.Close()

	var out []models.Brief
	for rows.Next() {
		var (
			b   models.Brief
			raw string
		)
		if err := rows.Scan(&b.ID, &raw); err != nil {
			return nil, fmt.Errorf("scan brief: %w", err)
		}
		b.Bytes = []byte(raw)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *ClickHouseBriefStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseBriefStorage) Close() error {
	return nil // Managed by pkg
}

var _ repository.BriefStorage = (*ClickHouseBriefStorage)(nil)
